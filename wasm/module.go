// Package wasm implements the module decoder/structural scanner, the
// structural validator / pre-compiler, and the immutable in-memory module
// record of spec §3-§4.5. It has no notion of execution; that lives in
// the vm package.
package wasm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/arena"
)

// FuncType is an ordered parameter/result signature. The MVP allows 0 or
// 1 results.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Result returns the function type's single result type and true, or
// (ValueTypeVoid, false) if it returns nothing.
func (f *FuncType) Result() (api.ValueType, bool) {
	if len(f.Results) == 0 {
		return api.ValueTypeVoid, false
	}
	return f.Results[0], true
}

// Function is a defined (non-imported) function: its type, its expanded
// local-variable types (locals only — parameters are addressed through
// the same index space but are not repeated here), its raw code slice
// (including the trailing end), and the validator's jump-resolution
// tables for that code slice. Every address below is a byte offset into
// Code.
type Function struct {
	TypeIndex uint32
	Locals    []api.ValueType

	Code []byte

	// BlockOffsets[i] is the byte offset of the i'th block/loop opcode in
	// Code; BlockLabels[i] is the byte offset of its matching end.
	BlockOffsets []int
	BlockLabels  []int

	// IfOffsets[i] is the byte offset of the i'th if opcode; IfLabels[i]
	// is its matching end, IfElseAddrs[i] is its else offset or 0.
	IfOffsets   []int
	IfLabels    []int
	IfElseAddrs []int
}

// FuncRef is one entry in the module's combined function index space:
// imports first, then locally defined functions, matching the order the
// spec's encoding assigns indices in.
type FuncRef struct {
	TypeIndex uint32
	Imported  bool
	Defined   *Function // nil when Imported
}

// Global is a mutable or immutable 64-bit cell. The loader gives every
// global its own heap-allocated cell; for an imported global, ImportGlobal
// may replace it with host-supplied storage before Attach.
type Global struct {
	Type     api.ValueType
	Mutable  bool
	Imported bool
	Cell     *uint64
}

// Memory is the module's single linear memory (MVP allows at most one).
type Memory struct {
	Data     []byte
	Pages    uint32
	MaxPages uint32
	HasMax   bool
}

// Table holds function indices for the sole MVP element type, anyfunc.
type Table struct {
	Elements []uint32
	Max      uint32
	HasMax   bool
}

// ElementSegment initializes a range of Table starting at the evaluated
// Offset with FuncIndices.
type ElementSegment struct {
	TableIndex  uint32
	OffsetExpr  []byte
	FuncIndices []uint32
}

// DataSegment initializes a range of linear memory starting at the
// evaluated Offset with Bytes.
type DataSegment struct {
	MemIndex   uint32
	OffsetExpr []byte
	Bytes      []byte
}

// Import names one external dependency; Index indexes into the space
// named by Kind (e.g. a func import's Index is a type index).
type Import struct {
	Module string
	Field  string
	Kind   api.ImportKind
	Index  uint32
}

// Export names a local entity visible to the host; Index indexes into
// the combined index space named by Kind.
type Export struct {
	Name  string
	Kind  api.ExportKind
	Index uint32
}

// Module is the immutable decoded form of a WebAssembly binary. Function
// code, the memory declared in the memory section and data-segment
// payloads are borrowed views into a.buf, released together by Destroy;
// the other slices are ordinary Go heap allocations.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []FuncRef
	Tables  []Table
	Memory  *Memory
	Globals []Global
	Exports []Export

	Elements     []ElementSegment
	DataSegments []DataSegment

	HasStart  bool
	StartFunc uint32

	a *arena.Arena
}

// ExportFunc performs the linear scan over the export table that §6
// specifies, returning the function index bound to name.
func (m *Module) ExportFunc(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == api.ExportKindFunc && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}

// Destroy releases the module's arena. Using the module, or any slice
// sliced from it, afterwards is undefined behavior.
func Destroy(m *Module) {
	if m == nil || m.a == nil {
		return
	}
	m.a.Destroy()
}
