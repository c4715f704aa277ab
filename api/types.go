// Package api holds the public, wire-level vocabulary shared by the wasm
// and vm packages: value types, section and opcode encodings, and the
// trap/error taxonomy. Nothing in this package depends on how a module is
// decoded or executed.
package api

// ValueType is the binary encoding of a value type, e.g. i32.
// See https://www.w3.org/TR/wasm-core-1/#binary-valtype
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7F
	ValueTypeI64 ValueType = 0x7E
	ValueTypeF32 ValueType = 0x7D
	ValueTypeF64 ValueType = 0x7C

	// ValueTypeAnyFunc is the sole table element type in the MVP.
	ValueTypeAnyFunc ValueType = 0x70
	// ValueTypeFunc tags a function type in the type section.
	ValueTypeFunc ValueType = 0x60
	// ValueTypeVoid is the empty block-result encoding.
	ValueTypeVoid ValueType = 0x40

	// ValueTypeUnknown is the validator-only polymorphic sentinel used
	// after unreachable code; it never appears on the wire.
	ValueTypeUnknown ValueType = 0x00
)

// Name returns the WebAssembly text-format name of t, or "unknown".
func (t ValueType) Name() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeAnyFunc:
		return "anyfunc"
	case ValueTypeFunc:
		return "func"
	case ValueTypeVoid:
		return "void"
	case ValueTypeUnknown:
		return "unknown"
	}
	return "unknown"
}

// SectionID identifies one of the eleven non-custom sections plus custom=0.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
type SectionID byte

const (
	SectionCustom SectionID = iota
	SectionType
	SectionImport
	SectionFunction
	SectionTable
	SectionMemory
	SectionGlobal
	SectionExport
	SectionStart
	SectionElement
	SectionCode
	SectionData

	// SectionCount bounds the section IDs the scanner accepts.
	SectionCount
)

func (id SectionID) Name() string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	}
	return "unknown"
}

// ImportKind / ExportKind indicate which index space an import or export
// description refers to.
type ImportKind byte

const (
	ImportKindFunc   ImportKind = 0x00
	ImportKindTable  ImportKind = 0x01
	ImportKindMemory ImportKind = 0x02
	ImportKindGlobal ImportKind = 0x03
)

type ExportKind = ImportKind

const (
	ExportKindFunc   = ImportKind(ImportKindFunc)
	ExportKindTable  = ImportKind(ImportKindTable)
	ExportKindMemory = ImportKind(ImportKindMemory)
	ExportKindGlobal = ImportKind(ImportKindGlobal)
)

// Magic and version of a WebAssembly module-version-1 binary.
var (
	Magic   = [4]byte{0x00, 0x61, 0x73, 0x6D}
	Version = [4]byte{0x01, 0x00, 0x00, 0x00}
)

// WasmPageSize is the fixed size of one unit of linear memory growth.
const WasmPageSize = 65536

// OpcodeCount bounds the opcode byte space the executor and validator
// dispatch over (192 slots, 0x00-0xBF, several reserved).
const OpcodeCount = 0xC0
