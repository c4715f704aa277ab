package vm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

// Instantiate runs the scan-then-load pipeline of §4.3/§4.4 and returns a
// module ready to Attach. api.Trap implements error, so callers that only
// care about success/failure can treat the second return value as a plain
// error; callers that need the symbolic kind can type-assert it back.
func Instantiate(bytes []byte, alloc Allocator) (*wasm.Module, error) {
	summary, trap := wasm.Scan(bytes, wasm.DefaultScanLimits)
	if trap != api.TrapNone {
		return nil, trap
	}
	m, trap := wasm.Load(bytes, summary)
	if trap != api.TrapNone {
		return nil, trap
	}
	return m, nil
}

// Destroy frees a module's arena. Exposed from vm as well as wasm so host
// code driving the container lifecycle never needs to import wasm itself.
func Destroy(m *wasm.Module) { wasm.Destroy(m) }

// ExportFunc resolves an exported function's index by name.
func ExportFunc(m *wasm.Module, name string) (uint32, bool) { return m.ExportFunc(name) }

// ImportGlobal binds an imported global's storage cell to a host-owned
// uint64, per §6's host-surface requirement that imports are wired by the
// embedder before Attach, not resolved automatically across modules.
func ImportGlobal(m *wasm.Module, cell *uint64, globalIndex uint32) {
	m.Globals[globalIndex].Cell = cell
}
