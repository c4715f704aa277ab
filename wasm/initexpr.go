package wasm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/reader"
)

// evalInitExpr evaluates the restricted bytecode snippet of §4.7 at load
// time: one of the four *.const opcodes, or get_global reading an
// already-initialized immutable imported global, terminated by end.
// Grounded on wagon's Module.ExecInitExpr, which the same package's
// exec.NewVM calls while building global cells and memory contents
// before the first real instruction ever runs
// (_examples/other_examples/dccad4d8_go-interpreter-wagon__exec-vm.go.go).
func evalInitExpr(code []byte, globals []Global) (uint64, api.Trap) {
	r := reader.New(code)
	op, trap := r.ReadU8()
	if trap != api.TrapNone {
		return 0, trap
	}

	var value uint64
	switch api.Opcode(op) {
	case api.OpI32Const:
		v, trap := r.ReadVarI32()
		if trap != api.TrapNone {
			return 0, trap
		}
		value = uint64(uint32(v))
	case api.OpI64Const:
		v, trap := r.ReadVarI64()
		if trap != api.TrapNone {
			return 0, trap
		}
		value = uint64(v)
	case api.OpF32Const:
		v, trap := r.ReadF32LE()
		if trap != api.TrapNone {
			return 0, trap
		}
		value = uint64(api.F32(v).Raw())
	case api.OpF64Const:
		v, trap := r.ReadF64LE()
		if trap != api.TrapNone {
			return 0, trap
		}
		value = api.F64(v).Raw()
	case api.OpGetGlobal:
		idx, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return 0, trap
		}
		if int(idx) >= len(globals) {
			return 0, api.TrapInvalidGlobalIdx
		}
		g := globals[idx]
		if !g.Imported || g.Mutable {
			return 0, api.TrapInvalidInitExpression
		}
		value = *g.Cell
	default:
		return 0, api.TrapInvalidInitExpression
	}

	end, trap := r.ReadU8()
	if trap != api.TrapNone || api.Opcode(end) != api.OpEnd {
		return 0, api.TrapInvalidInitExpression
	}
	return value, api.TrapNone
}

// applyElementSegments writes each element segment's function indices
// into its target table at the segment's evaluated offset, once, at
// load time — §3's element segments are a one-shot module-instantiation
// effect, not something re-applied on every Attach.
func applyElementSegments(m *Module) api.Trap {
	for _, seg := range m.Elements {
		if int(seg.TableIndex) >= len(m.Tables) {
			return api.TrapInvalidBytes
		}
		offsetVal, trap := evalInitExpr(seg.OffsetExpr, m.Globals)
		if trap != api.TrapNone {
			return trap
		}
		offset := int(int32(uint32(offsetVal)))
		table := &m.Tables[seg.TableIndex]
		if offset < 0 || offset+len(seg.FuncIndices) > len(table.Elements) {
			return api.TrapInvalidBytes
		}
		copy(table.Elements[offset:], seg.FuncIndices)
	}
	return api.TrapNone
}

// applyDataSegments copies each data segment's payload into linear
// memory at its evaluated offset, once, at load time.
func applyDataSegments(m *Module) api.Trap {
	for _, seg := range m.DataSegments {
		if m.Memory == nil {
			return api.TrapInvalidBytes
		}
		offsetVal, trap := evalInitExpr(seg.OffsetExpr, m.Globals)
		if trap != api.TrapNone {
			return trap
		}
		offset := int(int32(uint32(offsetVal)))
		if offset < 0 || offset+len(seg.Bytes) > len(m.Memory.Data) {
			return api.TrapInvalidBytes
		}
		copy(m.Memory.Data[offset:], seg.Bytes)
	}
	return api.TrapNone
}
