package vm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

// step decodes and executes exactly one instruction at the current call
// frame's cursor. Grounded on wagon's exec.VM.execCode fetch-decode-
// dispatch loop, generalized to read through the shared wasm.DecodeInstr
// so the executor's byte accounting can never drift from the validator's
// (_examples/other_examples/dccad4d8_go-interpreter-wagon__exec-vm.go.go).
func (v *VM) step() api.Trap {
	cf := &v.calls[len(v.calls)-1]
	if cf.cursor >= len(cf.fn.Code) {
		return api.TrapInstructionOverflow
	}
	in, trap := wasm.DecodeInstr(cf.fn.Code, cf.cursor)
	if trap != api.TrapNone {
		return trap
	}
	return v.exec(cf, in)
}

// exec dispatches one decoded instruction against the current call
// frame. Most cases advance cf.cursor to in.Next; control-transfer cases
// set it explicitly.
func (v *VM) exec(cf *callFrame, in wasm.Instr) api.Trap {
	switch in.Op {

	case api.OpUnreachable:
		return api.TrapUnreachableCodeExecuted

	case api.OpNop:
		cf.cursor = in.Next
		return api.TrapNone

	case api.OpBlock, api.OpLoop:
		if len(v.frames) >= v.limits.ControlStackMax {
			return api.TrapInvalidStackOperation
		}
		valueful := in.Block != api.ValueTypeVoid
		f := ctrlFrameExec{sig: in.Block, height: len(v.operands)}
		if in.Op == api.OpLoop {
			f.kind = ekLoop
			f.fallValueful = valueful
			f.branchValueful = false // a loop's label arity is always void
			f.target = in.Pos
		} else {
			idx := blockEndIndex(cf.fn, in.Pos)
			if idx < 0 {
				return api.TrapInvalidInstructionStream
			}
			f.kind = ekBlock
			f.fallValueful = valueful
			f.branchValueful = valueful
			f.target = cf.fn.BlockLabels[idx] + 1
		}
		v.frames = append(v.frames, f)
		cf.cursor = in.Next
		return api.TrapNone

	case api.OpIf:
		cond := v.popOperand()
		if len(v.frames) >= v.limits.ControlStackMax {
			return api.TrapInvalidStackOperation
		}
		idx := ifIndexAt(cf.fn, in.Pos)
		if idx < 0 {
			return api.TrapInvalidInstructionStream
		}
		endPos := cf.fn.IfLabels[idx]
		elsePos := cf.fn.IfElseAddrs[idx]
		valueful := in.Block != api.ValueTypeVoid
		f := ctrlFrameExec{
			kind: ekIf, sig: in.Block, fallValueful: valueful, branchValueful: valueful,
			height: len(v.operands), target: endPos + 1,
		}
		if cond.I32() != 0 {
			v.frames = append(v.frames, f)
			cf.cursor = in.Next
		} else if elsePos != 0 {
			v.frames = append(v.frames, f)
			cf.cursor = elsePos + 1
		} else {
			cf.cursor = endPos + 1
		}
		return api.TrapNone

	case api.OpElse:
		// Only reached by falling off the end of an if's true branch;
		// the false branch, if taken, jumped straight past this opcode.
		f := v.frames[len(v.frames)-1]
		v.frames = v.frames[:len(v.frames)-1]
		cf.cursor = f.target
		return api.TrapNone

	case api.OpEnd:
		f := v.frames[len(v.frames)-1]
		if f.kind != ekFunc {
			v.frames = v.frames[:len(v.frames)-1]
			cf.cursor = in.Next
			return api.TrapNone
		}
		return v.doReturn()

	case api.OpBr:
		return v.branchTo(in.Depth)

	case api.OpBrIf:
		cond := v.popOperand()
		if cond.I32() == 0 {
			cf.cursor = in.Next
			return api.TrapNone
		}
		return v.branchTo(in.Depth)

	case api.OpBrTable:
		idx := cond32(v.popOperand())
		depth := in.Default
		if int(idx) < len(in.Targets) {
			depth = in.Targets[idx]
		}
		return v.branchTo(depth)

	case api.OpReturn:
		return v.doReturn()

	case api.OpCall:
		cf.cursor = in.Next
		return v.pushCall(in.Index)

	case api.OpCallIndirect, api.OpTeeLocal:
		// Present in the encoding, intentionally unimplemented: §9
		// requires these to trap distinctly from invalid-opcode so a
		// host can tell "not yet supported" from "corrupted module".
		return api.TrapUnimplementedOpcode

	case api.OpDrop:
		v.popOperand()
		cf.cursor = in.Next
		return api.TrapNone

	case api.OpSelect:
		cond := v.popOperand()
		b := v.popOperand()
		a := v.popOperand()
		cf.cursor = in.Next
		if cond.I32() != 0 {
			return v.pushOperand(a)
		}
		return v.pushOperand(b)

	case api.OpGetLocal:
		cf.cursor = in.Next
		return v.pushOperand(cf.locals[in.Index])

	case api.OpSetLocal:
		val := v.popOperand()
		cf.locals[in.Index] = val
		cf.cursor = in.Next
		return api.TrapNone

	case api.OpGetGlobal:
		if int(in.Index) >= len(v.module.Globals) {
			return api.TrapInvalidGlobalIdx
		}
		g := v.module.Globals[in.Index]
		cf.cursor = in.Next
		return v.pushOperand(api.RawValue(g.Type, *g.Cell))

	case api.OpSetGlobal:
		if int(in.Index) >= len(v.module.Globals) {
			return api.TrapInvalidGlobalIdx
		}
		val := v.popOperand()
		*v.module.Globals[in.Index].Cell = val.Raw()
		cf.cursor = in.Next
		return api.TrapNone

	case api.OpCurrentMemory:
		if v.module.Memory == nil {
			return api.TrapInvalidMemoryAccess
		}
		cf.cursor = in.Next
		return v.pushOperand(api.I32(int32(v.module.Memory.Pages)))

	case api.OpGrowMemory:
		cf.cursor = in.Next
		return v.growMemory()

	case api.OpI32Const:
		return v.push32(cf, in, in.I32)
	case api.OpI64Const:
		return v.push64(cf, in, in.I64)
	case api.OpF32Const:
		return v.pushF32(cf, in, in.F32)
	case api.OpF64Const:
		return v.pushF64(cf, in, in.F64)
	}

	if trap, ok := v.execMemoryOp(cf, in); ok {
		return trap
	}
	if trap, ok := v.execNumericOp(cf, in); ok {
		return trap
	}
	return api.TrapInvalidOpcode
}

// cond32 interprets a value as the i32 used by select-like opcodes.
func cond32(v api.Value) uint32 { return v.U32() }
