package vm

import (
	"sort"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

// pushCall resolves funcIndex, pops its declared parameters off the
// operand stack into a fresh locals slice (remaining locals zero of
// their declared type), and pushes both a call frame and its enclosing
// func control frame.
func (v *VM) pushCall(funcIndex uint32) api.Trap {
	if int(funcIndex) >= len(v.module.Funcs) {
		return api.TrapInvalidFuncIdx
	}
	ref := v.module.Funcs[funcIndex]
	if ref.Imported || ref.Defined == nil {
		// Imports are declared, never resolved across modules (§1
		// Non-goal); calling one has no implementation to jump to.
		return api.TrapUnimplementedOpcode
	}
	if len(v.calls) >= v.limits.CallStackMax {
		return api.TrapInvalidStackOperation
	}
	fn := ref.Defined
	if int(ref.TypeIndex) >= len(v.module.Types) {
		return api.TrapInvalidTypeIdx
	}
	ftype := &v.module.Types[ref.TypeIndex]

	nParams := len(ftype.Params)
	if len(v.operands) < nParams {
		return api.TrapInvalidStackOperation
	}
	locals := make([]api.Value, nParams+len(fn.Locals))
	for i := nParams - 1; i >= 0; i-- {
		locals[i] = v.popOperand()
	}
	for i, t := range fn.Locals {
		locals[nParams+i] = api.RawValue(t, 0)
	}

	resultType, valueful := ftype.Result()
	if len(v.frames) >= v.limits.ControlStackMax {
		return api.TrapInvalidStackOperation
	}
	ctrlBase := len(v.frames)
	v.frames = append(v.frames, ctrlFrameExec{
		kind: ekFunc, sig: resultType, fallValueful: valueful, branchValueful: valueful,
		height: len(v.operands), target: -1,
	})
	v.calls = append(v.calls, callFrame{
		fn: fn, locals: locals, cursor: 0,
		ctrlBase: ctrlBase, operandBase: len(v.operands),
		resultType: resultType, valueful: valueful,
	})
	return api.TrapNone
}

// returnFromCall pops the active call frame. Returning from the
// outermost call leaves its result (already on the operand stack) for
// Call to collect.
func (v *VM) returnFromCall() api.Trap {
	v.calls = v.calls[:len(v.calls)-1]
	return api.TrapNone
}

// doReturn implements `return`: truncate to the active call's own
// operand/control base, keep the result value if valueful, and pop the
// call frame.
func (v *VM) doReturn() api.Trap {
	cf := &v.calls[len(v.calls)-1]
	var val api.Value
	if cf.valueful {
		val = v.popOperand()
	}
	v.operands = v.operands[:cf.operandBase]
	v.frames = v.frames[:cf.ctrlBase]
	if cf.valueful {
		if trap := v.pushOperand(val); trap != api.TrapNone {
			return trap
		}
	}
	return v.returnFromCall()
}

// branchTo implements `br`/`br_if`/`br_table`'s common unwind: depth 0 is
// the innermost control frame. It always pops the target frame itself along
// with everything above it, including a loop — re-entering a loop's body
// works because its cursor target is the loop opcode's own byte address, so
// the next step() re-decodes it and pushes a fresh frame.
func (v *VM) branchTo(depth uint32) api.Trap {
	if int(depth) >= len(v.frames) {
		return api.TrapInvalidStackOperation
	}
	target := v.frames[len(v.frames)-1-int(depth)]

	var val api.Value
	if target.branchValueful {
		val = v.popOperand()
	}
	v.operands = v.operands[:target.height]
	if target.branchValueful {
		if trap := v.pushOperand(val); trap != api.TrapNone {
			return trap
		}
	}

	if target.kind == ekFunc {
		cf := &v.calls[len(v.calls)-1]
		v.frames = v.frames[:cf.ctrlBase]
		return v.returnFromCall()
	}

	v.frames = v.frames[:len(v.frames)-int(depth)-1]
	v.calls[len(v.calls)-1].cursor = target.target
	return api.TrapNone
}

// blockEndIndex and ifIndexAt binary-search the function's recorded
// offset tables — filled in strictly increasing byte-position order by
// the single linear validation pass — to find the entry for the
// block/loop/if opcode at pos.
func blockEndIndex(fn *wasm.Function, pos int) int {
	i := sort.SearchInts(fn.BlockOffsets, pos)
	if i < len(fn.BlockOffsets) && fn.BlockOffsets[i] == pos {
		return i
	}
	return -1
}

func ifIndexAt(fn *wasm.Function, pos int) int {
	i := sort.SearchInts(fn.IfOffsets, pos)
	if i < len(fn.IfOffsets) && fn.IfOffsets[i] == pos {
		return i
	}
	return -1
}
