package wasm

import "github.com/tetratelabs/warpwasm/api"

// frameKind distinguishes the five control-frame shapes of §4.5.
type frameKind uint8

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
	frameFunc
	frameInitExpr
)

// ctrlFrame mirrors spec §4.5's control-frame record. tableIdx points at
// this frame's slot in the owning function's BlockOffsets/BlockLabels (or
// IfOffsets/IfLabels/IfElseAddrs) arrays, fixed up as else/end are seen.
type ctrlFrame struct {
	kind        frameKind
	sig         api.ValueType // void, or the single result type
	height      int           // operand stack depth when this frame was pushed
	unreachable bool
	addr        int // byte offset of the opening opcode
	tableIdx    int
	hasElse     bool
}

func (f *ctrlFrame) arity() (api.ValueType, bool) {
	if f.kind == frameLoop || f.sig == api.ValueTypeVoid {
		return api.ValueTypeVoid, false
	}
	return f.sig, true
}

// A frame's branch target is, per the glossary, the loop's own start
// address for a loop frame and one past the matching end for everything
// else. The validator does not compute it; it records the addresses, and
// the executor derives the target from the recorded tables when it
// enters the block, loop or if.

// validatorState carries the operand-type and control-frame stacks
// through one function body's linear pass. There is no call stack here;
// the index of the function being validated is held in funcIdx.
type validatorState struct {
	m       *Module
	fn      *Function
	ftype   *FuncType
	funcIdx uint32

	operands []api.ValueType
	frames   []ctrlFrame
}

// Validate performs the single linear pass of §4.5 over the function at
// funcIdx (which must be locally defined), driving the operand-type and
// control-frame stacks, recording block/if/else/end byte addresses into
// the function record, and rejecting any structural or typing violation.
// Grounded on wagon's validate.verifyBody state machine — a mock VM with
// the same three-stack shape, walking the body byte-by-byte
// (_examples/other_examples/acce7eef_go-interpreter-wagon__validate-validate.go.go).
func Validate(m *Module, funcIdx uint32) api.Trap {
	ref := m.Funcs[funcIdx]
	if ref.Imported || ref.Defined == nil {
		return api.TrapInvalidFuncIdx
	}
	if int(ref.TypeIndex) >= len(m.Types) {
		return api.TrapInvalidTypeIdx
	}
	fn := ref.Defined
	ftype := &m.Types[ref.TypeIndex]

	vs := &validatorState{m: m, fn: fn, ftype: ftype, funcIdx: funcIdx}
	resultSig := api.ValueTypeVoid
	if t, ok := ftype.Result(); ok {
		resultSig = t
	}
	vs.pushFrame(ctrlFrame{kind: frameFunc, sig: resultSig, height: 0, addr: -1, tableIdx: -1})

	pos := 0
	for pos < len(fn.Code) {
		in, trap := decodeInstr(fn.Code, pos)
		if trap != api.TrapNone {
			return trap
		}
		if trap := vs.step(in); trap != api.TrapNone {
			return trap
		}
		pos = in.Next
	}

	if len(vs.frames) != 0 {
		return api.TrapInvalidEndOpcode
	}
	return api.TrapNone
}

func (vs *validatorState) top() *ctrlFrame { return &vs.frames[len(vs.frames)-1] }

func (vs *validatorState) pushFrame(f ctrlFrame) { vs.frames = append(vs.frames, f) }

func (vs *validatorState) popFrame() ctrlFrame {
	f := vs.frames[len(vs.frames)-1]
	vs.frames = vs.frames[:len(vs.frames)-1]
	return f
}

func (vs *validatorState) push(t api.ValueType) { vs.operands = append(vs.operands, t) }

// pop honors the polymorphic-after-unreachable rule: once the current
// frame is marked unreachable, popping past its entry height yields the
// unknown sentinel instead of underflowing.
func (vs *validatorState) pop() (api.ValueType, api.Trap) {
	f := vs.top()
	if len(vs.operands) <= f.height {
		if f.unreachable {
			return api.ValueTypeUnknown, api.TrapNone
		}
		return 0, api.TrapInvalidStackOperation
	}
	t := vs.operands[len(vs.operands)-1]
	vs.operands = vs.operands[:len(vs.operands)-1]
	return t, api.TrapNone
}

func (vs *validatorState) popExpect(want api.ValueType) api.Trap {
	got, trap := vs.pop()
	if trap != api.TrapNone {
		return trap
	}
	if got != want && got != api.ValueTypeUnknown {
		return api.TrapStackTypeMismatch
	}
	return api.TrapNone
}

// peekExpect checks the top of stack without consuming it,
// used by br_if whose condition has already been popped but whose target
// signature must still be present on fallthrough.
func (vs *validatorState) peekExpect(want api.ValueType) api.Trap {
	f := vs.top()
	if len(vs.operands) <= f.height {
		if f.unreachable {
			return api.TrapNone
		}
		return api.TrapInvalidStackOperation
	}
	got := vs.operands[len(vs.operands)-1]
	if got != want && got != api.ValueTypeUnknown {
		return api.TrapStackTypeMismatch
	}
	return api.TrapNone
}

func (vs *validatorState) setUnreachable() { vs.top().unreachable = true }

func (vs *validatorState) localType(idx uint32) (api.ValueType, bool) {
	if int(idx) < len(vs.ftype.Params) {
		return vs.ftype.Params[idx], true
	}
	idx -= uint32(len(vs.ftype.Params))
	if int(idx) < len(vs.fn.Locals) {
		return vs.fn.Locals[idx], true
	}
	return 0, false
}

// branchFrame returns the control frame `depth` levels up from the top
// (0 = innermost) and an error if depth reaches past the function frame.
func (vs *validatorState) branchFrame(depth uint32) (*ctrlFrame, api.Trap) {
	if int(depth) >= len(vs.frames) {
		return nil, api.TrapInvalidStackOperation
	}
	return &vs.frames[len(vs.frames)-1-int(depth)], api.TrapNone
}

// checkBranchArity validates that popping the target frame's arity (if any)
// off the operand stack type-checks, without mutating committed state
// beyond that pop — matching §4.5's "br_if ... check signature of target
// frame non-destructively" vs. the destructive br/br_table pops.
func (vs *validatorState) checkBranchArity(f *ctrlFrame, destructive bool) api.Trap {
	t, valueful := f.arity()
	if !valueful {
		return api.TrapNone
	}
	if destructive {
		return vs.popExpect(t)
	}
	return vs.peekExpect(t)
}

func (vs *validatorState) step(in instr) api.Trap {
	op := in.Op
	f := vs.top()

	switch op {
	case api.OpUnreachable:
		vs.setUnreachable()
		return api.TrapNone

	case api.OpNop:
		return api.TrapNone

	case api.OpBlock, api.OpLoop:
		idx := len(vs.fn.BlockOffsets)
		vs.fn.BlockOffsets = append(vs.fn.BlockOffsets, in.Pos)
		vs.fn.BlockLabels = append(vs.fn.BlockLabels, 0)
		kind := frameBlock
		if op == api.OpLoop {
			kind = frameLoop
		}
		vs.pushFrame(ctrlFrame{kind: kind, sig: in.Block, height: len(vs.operands), addr: in.Pos, tableIdx: idx})
		return api.TrapNone

	case api.OpIf:
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		idx := len(vs.fn.IfOffsets)
		vs.fn.IfOffsets = append(vs.fn.IfOffsets, in.Pos)
		vs.fn.IfLabels = append(vs.fn.IfLabels, 0)
		vs.fn.IfElseAddrs = append(vs.fn.IfElseAddrs, 0)
		vs.pushFrame(ctrlFrame{kind: frameIf, sig: in.Block, height: len(vs.operands), addr: in.Pos, tableIdx: idx})
		return api.TrapNone

	case api.OpElse:
		if f.kind != frameIf {
			return api.TrapIfElseMismatch
		}
		if t, valueful := f.arity(); valueful {
			if trap := vs.popExpect(t); trap != api.TrapNone {
				return trap
			}
		}
		if len(vs.operands) != f.height {
			return api.TrapStackTypeMismatch
		}
		vs.fn.IfElseAddrs[f.tableIdx] = in.Pos
		f.hasElse = true
		f.unreachable = false
		vs.operands = vs.operands[:f.height]
		return api.TrapNone

	case api.OpEnd:
		if t, valueful := f.arity(); valueful {
			if trap := vs.popExpect(t); trap != api.TrapNone {
				return trap
			}
		}
		if len(vs.operands) != f.height {
			return api.TrapStackTypeMismatch
		}
		popped := vs.popFrame()
		switch popped.kind {
		case frameBlock, frameLoop:
			vs.fn.BlockLabels[popped.tableIdx] = in.Pos
		case frameIf:
			if popped.sig != api.ValueTypeVoid && !popped.hasElse {
				return api.TrapValuefulIfWithNoElse
			}
			vs.fn.IfLabels[popped.tableIdx] = in.Pos
		case frameFunc:
			if in.Next != len(vs.fn.Code) {
				return api.TrapInvalidEndOpcode
			}
		}
		if t, valueful := popped.arity(); valueful {
			vs.push(t)
		}
		return api.TrapNone

	case api.OpBr:
		target, trap := vs.branchFrame(in.Depth)
		if trap != api.TrapNone {
			return trap
		}
		if trap := vs.checkBranchArity(target, true); trap != api.TrapNone {
			return trap
		}
		vs.setUnreachable()
		return api.TrapNone

	case api.OpBrIf:
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		target, trap := vs.branchFrame(in.Depth)
		if trap != api.TrapNone {
			return trap
		}
		return vs.checkBranchArity(target, false)

	case api.OpBrTable:
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		def, trap := vs.branchFrame(in.Default)
		if trap != api.TrapNone {
			return trap
		}
		defT, defValueful := def.arity()
		for _, d := range in.Targets {
			tf, trap := vs.branchFrame(d)
			if trap != api.TrapNone {
				return trap
			}
			t, valueful := tf.arity()
			if valueful != defValueful || (valueful && t != defT) {
				return api.TrapInvalidBranchTable
			}
		}
		if trap := vs.checkBranchArity(def, true); trap != api.TrapNone {
			return trap
		}
		vs.setUnreachable()
		return api.TrapNone

	case api.OpReturn:
		rt := vs.topFuncFrame()
		if t, valueful := rt.arity(); valueful {
			if trap := vs.popExpect(t); trap != api.TrapNone {
				return trap
			}
		}
		vs.setUnreachable()
		return api.TrapNone

	case api.OpCall:
		return vs.checkCall(in.Index)

	case api.OpCallIndirect:
		// §9: present in the encoding, intentionally unimplemented at
		// execution time. Validation still checks the type index exists
		// so a corrupt module is rejected the same way any other
		// dangling type reference would be.
		if int(in.Index) >= len(vs.m.Types) {
			return api.TrapInvalidTypeIdx
		}
		callee := &vs.m.Types[in.Index]
		for i := len(callee.Params) - 1; i >= 0; i-- {
			if trap := vs.popExpect(callee.Params[i]); trap != api.TrapNone {
				return trap
			}
		}
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone { // table index operand
			return trap
		}
		if t, ok := callee.Result(); ok {
			vs.push(t)
		}
		return api.TrapNone

	case api.OpDrop:
		_, trap := vs.pop()
		return trap

	case api.OpSelect:
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		b, trap := vs.pop()
		if trap != api.TrapNone {
			return trap
		}
		a, trap := vs.pop()
		if trap != api.TrapNone {
			return trap
		}
		if a != api.ValueTypeUnknown && b != api.ValueTypeUnknown && a != b {
			return api.TrapStackTypeMismatch
		}
		result := a
		if result == api.ValueTypeUnknown {
			result = b
		}
		vs.push(result)
		return api.TrapNone

	case api.OpGetLocal:
		t, ok := vs.localType(in.Index)
		if !ok {
			return api.TrapInvalidLocalIdx
		}
		vs.push(t)
		return api.TrapNone

	case api.OpSetLocal:
		t, ok := vs.localType(in.Index)
		if !ok {
			return api.TrapInvalidLocalIdx
		}
		return vs.popExpect(t)

	case api.OpTeeLocal:
		t, ok := vs.localType(in.Index)
		if !ok {
			return api.TrapInvalidLocalIdx
		}
		if trap := vs.popExpect(t); trap != api.TrapNone {
			return trap
		}
		vs.push(t)
		return api.TrapNone

	case api.OpGetGlobal:
		if int(in.Index) >= len(vs.m.Globals) {
			return api.TrapInvalidGlobalIdx
		}
		vs.push(vs.m.Globals[in.Index].Type)
		return api.TrapNone

	case api.OpSetGlobal:
		if int(in.Index) >= len(vs.m.Globals) {
			return api.TrapInvalidGlobalIdx
		}
		g := vs.m.Globals[in.Index]
		if !g.Mutable {
			return api.TrapInvalidGlobalIdx
		}
		return vs.popExpect(g.Type)

	case api.OpCurrentMemory:
		vs.push(api.ValueTypeI32)
		return api.TrapNone

	case api.OpGrowMemory:
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		vs.push(api.ValueTypeI32)
		return api.TrapNone

	case api.OpI32Const:
		vs.push(api.ValueTypeI32)
		return api.TrapNone
	case api.OpI64Const:
		vs.push(api.ValueTypeI64)
		return api.TrapNone
	case api.OpF32Const:
		vs.push(api.ValueTypeF32)
		return api.TrapNone
	case api.OpF64Const:
		vs.push(api.ValueTypeF64)
		return api.TrapNone

	default:
		return vs.stepNumericOrMemory(in)
	}
}

func (vs *validatorState) topFuncFrame() *ctrlFrame {
	for i := len(vs.frames) - 1; i >= 0; i-- {
		if vs.frames[i].kind == frameFunc {
			return &vs.frames[i]
		}
	}
	return &vs.frames[0]
}

func (vs *validatorState) checkCall(funcIdx uint32) api.Trap {
	if int(funcIdx) >= len(vs.m.Funcs) {
		return api.TrapInvalidFuncIdx
	}
	ref := vs.m.Funcs[funcIdx]
	if int(ref.TypeIndex) >= len(vs.m.Types) {
		return api.TrapInvalidTypeIdx
	}
	callee := &vs.m.Types[ref.TypeIndex]
	for i := len(callee.Params) - 1; i >= 0; i-- {
		if trap := vs.popExpect(callee.Params[i]); trap != api.TrapNone {
			return trap
		}
	}
	if t, ok := callee.Result(); ok {
		vs.push(t)
	}
	return api.TrapNone
}

// loadOpType / storeOpType record each memory opcode's value type so a
// single switch can drive both load and store validation below.
var loadOpType = map[api.Opcode]api.ValueType{
	api.OpI32Load: api.ValueTypeI32, api.OpI32Load8S: api.ValueTypeI32, api.OpI32Load8U: api.ValueTypeI32,
	api.OpI32Load16S: api.ValueTypeI32, api.OpI32Load16U: api.ValueTypeI32,
	api.OpI64Load: api.ValueTypeI64, api.OpI64Load8S: api.ValueTypeI64, api.OpI64Load8U: api.ValueTypeI64,
	api.OpI64Load16S: api.ValueTypeI64, api.OpI64Load16U: api.ValueTypeI64,
	api.OpI64Load32S: api.ValueTypeI64, api.OpI64Load32U: api.ValueTypeI64,
	api.OpF32Load: api.ValueTypeF32, api.OpF64Load: api.ValueTypeF64,
}

var storeOpType = map[api.Opcode]api.ValueType{
	api.OpI32Store: api.ValueTypeI32, api.OpI32Store8: api.ValueTypeI32, api.OpI32Store16: api.ValueTypeI32,
	api.OpI64Store: api.ValueTypeI64, api.OpI64Store8: api.ValueTypeI64, api.OpI64Store16: api.ValueTypeI64,
	api.OpI64Store32: api.ValueTypeI64,
	api.OpF32Store:   api.ValueTypeF32, api.OpF64Store: api.ValueTypeF64,
}

// unaryOps / binaryOps / compareOps / convertOps classify every
// remaining numeric opcode by its operand and result types, implementing
// the §4.5 per-opcode contract table without one case per opcode.
var unaryOps = map[api.Opcode][2]api.ValueType{ // {operand, result}
	api.OpI32Eqz: {api.ValueTypeI32, api.ValueTypeI32}, api.OpI64Eqz: {api.ValueTypeI64, api.ValueTypeI32},
	api.OpI32Clz: {api.ValueTypeI32, api.ValueTypeI32}, api.OpI32Ctz: {api.ValueTypeI32, api.ValueTypeI32}, api.OpI32Popcnt: {api.ValueTypeI32, api.ValueTypeI32},
	api.OpI64Clz: {api.ValueTypeI64, api.ValueTypeI64}, api.OpI64Ctz: {api.ValueTypeI64, api.ValueTypeI64}, api.OpI64Popcnt: {api.ValueTypeI64, api.ValueTypeI64},
	api.OpF32Abs: {api.ValueTypeF32, api.ValueTypeF32}, api.OpF32Neg: {api.ValueTypeF32, api.ValueTypeF32},
	api.OpF32Ceil: {api.ValueTypeF32, api.ValueTypeF32}, api.OpF32Floor: {api.ValueTypeF32, api.ValueTypeF32},
	api.OpF32Trunc: {api.ValueTypeF32, api.ValueTypeF32}, api.OpF32Nearest: {api.ValueTypeF32, api.ValueTypeF32}, api.OpF32Sqrt: {api.ValueTypeF32, api.ValueTypeF32},
	api.OpF64Abs: {api.ValueTypeF64, api.ValueTypeF64}, api.OpF64Neg: {api.ValueTypeF64, api.ValueTypeF64},
	api.OpF64Ceil: {api.ValueTypeF64, api.ValueTypeF64}, api.OpF64Floor: {api.ValueTypeF64, api.ValueTypeF64},
	api.OpF64Trunc: {api.ValueTypeF64, api.ValueTypeF64}, api.OpF64Nearest: {api.ValueTypeF64, api.ValueTypeF64}, api.OpF64Sqrt: {api.ValueTypeF64, api.ValueTypeF64},

	api.OpI32WrapI64: {api.ValueTypeI64, api.ValueTypeI32},
	api.OpI32TruncSF32: {api.ValueTypeF32, api.ValueTypeI32}, api.OpI32TruncUF32: {api.ValueTypeF32, api.ValueTypeI32},
	api.OpI32TruncSF64: {api.ValueTypeF64, api.ValueTypeI32}, api.OpI32TruncUF64: {api.ValueTypeF64, api.ValueTypeI32},
	api.OpI64ExtendSI32: {api.ValueTypeI32, api.ValueTypeI64}, api.OpI64ExtendUI32: {api.ValueTypeI32, api.ValueTypeI64},
	api.OpI64TruncSF32: {api.ValueTypeF32, api.ValueTypeI64}, api.OpI64TruncUF32: {api.ValueTypeF32, api.ValueTypeI64},
	api.OpI64TruncSF64: {api.ValueTypeF64, api.ValueTypeI64}, api.OpI64TruncUF64: {api.ValueTypeF64, api.ValueTypeI64},
	api.OpF32ConvertSI32: {api.ValueTypeI32, api.ValueTypeF32}, api.OpF32ConvertUI32: {api.ValueTypeI32, api.ValueTypeF32},
	api.OpF32ConvertSI64: {api.ValueTypeI64, api.ValueTypeF32}, api.OpF32ConvertUI64: {api.ValueTypeI64, api.ValueTypeF32},
	api.OpF32DemoteF64: {api.ValueTypeF64, api.ValueTypeF32},
	api.OpF64ConvertSI32: {api.ValueTypeI32, api.ValueTypeF64}, api.OpF64ConvertUI32: {api.ValueTypeI32, api.ValueTypeF64},
	api.OpF64ConvertSI64: {api.ValueTypeI64, api.ValueTypeF64}, api.OpF64ConvertUI64: {api.ValueTypeI64, api.ValueTypeF64},
	api.OpF64PromoteF32: {api.ValueTypeF32, api.ValueTypeF64},
	api.OpI32ReinterpretF32: {api.ValueTypeF32, api.ValueTypeI32}, api.OpI64ReinterpretF64: {api.ValueTypeF64, api.ValueTypeI64},
	api.OpF32ReinterpretI32: {api.ValueTypeI32, api.ValueTypeF32}, api.OpF64ReinterpretI64: {api.ValueTypeI64, api.ValueTypeF64},
}

var binaryOps = map[api.Opcode]api.ValueType{ // operand type == result type
	api.OpI32Add: api.ValueTypeI32, api.OpI32Sub: api.ValueTypeI32, api.OpI32Mul: api.ValueTypeI32,
	api.OpI32DivS: api.ValueTypeI32, api.OpI32DivU: api.ValueTypeI32, api.OpI32RemS: api.ValueTypeI32, api.OpI32RemU: api.ValueTypeI32,
	api.OpI32And: api.ValueTypeI32, api.OpI32Or: api.ValueTypeI32, api.OpI32Xor: api.ValueTypeI32,
	api.OpI32Shl: api.ValueTypeI32, api.OpI32ShrS: api.ValueTypeI32, api.OpI32ShrU: api.ValueTypeI32,
	api.OpI32Rotl: api.ValueTypeI32, api.OpI32Rotr: api.ValueTypeI32,

	api.OpI64Add: api.ValueTypeI64, api.OpI64Sub: api.ValueTypeI64, api.OpI64Mul: api.ValueTypeI64,
	api.OpI64DivS: api.ValueTypeI64, api.OpI64DivU: api.ValueTypeI64, api.OpI64RemS: api.ValueTypeI64, api.OpI64RemU: api.ValueTypeI64,
	api.OpI64And: api.ValueTypeI64, api.OpI64Or: api.ValueTypeI64, api.OpI64Xor: api.ValueTypeI64,
	api.OpI64Shl: api.ValueTypeI64, api.OpI64ShrS: api.ValueTypeI64, api.OpI64ShrU: api.ValueTypeI64,
	api.OpI64Rotl: api.ValueTypeI64, api.OpI64Rotr: api.ValueTypeI64,

	api.OpF32Add: api.ValueTypeF32, api.OpF32Sub: api.ValueTypeF32, api.OpF32Mul: api.ValueTypeF32, api.OpF32Div: api.ValueTypeF32,
	api.OpF32Min: api.ValueTypeF32, api.OpF32Max: api.ValueTypeF32, api.OpF32Copysign: api.ValueTypeF32,

	api.OpF64Add: api.ValueTypeF64, api.OpF64Sub: api.ValueTypeF64, api.OpF64Mul: api.ValueTypeF64, api.OpF64Div: api.ValueTypeF64,
	api.OpF64Min: api.ValueTypeF64, api.OpF64Max: api.ValueTypeF64, api.OpF64Copysign: api.ValueTypeF64,
}

var compareOps = map[api.Opcode]api.ValueType{ // operand type; result is always i32
	api.OpI32Eq: api.ValueTypeI32, api.OpI32Ne: api.ValueTypeI32, api.OpI32LtS: api.ValueTypeI32, api.OpI32LtU: api.ValueTypeI32,
	api.OpI32GtS: api.ValueTypeI32, api.OpI32GtU: api.ValueTypeI32, api.OpI32LeS: api.ValueTypeI32, api.OpI32LeU: api.ValueTypeI32,
	api.OpI32GeS: api.ValueTypeI32, api.OpI32GeU: api.ValueTypeI32,

	api.OpI64Eq: api.ValueTypeI64, api.OpI64Ne: api.ValueTypeI64, api.OpI64LtS: api.ValueTypeI64, api.OpI64LtU: api.ValueTypeI64,
	api.OpI64GtS: api.ValueTypeI64, api.OpI64GtU: api.ValueTypeI64, api.OpI64LeS: api.ValueTypeI64, api.OpI64LeU: api.ValueTypeI64,
	api.OpI64GeS: api.ValueTypeI64, api.OpI64GeU: api.ValueTypeI64,

	api.OpF32Eq: api.ValueTypeF32, api.OpF32Ne: api.ValueTypeF32, api.OpF32Lt: api.ValueTypeF32, api.OpF32Gt: api.ValueTypeF32,
	api.OpF32Le: api.ValueTypeF32, api.OpF32Ge: api.ValueTypeF32,

	api.OpF64Eq: api.ValueTypeF64, api.OpF64Ne: api.ValueTypeF64, api.OpF64Lt: api.ValueTypeF64, api.OpF64Gt: api.ValueTypeF64,
	api.OpF64Le: api.ValueTypeF64, api.OpF64Ge: api.ValueTypeF64,
}

func (vs *validatorState) stepNumericOrMemory(in instr) api.Trap {
	op := in.Op

	if vt, ok := loadOpType[op]; ok {
		if trap := vs.popExpect(api.ValueTypeI32); trap != api.TrapNone {
			return trap
		}
		vs.push(vt)
		return api.TrapNone
	}
	if vt, ok := storeOpType[op]; ok {
		if trap := vs.popExpect(vt); trap != api.TrapNone {
			return trap
		}
		return vs.popExpect(api.ValueTypeI32)
	}
	if pair, ok := unaryOps[op]; ok {
		if trap := vs.popExpect(pair[0]); trap != api.TrapNone {
			return trap
		}
		vs.push(pair[1])
		return api.TrapNone
	}
	if vt, ok := binaryOps[op]; ok {
		if trap := vs.popExpect(vt); trap != api.TrapNone {
			return trap
		}
		if trap := vs.popExpect(vt); trap != api.TrapNone {
			return trap
		}
		vs.push(vt)
		return api.TrapNone
	}
	if vt, ok := compareOps[op]; ok {
		if trap := vs.popExpect(vt); trap != api.TrapNone {
			return trap
		}
		if trap := vs.popExpect(vt); trap != api.TrapNone {
			return trap
		}
		vs.push(api.ValueTypeI32)
		return api.TrapNone
	}

	return api.TrapInvalidOpcode
}
