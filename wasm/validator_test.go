package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tetratelabs/warpwasm/api"
)

// buildModule wires a single defined function of the given signature and
// code into a minimal Module, ready for Validate(m, 0).
func buildModule(sig FuncType, locals []api.ValueType, code []byte) *Module {
	fn := &Function{Locals: locals, Code: code}
	return &Module{
		Types: []FuncType{sig},
		Funcs: []FuncRef{{TypeIndex: 0, Defined: fn}},
	}
}

func codeOf(ops ...byte) []byte { return ops }

func TestValidateEmptyVoidFunction(t *testing.T) {
	m := buildModule(FuncType{}, nil, codeOf(byte(api.OpEnd)))
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateReturnsDeclaredResult(t *testing.T) {
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil,
		codeOf(byte(api.OpI32Const), 0x2A, byte(api.OpEnd)))
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateMissingResultIsStackUnderflow(t *testing.T) {
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil,
		codeOf(byte(api.OpEnd)))
	assert.Equal(t, api.TrapInvalidStackOperation, Validate(m, 0))
}

func TestValidateResultTypeMismatch(t *testing.T) {
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil,
		codeOf(byte(api.OpF32Const), 0x00, 0x00, 0x00, 0x00, byte(api.OpEnd)))
	assert.Equal(t, api.TrapStackTypeMismatch, Validate(m, 0))
}

func TestValidateIfElseMismatch(t *testing.T) {
	// else with no matching if: the first opcode the validator sees is
	// else while the outermost frame is the function frame, not an if.
	m := buildModule(FuncType{}, nil, codeOf(byte(api.OpElse), byte(api.OpEnd)))
	assert.Equal(t, api.TrapIfElseMismatch, Validate(m, 0))
}

func TestValidateValuefulIfWithNoElse(t *testing.T) {
	// i32.const 1; if (i32) i32.const 0 end end -- valueful if falling
	// straight through to end without an else arm.
	code := codeOf(
		byte(api.OpI32Const), 0x01,
		byte(api.OpIf), byte(api.ValueTypeI32),
		byte(api.OpI32Const), 0x00,
		byte(api.OpEnd),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil, code)
	assert.Equal(t, api.TrapValuefulIfWithNoElse, Validate(m, 0))
}

func TestValidateIfElseBothArmsBalance(t *testing.T) {
	code := codeOf(
		byte(api.OpI32Const), 0x01,
		byte(api.OpIf), byte(api.ValueTypeI32),
		byte(api.OpI32Const), 0x00,
		byte(api.OpElse),
		byte(api.OpI32Const), 0x01,
		byte(api.OpEnd),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil, code)
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateBranchDepthPastFunctionFrame(t *testing.T) {
	// br 1 with only the function frame open (depth 0) is already out of
	// range; depth 1 goes one past that.
	code := codeOf(byte(api.OpBr), 0x01, byte(api.OpEnd))
	m := buildModule(FuncType{}, nil, code)
	assert.Equal(t, api.TrapInvalidStackOperation, Validate(m, 0))
}

func TestValidateBrTableTargetArityMismatch(t *testing.T) {
	// Outer block yields i32, inner block yields nothing; br_table mixing
	// them as default/target must be rejected.
	code := codeOf(
		byte(api.OpBlock), byte(api.ValueTypeI32),
		byte(api.OpBlock), byte(api.ValueTypeVoid),
		byte(api.OpI32Const), 0x00,
		byte(api.OpBrTable), 0x01, 0x00, 0x01, // one target (depth 0), default depth 1
		byte(api.OpEnd),
		byte(api.OpI32Const), 0x00,
		byte(api.OpEnd),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil, code)
	assert.Equal(t, api.TrapInvalidBranchTable, Validate(m, 0))
}

func TestValidateInvalidLocalIndex(t *testing.T) {
	m := buildModule(FuncType{}, nil, codeOf(byte(api.OpGetLocal), 0x00, byte(api.OpEnd)))
	assert.Equal(t, api.TrapInvalidLocalIdx, Validate(m, 0))
}

func TestValidateLocalIndexCoversParamsThenLocals(t *testing.T) {
	sig := FuncType{Params: []api.ValueType{api.ValueTypeI32}}
	code := codeOf(
		byte(api.OpGetLocal), 0x00, byte(api.OpDrop),
		byte(api.OpGetLocal), 0x01, byte(api.OpDrop),
		byte(api.OpEnd),
	)
	m := buildModule(sig, []api.ValueType{api.ValueTypeF64}, code)
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateInvalidGlobalIndex(t *testing.T) {
	m := buildModule(FuncType{}, nil, codeOf(byte(api.OpGetGlobal), 0x00, byte(api.OpDrop), byte(api.OpEnd)))
	assert.Equal(t, api.TrapInvalidGlobalIdx, Validate(m, 0))
}

func TestValidateSetImmutableGlobalTraps(t *testing.T) {
	m := buildModule(FuncType{}, nil, codeOf(
		byte(api.OpI32Const), 0x00,
		byte(api.OpSetGlobal), 0x00,
		byte(api.OpEnd),
	))
	m.Globals = []Global{{Type: api.ValueTypeI32, Mutable: false}}
	assert.Equal(t, api.TrapInvalidGlobalIdx, Validate(m, 0))
}

func TestValidateInvalidFuncIdxOnCall(t *testing.T) {
	m := buildModule(FuncType{}, nil, codeOf(byte(api.OpCall), 0x05, byte(api.OpEnd)))
	assert.Equal(t, api.TrapInvalidFuncIdx, Validate(m, 0))
}

func TestValidateUnreachableMakesStackPolymorphic(t *testing.T) {
	// unreachable followed by a value-producing opcode, then consumed: no
	// underflow or type mismatch even though nothing was truly pushed.
	code := codeOf(
		byte(api.OpUnreachable),
		byte(api.OpI32Add),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil, code)
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateSelectTypeMismatch(t *testing.T) {
	code := codeOf(
		byte(api.OpI32Const), 0x00,
		byte(api.OpF32Const), 0x00, 0x00, 0x00, 0x00,
		byte(api.OpI32Const), 0x01,
		byte(api.OpSelect),
		byte(api.OpDrop),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{}, nil, code)
	assert.Equal(t, api.TrapStackTypeMismatch, Validate(m, 0))
}

func TestValidateLoopBranchTargetsLoopStart(t *testing.T) {
	// A loop whose br targets itself must validate: the branch arity of a
	// loop frame is always void regardless of the loop's declared
	// fall-through signature.
	code := codeOf(
		byte(api.OpLoop), byte(api.ValueTypeVoid),
		byte(api.OpBr), 0x00,
		byte(api.OpEnd),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{}, nil, code)
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestValidateMissingFinalEndOnFunction(t *testing.T) {
	// Body decodes fine, but its only end closes the nested block, so the
	// function frame is still open when the code runs out.
	code := codeOf(
		byte(api.OpBlock), byte(api.ValueTypeVoid),
		byte(api.OpEnd),
	)
	m := buildModule(FuncType{}, nil, code)
	assert.Equal(t, api.TrapInvalidEndOpcode, Validate(m, 0))
}

func TestValidateImportedFuncIdxRejected(t *testing.T) {
	m := &Module{
		Types: []FuncType{{}},
		Funcs: []FuncRef{{TypeIndex: 0, Imported: true}},
	}
	assert.Equal(t, api.TrapInvalidFuncIdx, Validate(m, 0))
}
