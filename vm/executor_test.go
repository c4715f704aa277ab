package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

type noopAlloc struct{}

func (noopAlloc) Alloc(size, align int) []byte { return make([]byte, size) }
func (noopAlloc) Free(buf []byte)              {}

// buildAndValidate wires a single defined function and runs the structural
// validator over it, populating its jump-resolution tables the same way
// loading a real binary would.
func buildAndValidate(t *testing.T, sig wasm.FuncType, locals []api.ValueType, code []byte) *wasm.Module {
	t.Helper()
	fn := &wasm.Function{Locals: locals, Code: code}
	m := &wasm.Module{
		Types: []wasm.FuncType{sig},
		Funcs: []wasm.FuncRef{{TypeIndex: 0, Defined: fn}},
	}
	require.Equal(t, api.TrapNone, wasm.Validate(m, 0))
	return m
}

func TestCallAddsTwoParams(t *testing.T) {
	sig := wasm.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	code := []byte{
		byte(api.OpGetLocal), 0x00,
		byte(api.OpGetLocal), 0x01,
		byte(api.OpI32Add),
		byte(api.OpEnd),
	}
	m := buildAndValidate(t, sig, nil, code)

	v := Open(noopAlloc{}, DefaultLimits)
	require.True(t, v.Attach(m))
	results, err := v.Call(0, api.I32(2), api.I32(40))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(42), results[0].I32())
}

func TestCallDivideByZeroTraps(t *testing.T) {
	sig := wasm.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	code := []byte{
		byte(api.OpGetLocal), 0x00,
		byte(api.OpI32Const), 0x00,
		byte(api.OpI32DivS),
		byte(api.OpEnd),
	}
	m := buildAndValidate(t, sig, nil, code)

	v := Open(noopAlloc{}, DefaultLimits)
	require.True(t, v.Attach(m))
	_, err := v.Call(0, api.I32(10))
	assert.Equal(t, api.TrapI32DivideByZero, err)
	assert.Equal(t, api.TrapI32DivideByZero, v.LastError())
}

func TestLoopAccumulatesViaBranch(t *testing.T) {
	// local 0: counter, starts at caller-supplied n.
	// local 1: accumulator, starts at 0.
	// loop: if counter != 0 { acc += counter; counter -= 1; br loop }
	// return acc
	sig := wasm.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	code := []byte{
		byte(api.OpLoop), byte(api.ValueTypeVoid),
		byte(api.OpGetLocal), 0x00,
		byte(api.OpIf), byte(api.ValueTypeVoid),
		byte(api.OpGetLocal), 0x01,
		byte(api.OpGetLocal), 0x00,
		byte(api.OpI32Add),
		byte(api.OpSetLocal), 0x01,
		byte(api.OpGetLocal), 0x00,
		byte(api.OpI32Const), 0x01,
		byte(api.OpI32Sub),
		byte(api.OpSetLocal), 0x00,
		byte(api.OpBr), 0x01, // branch to the loop (depth 1 from inside the if)
		byte(api.OpEnd), // end if
		byte(api.OpEnd), // end loop
		byte(api.OpGetLocal), 0x01,
		byte(api.OpEnd),
	}
	m := buildAndValidate(t, sig, []api.ValueType{api.ValueTypeI32}, code)

	v := Open(noopAlloc{}, DefaultLimits)
	require.True(t, v.Attach(m))
	results, err := v.Call(0, api.I32(5))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(15), results[0].I32()) // 5+4+3+2+1
}

func TestNestedCallPropagatesResult(t *testing.T) {
	// Function 0: double(x) = x + x
	// Function 1: calls double(21)
	doubleSig := wasm.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	doubleCode := []byte{
		byte(api.OpGetLocal), 0x00,
		byte(api.OpGetLocal), 0x00,
		byte(api.OpI32Add),
		byte(api.OpEnd),
	}
	callerSig := wasm.FuncType{Results: []api.ValueType{api.ValueTypeI32}}
	callerCode := []byte{
		byte(api.OpI32Const), 0x15, // 21
		byte(api.OpCall), 0x00,
		byte(api.OpEnd),
	}

	doubleFn := &wasm.Function{Code: doubleCode}
	callerFn := &wasm.Function{Code: callerCode}
	m := &wasm.Module{
		Types: []wasm.FuncType{doubleSig, callerSig},
		Funcs: []wasm.FuncRef{
			{TypeIndex: 0, Defined: doubleFn},
			{TypeIndex: 1, Defined: callerFn},
		},
	}
	require.Equal(t, api.TrapNone, wasm.Validate(m, 0))
	require.Equal(t, api.TrapNone, wasm.Validate(m, 1))

	v := Open(noopAlloc{}, DefaultLimits)
	require.True(t, v.Attach(m))
	results, err := v.Call(1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(42), results[0].I32())
}

func TestUnimplementedOpcodeTrapsAtExecution(t *testing.T) {
	// tee_local is structurally accepted by the validator but must trap at
	// execution time.
	sig := wasm.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	code := []byte{
		byte(api.OpGetLocal), 0x00,
		byte(api.OpTeeLocal), 0x00,
		byte(api.OpEnd),
	}
	m := buildAndValidate(t, sig, nil, code)

	v := Open(noopAlloc{}, DefaultLimits)
	require.True(t, v.Attach(m))
	_, err := v.Call(0, api.I32(7))
	assert.Equal(t, api.TrapUnimplementedOpcode, err)
}
