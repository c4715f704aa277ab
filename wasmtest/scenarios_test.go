package wasmtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/vm"
	"github.com/tetratelabs/warpwasm/wasm"
)

// noopAlloc satisfies vm.Allocator for tests that never call Alloc/Free
// directly; the arena inside wasm.Load does its own allocation.
type noopAlloc struct{}

func (noopAlloc) Alloc(size, align int) []byte { return make([]byte, size) }
func (noopAlloc) Free(buf []byte)              {}

func mustInstantiate(t *testing.T, bytes []byte) *wasm.Module {
	t.Helper()
	m, err := vm.Instantiate(bytes, noopAlloc{})
	require.NoError(t, err)
	return m
}

func callExported(t *testing.T, m *wasm.Module, name string, args ...api.Value) ([]api.Value, error) {
	t.Helper()
	idx, ok := vm.ExportFunc(m, name)
	require.True(t, ok, "export %q not found", name)
	container := vm.Open(noopAlloc{}, vm.DefaultLimits)
	defer container.Close()
	require.True(t, container.Attach(m))
	return container.Call(idx, args...)
}

// Scenario 1: a function that pushes i32.const 42 and ends.
func TestScenarioConstants(t *testing.T) {
	b := newModule()
	body := (&code{}).i32Const(42)
	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeI32}}, nil, body, "answer")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "answer")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(42), results[0].I32())
}

// Scenario 2: if_zero(x) returns x if nonzero, else -1.
func TestScenarioBranchIfZero(t *testing.T) {
	b := newModule()
	body := (&code{}).op(api.OpGetLocal)
	body.b = append(body.b, 0)
	body.block(api.OpIf, api.ValueTypeI32)
	body.op(api.OpGetLocal)
	body.b = append(body.b, 0)
	body.op(api.OpElse)
	body.i32Const(-1)
	body.op(api.OpEnd)
	b.addFunc(funcSig{
		params:  []api.ValueType{api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}, nil, body, "if_zero")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	for _, tc := range []struct {
		in, want int32
	}{
		{0, -1},
		{1, 1},
		{math.MinInt32, math.MinInt32},
	} {
		results, err := callExported(t, m, "if_zero", api.I32(tc.in))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, tc.want, results[0].I32(), "if_zero(%d)", tc.in)
	}
}

// Scenario 3: signed division, including the divide-by-zero and
// INT_MIN/-1 overflow traps.
func TestScenarioDivideTrap(t *testing.T) {
	b := newModule()
	body := (&code{}).op(api.OpGetLocal)
	body.b = append(body.b, 0)
	body.op(api.OpGetLocal)
	body.b = append(body.b, 1)
	body.op(api.OpI32DivS)
	b.addFunc(funcSig{
		params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		results: []api.ValueType{api.ValueTypeI32},
	}, nil, body, "div")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "div", api.I32(10), api.I32(3))
	require.NoError(t, err)
	assert.Equal(t, int32(3), results[0].I32())

	_, err = callExported(t, m, "div", api.I32(10), api.I32(0))
	assert.Equal(t, api.TrapI32DivideByZero, err)

	_, err = callExported(t, m, "div", api.I32(math.MinInt32), api.I32(-1))
	assert.Equal(t, api.TrapI32Overflow, err)
}

// Scenario 4: sum 1..100 using a loop and br_if, expecting 5050.
func TestScenarioLoopCounting(t *testing.T) {
	b := newModule()
	c := &code{}
	c.i32Const(1)
	c.idx(api.OpSetLocal, 0) // i = 1
	c.i32Const(0)
	c.idx(api.OpSetLocal, 1) // sum = 0

	c.block(api.OpBlock, api.ValueTypeVoid)
	c.block(api.OpLoop, api.ValueTypeVoid)
	c.idx(api.OpGetLocal, 0)
	c.i32Const(100)
	c.op(api.OpI32GtS)
	c.br(api.OpBrIf, 1) // break out of the block once i > 100

	c.idx(api.OpGetLocal, 1)
	c.idx(api.OpGetLocal, 0)
	c.op(api.OpI32Add)
	c.idx(api.OpSetLocal, 1) // sum += i

	c.idx(api.OpGetLocal, 0)
	c.i32Const(1)
	c.op(api.OpI32Add)
	c.idx(api.OpSetLocal, 0) // i += 1

	c.br(api.OpBr, 0) // continue the loop
	c.op(api.OpEnd)   // end loop
	c.op(api.OpEnd)   // end block

	c.idx(api.OpGetLocal, 1)

	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeI32}},
		[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, c, "sum_to_100")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "sum_to_100")
	require.NoError(t, err)
	assert.Equal(t, int32(5050), results[0].I32())
}

// Scenario 5: a store/load round trip, plus an out-of-bounds load that
// crosses the end of a single default page.
func TestScenarioMemoryRoundTrip(t *testing.T) {
	b := newModule().withMemory(1)

	rt := &code{}
	rt.i32Const(4)
	rt.i32Const(int32(uint32(0x11223344)))
	rt.memArg(api.OpI32Store, 2, 0)
	rt.i32Const(4)
	rt.memArg(api.OpI32Load, 2, 0)
	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeI32}}, nil, rt, "roundtrip")

	oob := &code{}
	oob.i32Const(65535)
	oob.memArg(api.OpI32Load, 2, 0)
	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeI32}}, nil, oob, "oob_load")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "roundtrip")
	require.NoError(t, err)
	assert.Equal(t, int32(uint32(0x11223344)), results[0].I32())

	_, err = callExported(t, m, "oob_load")
	assert.Equal(t, api.TrapInvalidMemoryAccess, err)
}

// A data segment must land in linear memory before any exported function
// runs, and its payload bytes must not overrun the arena sizing that also
// backs the code section.
func TestScenarioDataSegmentPreloadsMemory(t *testing.T) {
	b := newModule().withMemory(1).withData(8, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	rd := &code{}
	rd.i32Const(8)
	rd.memArg(api.OpI32Load, 2, 0)
	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeI32}}, nil, rd, "read_seed")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "read_seed")
	require.NoError(t, err)
	assert.Equal(t, int32(uint32(0xEFBEADDE)), results[0].I32()) // little-endian load
}

// Scenario 6: adding a signaling NaN to 1.0 must preserve and quiet its
// payload, never round-trip through a fresh canonical NaN.
func TestScenarioNaNPropagation(t *testing.T) {
	nanBits := uint32(0x7F800000 | 0x200000)
	input := math.Float32frombits(nanBits)

	b := newModule()
	c := &code{}
	c.f32Const(input)
	c.f32Const(1.0)
	c.op(api.OpF32Add)
	b.addFunc(funcSig{results: []api.ValueType{api.ValueTypeF32}}, nil, c, "nan_add")

	m := mustInstantiate(t, b.build())
	defer vm.Destroy(m)

	results, err := callExported(t, m, "nan_add")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := math.Float32bits(results[0].F32())
	assert.True(t, math.IsNaN(float64(results[0].F32())))
	assert.Equal(t, uint32(0x600000), got&0x7FFFFF, "mantissa payload")
	assert.Equal(t, uint32(0x400000), got&0x400000, "quiet bit must be set")
}
