package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tetratelabs/warpwasm/api"
)

func TestI32BinarySignedRemOverflowReturnsZero(t *testing.T) {
	r, trap := i32Binary(api.OpI32RemS, math.MinInt32, uint32(math.MinInt32), -1, uint32(int32(-1)))
	assert.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int32(0), r)
}

func TestI32BinarySignedDivOverflowTraps(t *testing.T) {
	_, trap := i32Binary(api.OpI32DivS, math.MinInt32, uint32(math.MinInt32), -1, uint32(int32(-1)))
	assert.Equal(t, api.TrapI32Overflow, trap)
}

func TestI32BinaryDivByZeroTraps(t *testing.T) {
	_, trap := i32Binary(api.OpI32DivS, 10, 10, 0, 0)
	assert.Equal(t, api.TrapI32DivideByZero, trap)
	_, trap = i32Binary(api.OpI32DivU, 10, 10, 0, 0)
	assert.Equal(t, api.TrapI32DivideByZero, trap)
}

func TestI64BinarySignedRemOverflowReturnsZero(t *testing.T) {
	r, trap := i64Binary(api.OpI64RemS, math.MinInt64, uint64(math.MinInt64), -1, uint64(int64(-1)))
	assert.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int64(0), r)
}

func TestI32BinaryUnsignedDivTruncates(t *testing.T) {
	r, trap := i32Binary(api.OpI32DivU, 7, 7, 2, 2)
	assert.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int32(3), r)
}

func TestI32CompareUnsignedOrdersAsUnsigned(t *testing.T) {
	// -1 as a signed i32 is the largest possible u32, so LtU must see it
	// as greater than 1 despite LtS seeing -1 as less than 1.
	assert.Equal(t, int32(0), i32Compare(api.OpI32LtU, -1, uint32(0xFFFFFFFF), 1, 1))
	assert.Equal(t, int32(1), i32Compare(api.OpI32LtS, -1, uint32(0xFFFFFFFF), 1, 1))
}

func TestTruncI32RangeAndOverflow(t *testing.T) {
	v, trap := truncI32(3.9)
	assert.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int32(3), v)

	_, trap = truncI32(2147483648.0)
	assert.Equal(t, api.TrapI32Overflow, trap)

	_, trap = truncI32(math.NaN())
	assert.Equal(t, api.TrapInvalidIntegerConversion, trap)
}

func TestTruncU32RejectsNegative(t *testing.T) {
	_, trap := truncU32(-1.0)
	assert.Equal(t, api.TrapI32Overflow, trap)
}

func TestTruncI64RangeAndOverflow(t *testing.T) {
	v, trap := truncI64(-3.9)
	assert.Equal(t, api.TrapNone, trap)
	assert.Equal(t, int64(-3), v)

	_, trap = truncI64(math.NaN())
	assert.Equal(t, api.TrapInvalidIntegerConversion, trap)
}

func TestNanResult32PropagatesFirstNaNOperand(t *testing.T) {
	nan := math.Float32frombits(0x7FA00001) // signaling-ish NaN, quiet bit unset
	r := nanResult32(nan, 1.0)
	assert.True(t, math.IsNaN(float64(r)))
	assert.NotZero(t, math.Float32bits(r)&f32QuietBit)
}

func TestNanResult32UsesSecondOperandWhenFirstIsNotNaN(t *testing.T) {
	nan := math.Float32frombits(0x7FA00001)
	r := nanResult32(1.0, nan)
	assert.True(t, math.IsNaN(float64(r)))
	assert.NotZero(t, math.Float32bits(r)&f32QuietBit)
}

func TestF32MinMaxSignedZero(t *testing.T) {
	negZero := math.Float32frombits(0x80000000)
	posZero := float32(0)
	assert.Equal(t, negZero, f32Min(negZero, posZero))
	assert.Equal(t, negZero, f32Min(posZero, negZero))
	assert.Equal(t, posZero, f32Max(negZero, posZero))
	assert.Equal(t, posZero, f32Max(posZero, negZero))
}

func TestF64MinMaxSignedZero(t *testing.T) {
	negZero := math.Float64frombits(0x8000000000000000)
	posZero := float64(0)
	assert.Equal(t, negZero, f64Min(negZero, posZero))
	assert.Equal(t, posZero, f64Max(negZero, posZero))
}

func TestF32CompareOrdering(t *testing.T) {
	assert.Equal(t, int32(1), f32Compare(api.OpF32Lt, 1.0, 2.0))
	assert.Equal(t, int32(0), f32Compare(api.OpF32Lt, 2.0, 1.0))
	assert.Equal(t, int32(1), f32Compare(api.OpF32Eq, 2.0, 2.0))
}
