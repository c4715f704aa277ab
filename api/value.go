package api

import "math"

// Value is a tagged 64-bit machine word: the operand and call stacks both
// carry these. Int-to-float conversions of the same width are always bit
// reinterprets, never numeric conversions, so NaN payloads survive a
// round trip through the stack untouched.
type Value struct {
	Type    ValueType
	payload uint64
}

func I32(v int32) Value  { return Value{Type: ValueTypeI32, payload: uint64(uint32(v))} }
func U32(v uint32) Value { return Value{Type: ValueTypeI32, payload: uint64(v)} }
func I64(v int64) Value  { return Value{Type: ValueTypeI64, payload: uint64(v)} }
func U64(v uint64) Value { return Value{Type: ValueTypeI64, payload: v} }
func F32(v float32) Value {
	return Value{Type: ValueTypeF32, payload: uint64(math.Float32bits(v))}
}
func F64(v float64) Value { return Value{Type: ValueTypeF64, payload: math.Float64bits(v)} }

func (v Value) I32() int32   { return int32(uint32(v.payload)) }
func (v Value) U32() uint32  { return uint32(v.payload) }
func (v Value) I64() int64   { return int64(v.payload) }
func (v Value) U64() uint64  { return v.payload }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.payload)) }
func (v Value) F64() float64 { return math.Float64frombits(v.payload) }
func (v Value) Raw() uint64  { return v.payload }

// RawValue builds a Value directly from its bit pattern, used when a cell
// (global/local) is carried generically and its type is known separately.
func RawValue(t ValueType, bits uint64) Value { return Value{Type: t, payload: bits} }
