package vm

import (
	"math"
	"math/bits"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/wasm"
)

const (
	f32QuietBit uint32 = 0x00400000
	f64QuietBit uint64 = 0x0008000000000000
)

// nanResult32/64 implement §4.6/§9's NaN-propagation rule: when an
// operation must return a NaN, the result is one of the NaN inputs with
// its quiet bit OR-ed in — never a round trip through a fresh canonical
// NaN, which would destroy the payload §8 property 6 requires preserved.
func nanResult32(a, b float32) float32 {
	if math.IsNaN(float64(a)) {
		return math.Float32frombits(math.Float32bits(a) | f32QuietBit)
	}
	return math.Float32frombits(math.Float32bits(b) | f32QuietBit)
}

func nanResult64(a, b float64) float64 {
	if math.IsNaN(a) {
		return math.Float64frombits(math.Float64bits(a) | f64QuietBit)
	}
	return math.Float64frombits(math.Float64bits(b) | f64QuietBit)
}

func f32Min(a, b float32) float32 {
	if a < b {
		return a
	}
	if b < a {
		return b
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	return a
}

func f32Max(a, b float32) float32 {
	if a > b {
		return a
	}
	if b > a {
		return b
	}
	if a == 0 && b == 0 {
		if !math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	return a
}

func f64Min(a, b float64) float64 {
	if a < b {
		return a
	}
	if b < a {
		return b
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return a
}

func f64Max(a, b float64) float64 {
	if a > b {
		return a
	}
	if b > a {
		return b
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) {
			return a
		}
		return b
	}
	return a
}

// truncI32/truncU32/truncI64/truncU64 implement *.trunc_* range trapping:
// NaN traps invalid-integer-conversion, out-of-range traps overflow.
func truncI32(f float64) (int32, api.Trap) {
	if math.IsNaN(f) {
		return 0, api.TrapInvalidIntegerConversion
	}
	t := math.Trunc(f)
	if t < -2147483648 || t >= 2147483648 {
		return 0, api.TrapI32Overflow
	}
	return int32(t), api.TrapNone
}

func truncU32(f float64) (uint32, api.Trap) {
	if math.IsNaN(f) {
		return 0, api.TrapInvalidIntegerConversion
	}
	t := math.Trunc(f)
	if t < 0 || t >= 4294967296 {
		return 0, api.TrapI32Overflow
	}
	return uint32(t), api.TrapNone
}

func truncI64(f float64) (int64, api.Trap) {
	if math.IsNaN(f) {
		return 0, api.TrapInvalidIntegerConversion
	}
	t := math.Trunc(f)
	if t < -9223372036854775808 || t >= 9223372036854775808 {
		return 0, api.TrapI64Overflow
	}
	return int64(t), api.TrapNone
}

func truncU64(f float64) (uint64, api.Trap) {
	if math.IsNaN(f) {
		return 0, api.TrapInvalidIntegerConversion
	}
	t := math.Trunc(f)
	if t < 0 || t >= 18446744073709551616 {
		return 0, api.TrapI64Overflow
	}
	return uint64(t), api.TrapNone
}

// execNumericOp handles eqz/compare/arithmetic/conversion opcodes. ok is
// false for anything this function doesn't own.
func (v *VM) execNumericOp(cf *callFrame, in wasm.Instr) (api.Trap, bool) {
	op := in.Op
	switch op {

	// --- i32 ---
	case api.OpI32Eqz:
		a := v.popOperand().I32()
		return v.push32(cf, in, b2i(a == 0)), true
	case api.OpI32Clz:
		a := v.popOperand().U32()
		return v.push32(cf, in, int32(bits.LeadingZeros32(a))), true
	case api.OpI32Ctz:
		a := v.popOperand().U32()
		return v.push32(cf, in, int32(bits.TrailingZeros32(a))), true
	case api.OpI32Popcnt:
		a := v.popOperand().U32()
		return v.push32(cf, in, int32(bits.OnesCount32(a))), true

	case api.OpI32Eq, api.OpI32Ne, api.OpI32LtS, api.OpI32LtU, api.OpI32GtS, api.OpI32GtU,
		api.OpI32LeS, api.OpI32LeU, api.OpI32GeS, api.OpI32GeU:
		b := v.popOperand()
		a := v.popOperand()
		return v.push32(cf, in, i32Compare(op, a.I32(), a.U32(), b.I32(), b.U32())), true

	case api.OpI32Add, api.OpI32Sub, api.OpI32Mul, api.OpI32DivS, api.OpI32DivU,
		api.OpI32RemS, api.OpI32RemU, api.OpI32And, api.OpI32Or, api.OpI32Xor,
		api.OpI32Shl, api.OpI32ShrS, api.OpI32ShrU, api.OpI32Rotl, api.OpI32Rotr:
		b := v.popOperand()
		a := v.popOperand()
		r, trap := i32Binary(op, a.I32(), a.U32(), b.I32(), b.U32())
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push32(cf, in, r), true

	// --- i64 ---
	case api.OpI64Eqz:
		a := v.popOperand().I64()
		return v.push32(cf, in, b2i(a == 0)), true
	case api.OpI64Clz:
		a := v.popOperand().U64()
		return v.push64(cf, in, int64(bits.LeadingZeros64(a))), true
	case api.OpI64Ctz:
		a := v.popOperand().U64()
		return v.push64(cf, in, int64(bits.TrailingZeros64(a))), true
	case api.OpI64Popcnt:
		a := v.popOperand().U64()
		return v.push64(cf, in, int64(bits.OnesCount64(a))), true

	case api.OpI64Eq, api.OpI64Ne, api.OpI64LtS, api.OpI64LtU, api.OpI64GtS, api.OpI64GtU,
		api.OpI64LeS, api.OpI64LeU, api.OpI64GeS, api.OpI64GeU:
		b := v.popOperand()
		a := v.popOperand()
		return v.push32(cf, in, i64Compare(op, a.I64(), a.U64(), b.I64(), b.U64())), true

	case api.OpI64Add, api.OpI64Sub, api.OpI64Mul, api.OpI64DivS, api.OpI64DivU,
		api.OpI64RemS, api.OpI64RemU, api.OpI64And, api.OpI64Or, api.OpI64Xor,
		api.OpI64Shl, api.OpI64ShrS, api.OpI64ShrU, api.OpI64Rotl, api.OpI64Rotr:
		b := v.popOperand()
		a := v.popOperand()
		r, trap := i64Binary(op, a.I64(), a.U64(), b.I64(), b.U64())
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push64(cf, in, r), true

	// --- f32 ---
	case api.OpF32Neg:
		a := v.popOperand().F32()
		return v.pushF32(cf, in, math.Float32frombits(math.Float32bits(a)^0x80000000)), true
	case api.OpF32Abs:
		a := v.popOperand().F32()
		return v.pushF32(cf, in, math.Float32frombits(math.Float32bits(a)&^0x80000000)), true
	case api.OpF32Sqrt:
		a := v.popOperand().F32()
		if math.IsNaN(float64(a)) {
			return v.pushF32(cf, in, nanResult32(a, a)), true
		}
		return v.pushF32(cf, in, float32(math.Sqrt(float64(a)))), true
	case api.OpF32Ceil, api.OpF32Floor, api.OpF32Trunc, api.OpF32Nearest:
		a := v.popOperand().F32()
		if math.IsNaN(float64(a)) {
			return v.pushF32(cf, in, nanResult32(a, a)), true
		}
		var r float64
		switch op {
		case api.OpF32Ceil:
			r = math.Ceil(float64(a))
		case api.OpF32Floor:
			r = math.Floor(float64(a))
		case api.OpF32Trunc:
			r = math.Trunc(float64(a))
		case api.OpF32Nearest:
			r = math.RoundToEven(float64(a))
		}
		return v.pushF32(cf, in, float32(r)), true

	case api.OpF32Eq, api.OpF32Ne, api.OpF32Lt, api.OpF32Gt, api.OpF32Le, api.OpF32Ge:
		b := v.popOperand().F32()
		a := v.popOperand().F32()
		return v.push32(cf, in, f32Compare(op, a, b)), true

	case api.OpF32Copysign:
		b := v.popOperand().F32()
		a := v.popOperand().F32()
		return v.pushF32(cf, in, float32(math.Copysign(float64(a), float64(b)))), true

	case api.OpF32Add, api.OpF32Sub, api.OpF32Mul, api.OpF32Div, api.OpF32Min, api.OpF32Max:
		b := v.popOperand().F32()
		a := v.popOperand().F32()
		if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
			return v.pushF32(cf, in, nanResult32(a, b)), true
		}
		var r float32
		switch op {
		case api.OpF32Add:
			r = a + b
		case api.OpF32Sub:
			r = a - b
		case api.OpF32Mul:
			r = a * b
		case api.OpF32Div:
			r = a / b
		case api.OpF32Min:
			r = f32Min(a, b)
		case api.OpF32Max:
			r = f32Max(a, b)
		}
		return v.pushF32(cf, in, r), true

	// --- f64 ---
	case api.OpF64Neg:
		a := v.popOperand().F64()
		return v.pushF64(cf, in, math.Float64frombits(math.Float64bits(a)^0x8000000000000000)), true
	case api.OpF64Abs:
		a := v.popOperand().F64()
		return v.pushF64(cf, in, math.Float64frombits(math.Float64bits(a)&^0x8000000000000000)), true
	case api.OpF64Sqrt:
		a := v.popOperand().F64()
		if math.IsNaN(a) {
			return v.pushF64(cf, in, nanResult64(a, a)), true
		}
		return v.pushF64(cf, in, math.Sqrt(a)), true
	case api.OpF64Ceil, api.OpF64Floor, api.OpF64Trunc, api.OpF64Nearest:
		a := v.popOperand().F64()
		if math.IsNaN(a) {
			return v.pushF64(cf, in, nanResult64(a, a)), true
		}
		var r float64
		switch op {
		case api.OpF64Ceil:
			r = math.Ceil(a)
		case api.OpF64Floor:
			r = math.Floor(a)
		case api.OpF64Trunc:
			r = math.Trunc(a)
		case api.OpF64Nearest:
			r = math.RoundToEven(a)
		}
		return v.pushF64(cf, in, r), true

	case api.OpF64Eq, api.OpF64Ne, api.OpF64Lt, api.OpF64Gt, api.OpF64Le, api.OpF64Ge:
		b := v.popOperand().F64()
		a := v.popOperand().F64()
		return v.push32(cf, in, f64Compare(op, a, b)), true

	case api.OpF64Copysign:
		b := v.popOperand().F64()
		a := v.popOperand().F64()
		return v.pushF64(cf, in, math.Copysign(a, b)), true

	case api.OpF64Add, api.OpF64Sub, api.OpF64Mul, api.OpF64Div, api.OpF64Min, api.OpF64Max:
		b := v.popOperand().F64()
		a := v.popOperand().F64()
		if math.IsNaN(a) || math.IsNaN(b) {
			return v.pushF64(cf, in, nanResult64(a, b)), true
		}
		var r float64
		switch op {
		case api.OpF64Add:
			r = a + b
		case api.OpF64Sub:
			r = a - b
		case api.OpF64Mul:
			r = a * b
		case api.OpF64Div:
			r = a / b
		case api.OpF64Min:
			r = f64Min(a, b)
		case api.OpF64Max:
			r = f64Max(a, b)
		}
		return v.pushF64(cf, in, r), true

	// --- conversions ---
	case api.OpI32WrapI64:
		a := v.popOperand().I64()
		return v.push32(cf, in, int32(uint32(uint64(a)))), true

	case api.OpI32TruncSF32, api.OpI32TruncUF32:
		a := v.popOperand().F32()
		var r int32
		var trap api.Trap
		if op == api.OpI32TruncSF32 {
			r, trap = truncI32(float64(a))
		} else {
			var u uint32
			u, trap = truncU32(float64(a))
			r = int32(u)
		}
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push32(cf, in, r), true

	case api.OpI32TruncSF64, api.OpI32TruncUF64:
		a := v.popOperand().F64()
		var r int32
		var trap api.Trap
		if op == api.OpI32TruncSF64 {
			r, trap = truncI32(a)
		} else {
			var u uint32
			u, trap = truncU32(a)
			r = int32(u)
		}
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push32(cf, in, r), true

	case api.OpI64ExtendSI32:
		a := v.popOperand().I32()
		return v.push64(cf, in, int64(a)), true
	case api.OpI64ExtendUI32:
		a := v.popOperand().U32()
		return v.push64(cf, in, int64(uint64(a))), true

	case api.OpI64TruncSF32, api.OpI64TruncUF32:
		a := v.popOperand().F32()
		var r int64
		var trap api.Trap
		if op == api.OpI64TruncSF32 {
			r, trap = truncI64(float64(a))
		} else {
			var u uint64
			u, trap = truncU64(float64(a))
			r = int64(u)
		}
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push64(cf, in, r), true

	case api.OpI64TruncSF64, api.OpI64TruncUF64:
		a := v.popOperand().F64()
		var r int64
		var trap api.Trap
		if op == api.OpI64TruncSF64 {
			r, trap = truncI64(a)
		} else {
			var u uint64
			u, trap = truncU64(a)
			r = int64(u)
		}
		if trap != api.TrapNone {
			return trap, true
		}
		return v.push64(cf, in, r), true

	case api.OpF32ConvertSI32:
		a := v.popOperand().I32()
		return v.pushF32(cf, in, float32(a)), true
	case api.OpF32ConvertUI32:
		a := v.popOperand().U32()
		return v.pushF32(cf, in, float32(a)), true
	case api.OpF32ConvertSI64:
		a := v.popOperand().I64()
		return v.pushF32(cf, in, float32(a)), true
	case api.OpF32ConvertUI64:
		a := v.popOperand().U64()
		return v.pushF32(cf, in, float32(a)), true
	case api.OpF32DemoteF64:
		a := v.popOperand().F64()
		if math.IsNaN(a) {
			return v.pushF32(cf, in, float32(nanResult64(a, a))), true
		}
		return v.pushF32(cf, in, float32(a)), true

	case api.OpF64ConvertSI32:
		a := v.popOperand().I32()
		return v.pushF64(cf, in, float64(a)), true
	case api.OpF64ConvertUI32:
		a := v.popOperand().U32()
		return v.pushF64(cf, in, float64(a)), true
	case api.OpF64ConvertSI64:
		a := v.popOperand().I64()
		return v.pushF64(cf, in, float64(a)), true
	case api.OpF64ConvertUI64:
		a := v.popOperand().U64()
		return v.pushF64(cf, in, float64(a)), true
	case api.OpF64PromoteF32:
		a := v.popOperand().F32()
		if math.IsNaN(float64(a)) {
			return v.pushF64(cf, in, float64(nanResult32(a, a))), true
		}
		return v.pushF64(cf, in, float64(a)), true

	case api.OpI32ReinterpretF32:
		a := v.popOperand().F32()
		return v.push32(cf, in, int32(math.Float32bits(a))), true
	case api.OpI64ReinterpretF64:
		a := v.popOperand().F64()
		return v.push64(cf, in, int64(math.Float64bits(a))), true
	case api.OpF32ReinterpretI32:
		a := v.popOperand().I32()
		return v.pushF32(cf, in, math.Float32frombits(uint32(a))), true
	case api.OpF64ReinterpretI64:
		a := v.popOperand().I64()
		return v.pushF64(cf, in, math.Float64frombits(uint64(a))), true
	}

	return api.TrapNone, false
}

func (v *VM) push32(cf *callFrame, in wasm.Instr, val int32) api.Trap {
	cf.cursor = in.Next
	return v.pushOperand(api.I32(val))
}

func (v *VM) push64(cf *callFrame, in wasm.Instr, val int64) api.Trap {
	cf.cursor = in.Next
	return v.pushOperand(api.I64(val))
}

func (v *VM) pushF32(cf *callFrame, in wasm.Instr, val float32) api.Trap {
	cf.cursor = in.Next
	return v.pushOperand(api.F32(val))
}

func (v *VM) pushF64(cf *callFrame, in wasm.Instr, val float64) api.Trap {
	cf.cursor = in.Next
	return v.pushOperand(api.F64(val))
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func i32Compare(op api.Opcode, as int32, au uint32, bs int32, bu uint32) int32 {
	switch op {
	case api.OpI32Eq:
		return b2i(as == bs)
	case api.OpI32Ne:
		return b2i(as != bs)
	case api.OpI32LtS:
		return b2i(as < bs)
	case api.OpI32LtU:
		return b2i(au < bu)
	case api.OpI32GtS:
		return b2i(as > bs)
	case api.OpI32GtU:
		return b2i(au > bu)
	case api.OpI32LeS:
		return b2i(as <= bs)
	case api.OpI32LeU:
		return b2i(au <= bu)
	case api.OpI32GeS:
		return b2i(as >= bs)
	case api.OpI32GeU:
		return b2i(au >= bu)
	}
	return 0
}

func i64Compare(op api.Opcode, as int64, au uint64, bs int64, bu uint64) int32 {
	switch op {
	case api.OpI64Eq:
		return b2i(as == bs)
	case api.OpI64Ne:
		return b2i(as != bs)
	case api.OpI64LtS:
		return b2i(as < bs)
	case api.OpI64LtU:
		return b2i(au < bu)
	case api.OpI64GtS:
		return b2i(as > bs)
	case api.OpI64GtU:
		return b2i(au > bu)
	case api.OpI64LeS:
		return b2i(as <= bs)
	case api.OpI64LeU:
		return b2i(au <= bu)
	case api.OpI64GeS:
		return b2i(as >= bs)
	case api.OpI64GeU:
		return b2i(au >= bu)
	}
	return 0
}

func f32Compare(op api.Opcode, a, b float32) int32 {
	switch op {
	case api.OpF32Eq:
		return b2i(a == b)
	case api.OpF32Ne:
		return b2i(a != b)
	case api.OpF32Lt:
		return b2i(a < b)
	case api.OpF32Gt:
		return b2i(a > b)
	case api.OpF32Le:
		return b2i(a <= b)
	case api.OpF32Ge:
		return b2i(a >= b)
	}
	return 0
}

func f64Compare(op api.Opcode, a, b float64) int32 {
	switch op {
	case api.OpF64Eq:
		return b2i(a == b)
	case api.OpF64Ne:
		return b2i(a != b)
	case api.OpF64Lt:
		return b2i(a < b)
	case api.OpF64Gt:
		return b2i(a > b)
	case api.OpF64Le:
		return b2i(a <= b)
	case api.OpF64Ge:
		return b2i(a >= b)
	}
	return 0
}

// i32Binary implements every i32 arithmetic/bitwise opcode. Signed
// remainder at INT_MIN/-1 is frozen to return zero rather than trap, per
// this repository's resolved Open Question.
func i32Binary(op api.Opcode, as int32, au uint32, bs int32, bu uint32) (int32, api.Trap) {
	switch op {
	case api.OpI32Add:
		return int32(au + bu), api.TrapNone
	case api.OpI32Sub:
		return int32(au - bu), api.TrapNone
	case api.OpI32Mul:
		return int32(au * bu), api.TrapNone
	case api.OpI32DivS:
		if bs == 0 {
			return 0, api.TrapI32DivideByZero
		}
		if as == math.MinInt32 && bs == -1 {
			return 0, api.TrapI32Overflow
		}
		return as / bs, api.TrapNone
	case api.OpI32DivU:
		if bu == 0 {
			return 0, api.TrapI32DivideByZero
		}
		return int32(au / bu), api.TrapNone
	case api.OpI32RemS:
		if bs == 0 {
			return 0, api.TrapI32DivideByZero
		}
		if as == math.MinInt32 && bs == -1 {
			return 0, api.TrapNone
		}
		return as % bs, api.TrapNone
	case api.OpI32RemU:
		if bu == 0 {
			return 0, api.TrapI32DivideByZero
		}
		return int32(au % bu), api.TrapNone
	case api.OpI32And:
		return int32(au & bu), api.TrapNone
	case api.OpI32Or:
		return int32(au | bu), api.TrapNone
	case api.OpI32Xor:
		return int32(au ^ bu), api.TrapNone
	case api.OpI32Shl:
		return int32(au << (bu & 31)), api.TrapNone
	case api.OpI32ShrS:
		return as >> (bu & 31), api.TrapNone
	case api.OpI32ShrU:
		return int32(au >> (bu & 31)), api.TrapNone
	case api.OpI32Rotl:
		return int32(bits.RotateLeft32(au, int(bu&31))), api.TrapNone
	case api.OpI32Rotr:
		return int32(bits.RotateLeft32(au, -int(bu&31))), api.TrapNone
	}
	return 0, api.TrapInvalidOpcode
}

func i64Binary(op api.Opcode, as int64, au uint64, bs int64, bu uint64) (int64, api.Trap) {
	switch op {
	case api.OpI64Add:
		return int64(au + bu), api.TrapNone
	case api.OpI64Sub:
		return int64(au - bu), api.TrapNone
	case api.OpI64Mul:
		return int64(au * bu), api.TrapNone
	case api.OpI64DivS:
		if bs == 0 {
			return 0, api.TrapI64DivideByZero
		}
		if as == math.MinInt64 && bs == -1 {
			return 0, api.TrapI64Overflow
		}
		return as / bs, api.TrapNone
	case api.OpI64DivU:
		if bu == 0 {
			return 0, api.TrapI64DivideByZero
		}
		return int64(au / bu), api.TrapNone
	case api.OpI64RemS:
		if bs == 0 {
			return 0, api.TrapI64DivideByZero
		}
		if as == math.MinInt64 && bs == -1 {
			return 0, api.TrapNone
		}
		return as % bs, api.TrapNone
	case api.OpI64RemU:
		if bu == 0 {
			return 0, api.TrapI64DivideByZero
		}
		return int64(au % bu), api.TrapNone
	case api.OpI64And:
		return int64(au & bu), api.TrapNone
	case api.OpI64Or:
		return int64(au | bu), api.TrapNone
	case api.OpI64Xor:
		return int64(au ^ bu), api.TrapNone
	case api.OpI64Shl:
		return int64(au << (bu & 63)), api.TrapNone
	case api.OpI64ShrS:
		return as >> (bu & 63), api.TrapNone
	case api.OpI64ShrU:
		return int64(au >> (bu & 63)), api.TrapNone
	case api.OpI64Rotl:
		return int64(bits.RotateLeft64(au, int(bu&63))), api.TrapNone
	case api.OpI64Rotr:
		return int64(bits.RotateLeft64(au, -int(bu&63))), api.TrapNone
	}
	return 0, api.TrapInvalidOpcode
}
