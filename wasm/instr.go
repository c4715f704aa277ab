package wasm

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/leb128"
)

func decodeF32LE(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func decodeF64LE(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

// instr is one decoded instruction: the opcode plus whichever immediate
// fields it carries. Both the scanner (counting block/if opcodes) and the
// validator (type checking and jump-address recording) decode through
// this single function so the two passes can never disagree about where
// one instruction ends and the next begins.
type instr struct {
	Op    api.Opcode
	Pos   int
	Next  int
	Block api.ValueType // block/loop/if result type (ValueTypeVoid if none)
	Depth uint32        // br / br_if
	// br_table
	Targets []uint32
	Default uint32
	Index   uint32 // call / call_indirect type idx / local / global index
	Align   uint32
	Offset  uint32
	I32     int32
	I64     int64
	F32     float32
	F64     float64
}

// Instr is the exported form of instr, letting the executor re-decode an
// instruction's immediates at run time through the exact same byte
// accounting the validator used, so the two can never disagree about
// instruction boundaries.
type Instr struct {
	Op      api.Opcode
	Pos     int
	Next    int
	Block   api.ValueType
	Depth   uint32
	Targets []uint32
	Default uint32
	Index   uint32
	Align   uint32
	Offset  uint32
	I32     int32
	I64     int64
	F32     float32
	F64     float64
}

// DecodeInstr decodes the single instruction at pos in code.
func DecodeInstr(code []byte, pos int) (Instr, api.Trap) {
	in, trap := decodeInstr(code, pos)
	return Instr(in), trap
}

// decodeInstr decodes the single instruction at pos in code, returning the
// offset just past it in Next. It does no type checking; it only knows
// how many bytes of immediate each opcode carries.
func decodeInstr(code []byte, pos int) (instr, api.Trap) {
	if pos >= len(code) {
		return instr{}, api.TrapReadOverflow
	}
	in := instr{Op: api.Opcode(code[pos]), Pos: pos}
	p := pos + 1

	readVarU32 := func() (uint32, api.Trap) {
		v, n, trap := leb128.DecodeUint32(code, p)
		if trap != api.TrapNone {
			return 0, trap
		}
		p += n
		return v, api.TrapNone
	}
	readVarI32 := func() (int32, api.Trap) {
		v, n, trap := leb128.DecodeInt32(code, p)
		if trap != api.TrapNone {
			return 0, trap
		}
		p += n
		return v, api.TrapNone
	}
	readVarI64 := func() (int64, api.Trap) {
		v, n, trap := leb128.DecodeInt64(code, p)
		if trap != api.TrapNone {
			return 0, trap
		}
		p += n
		return v, api.TrapNone
	}
	readByte := func() (byte, api.Trap) {
		if p >= len(code) {
			return 0, api.TrapReadOverflow
		}
		b := code[p]
		p++
		return b, api.TrapNone
	}

	var trap api.Trap
	switch in.Op {
	case api.OpBlock, api.OpLoop, api.OpIf:
		sig, n, t := leb128.DecodeInt7(code, p)
		if t != api.TrapNone {
			return instr{}, t
		}
		p += n
		switch api.ValueType(byte(sig)) {
		case api.ValueTypeVoid:
			in.Block = api.ValueTypeVoid
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
			in.Block = api.ValueType(byte(sig))
		default:
			return instr{}, api.TrapInvalidBlockSignature
		}

	case api.OpBr, api.OpBrIf:
		in.Depth, trap = readVarU32()

	case api.OpBrTable:
		var count uint32
		count, trap = readVarU32()
		if trap != api.TrapNone {
			break
		}
		if count > brTableMax {
			return instr{}, api.TrapBranchTableOverflow
		}
		in.Targets = make([]uint32, count)
		for i := range in.Targets {
			in.Targets[i], trap = readVarU32()
			if trap != api.TrapNone {
				break
			}
		}
		if trap == api.TrapNone {
			in.Default, trap = readVarU32()
		}

	case api.OpCall:
		in.Index, trap = readVarU32()

	case api.OpCallIndirect:
		in.Index, trap = readVarU32()
		if trap == api.TrapNone {
			_, trap = readByte() // reserved
		}

	case api.OpGetLocal, api.OpSetLocal, api.OpTeeLocal, api.OpGetGlobal, api.OpSetGlobal:
		in.Index, trap = readVarU32()

	case api.OpI32Load, api.OpI64Load, api.OpF32Load, api.OpF64Load,
		api.OpI32Load8S, api.OpI32Load8U, api.OpI32Load16S, api.OpI32Load16U,
		api.OpI64Load8S, api.OpI64Load8U, api.OpI64Load16S, api.OpI64Load16U,
		api.OpI64Load32S, api.OpI64Load32U,
		api.OpI32Store, api.OpI64Store, api.OpF32Store, api.OpF64Store,
		api.OpI32Store8, api.OpI32Store16, api.OpI64Store8, api.OpI64Store16, api.OpI64Store32:
		in.Align, trap = readVarU32()
		if trap == api.TrapNone {
			in.Offset, trap = readVarU32()
		}

	case api.OpCurrentMemory, api.OpGrowMemory:
		_, trap = readByte() // reserved

	case api.OpI32Const:
		in.I32, trap = readVarI32()

	case api.OpI64Const:
		in.I64, trap = readVarI64()

	case api.OpF32Const:
		if p+4 > len(code) {
			trap = api.TrapReadOverflow
		} else {
			in.F32 = decodeF32LE(code[p:])
			p += 4
		}

	case api.OpF64Const:
		if p+8 > len(code) {
			trap = api.TrapReadOverflow
		} else {
			in.F64 = decodeF64LE(code[p:])
			p += 8
		}

	default:
		// Every other opcode (unreachable, nop, else, end, drop, select,
		// return, all comparisons/arithmetic/conversions) has no immediate.
	}

	if trap != api.TrapNone {
		return instr{}, trap
	}
	in.Next = p
	return in, api.TrapNone
}

// brTableMax bounds br_table length per §6's "configured maxima".
const brTableMax = 1 << 20
