// Package reader implements the forward-only, position-tracked byte
// cursor of spec §4.1. Grounded on wagon's exec.VM.fetchUint32/fetchFloat64
// fixed-width cursor reads (encoding/binary.LittleEndian) and the pack's
// WebAssembly decoders' LEB128 calling convention, adapted into one
// stateful cursor type instead of a free function per call site.
package reader

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/leb128"
)

// Reader is a cursor over a contiguous, caller-owned byte buffer. It never
// copies the buffer and never backtracks: every Read* either advances pos
// past what it consumed or leaves pos untouched and returns an error.
type Reader struct {
	buf []byte
	pos int
}

func New(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) Pos() int        { return r.pos }
func (r *Reader) Len() int        { return len(r.buf) }
func (r *Reader) AtEnd() bool     { return r.pos == len(r.buf) }
func (r *Reader) Remaining() int  { return len(r.buf) - r.pos }

// Seek repositions the cursor; used only to jump to section boundaries the
// scanner has already validated as in-range.
func (r *Reader) Seek(pos int) { r.pos = pos }

func (r *Reader) ReadU8() (byte, api.Trap) {
	if r.pos >= len(r.buf) {
		return 0, api.TrapReadOverflow
	}
	b := r.buf[r.pos]
	r.pos++
	return b, api.TrapNone
}

func (r *Reader) ReadU32LE() (uint32, api.Trap) {
	if r.pos+4 > len(r.buf) {
		return 0, api.TrapReadOverflow
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, api.TrapNone
}

func (r *Reader) ReadF32LE() (float32, api.Trap) {
	bits, trap := r.ReadU32LE()
	if trap != api.TrapNone {
		return 0, trap
	}
	return math.Float32frombits(bits), api.TrapNone
}

func (r *Reader) ReadU64LE() (uint64, api.Trap) {
	if r.pos+8 > len(r.buf) {
		return 0, api.TrapReadOverflow
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, api.TrapNone
}

func (r *Reader) ReadF64LE() (float64, api.Trap) {
	bits, trap := r.ReadU64LE()
	if trap != api.TrapNone {
		return 0, trap
	}
	return math.Float64frombits(bits), api.TrapNone
}

// ReadVarU32 / ReadVarU64 decode unsigned LEB128 integers.
func (r *Reader) ReadVarU32() (uint32, api.Trap) {
	v, n, trap := leb128.DecodeUint32(r.buf, r.pos)
	if trap != api.TrapNone {
		return 0, trap
	}
	r.pos += n
	return v, api.TrapNone
}

func (r *Reader) ReadVarU64() (uint64, api.Trap) {
	v, n, trap := leb128.DecodeUint64(r.buf, r.pos)
	if trap != api.TrapNone {
		return 0, trap
	}
	r.pos += n
	return v, api.TrapNone
}

// ReadVarI32 / ReadVarI64 decode sign-extended LEB128 integers.
func (r *Reader) ReadVarI32() (int32, api.Trap) {
	v, n, trap := leb128.DecodeInt32(r.buf, r.pos)
	if trap != api.TrapNone {
		return 0, trap
	}
	r.pos += n
	return v, api.TrapNone
}

func (r *Reader) ReadVarI64() (int64, api.Trap) {
	v, n, trap := leb128.DecodeInt64(r.buf, r.pos)
	if trap != api.TrapNone {
		return 0, trap
	}
	r.pos += n
	return v, api.TrapNone
}

// ReadVarI7 reads the one-byte tag used for value types and block-result
// signatures.
func (r *Reader) ReadVarI7() (int8, api.Trap) {
	v, n, trap := leb128.DecodeInt7(r.buf, r.pos)
	if trap != api.TrapNone {
		return 0, trap
	}
	r.pos += n
	return v, api.TrapNone
}

// Window returns the borrowed slice of the underlying buffer between two
// positions previously observed via Pos, without copying or advancing.
func (r *Reader) Window(start, end int) []byte {
	return r.buf[start:end]
}

// ReadBytes returns a borrowed window into the underlying buffer without
// copying; the caller must not retain it past the buffer's lifetime.
func (r *Reader) ReadBytes(n int) ([]byte, api.Trap) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, api.TrapReadOverflow
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, api.TrapNone
}
