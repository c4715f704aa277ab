// Package leb128 decodes LEB128-encoded integers directly from a byte
// cursor, grounded on the decode-loop shape common to the pack's
// WebAssembly parsers (vertexvm's leb128.ReadUint32(r), wagon's
// leb128.ReadVarUint32(r)) but specialized to operate on a plain
// (buf, pos) pair rather than an io.Reader, so the 5-byte/10-byte
// overflow and end-of-buffer checks the spec requires are exact and
// allocation-free.
package leb128

import "github.com/tetratelabs/warpwasm/api"

const (
	maxBytesU32 = 5
	maxBytesU64 = 10
)

// DecodeUint32 reads an unsigned LEB128 value of at most 32 bits,
// rejecting encodings that run past 5 bytes or off the end of buf.
func DecodeUint32(buf []byte, pos int) (value uint32, bytesRead int, trap api.Trap) {
	var shift uint
	for bytesRead < maxBytesU32 {
		if pos+bytesRead >= len(buf) {
			return 0, 0, api.TrapReadOverflow
		}
		b := buf[pos+bytesRead]
		bytesRead++
		value |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, bytesRead, api.TrapNone
		}
		shift += 7
	}
	return 0, 0, api.TrapReadOverflow
}

// DecodeUint64 reads an unsigned LEB128 value of at most 64 bits.
func DecodeUint64(buf []byte, pos int) (value uint64, bytesRead int, trap api.Trap) {
	var shift uint
	for bytesRead < maxBytesU64 {
		if pos+bytesRead >= len(buf) {
			return 0, 0, api.TrapReadOverflow
		}
		b := buf[pos+bytesRead]
		bytesRead++
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, bytesRead, api.TrapNone
		}
		shift += 7
	}
	return 0, 0, api.TrapReadOverflow
}

// DecodeInt32 reads a signed LEB128 value of at most 32 bits, sign
// extending the result from the final significant bit.
func DecodeInt32(buf []byte, pos int) (value int32, bytesRead int, trap api.Trap) {
	var result int64
	var shift uint
	var b byte
	for bytesRead < maxBytesU32 {
		if pos+bytesRead >= len(buf) {
			return 0, 0, api.TrapReadOverflow
		}
		b = buf[pos+bytesRead]
		bytesRead++
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return int32(result), bytesRead, api.TrapNone
		}
	}
	return 0, 0, api.TrapReadOverflow
}

// DecodeInt64 reads a signed LEB128 value of at most 64 bits.
func DecodeInt64(buf []byte, pos int) (value int64, bytesRead int, trap api.Trap) {
	var result int64
	var shift uint
	var b byte
	for bytesRead < maxBytesU64 {
		if pos+bytesRead >= len(buf) {
			return 0, 0, api.TrapReadOverflow
		}
		b = buf[pos+bytesRead]
		bytesRead++
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, bytesRead, api.TrapNone
		}
	}
	return 0, 0, api.TrapReadOverflow
}

// DecodeInt7 reads the single byte at pos, used for value-type and
// block-type immediates: these never span more than one byte, and every
// tag this package defines (ValueTypeI32 and friends) is the literal wire
// byte, so the result is the byte reinterpreted as int8 with no further
// sign extension — callers that want the tag back cast with byte(value).
func DecodeInt7(buf []byte, pos int) (value int8, bytesRead int, trap api.Trap) {
	if pos >= len(buf) {
		return 0, 0, api.TrapReadOverflow
	}
	return int8(buf[pos]), 1, api.TrapNone
}
