// Package wasmtest hand-assembles minimal module-version-1 binary images
// and exercises them end to end through Scan/Load/vm.Call, covering the
// six scenarios a decoder-plus-executor pair must get bit-exact.
package wasmtest

import (
	"math"

	"github.com/tetratelabs/warpwasm/api"
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb32(v int32) []byte { return sleb64(int64(v)) }

func sleb64(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		done := (v == 0 && !signBitSet) || (v == -1 && signBitSet)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func f32Bytes(v float32) []byte {
	bits := math.Float32bits(v)
	return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func f64Bytes(v float64) []byte {
	bits := math.Float64bits(v)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(bits >> (8 * i))
	}
	return out
}

// code is a tiny instruction assembler: each method appends one
// instruction's bytes, mirroring the immediate layouts decodeInstr reads.
type code struct{ b []byte }

func (c *code) op(op api.Opcode) *code { c.b = append(c.b, byte(op)); return c }

func (c *code) block(op api.Opcode, sig api.ValueType) *code {
	c.b = append(c.b, byte(op), byte(sig))
	return c
}

func (c *code) br(op api.Opcode, depth uint32) *code {
	c.b = append(c.b, byte(op))
	c.b = append(c.b, uleb(depth)...)
	return c
}

func (c *code) idx(op api.Opcode, index uint32) *code {
	c.b = append(c.b, byte(op))
	c.b = append(c.b, uleb(index)...)
	return c
}

func (c *code) memArg(op api.Opcode, align, offset uint32) *code {
	c.b = append(c.b, byte(op))
	c.b = append(c.b, uleb(align)...)
	c.b = append(c.b, uleb(offset)...)
	return c
}

func (c *code) i32Const(v int32) *code {
	c.b = append(c.b, byte(api.OpI32Const))
	c.b = append(c.b, sleb32(v)...)
	return c
}

func (c *code) f32Const(v float32) *code {
	c.b = append(c.b, byte(api.OpF32Const))
	c.b = append(c.b, f32Bytes(v)...)
	return c
}

func (c *code) bytes() []byte { return c.b }

// funcSig is a (params, results) pair, one per type-section entry.
type funcSig struct {
	params  []api.ValueType
	results []api.ValueType
}

// funcBody is one code-section entry: declared-local types and the raw
// instruction stream (without the function's own trailing end, which
// build appends).
type funcBody struct {
	typeIdx uint32
	locals  []api.ValueType
	code    []byte
}

// dataSegment is one data-section entry: a constant i32 offset expression
// and the raw bytes to place there at instantiation.
type dataSegment struct {
	offset  int32
	payload []byte
}

// moduleBuilder assembles the sections a module needs in strict
// ascending section-ID order. The type, function and code sections are
// always emitted; the memory, export and data sections are omitted when
// unused.
type moduleBuilder struct {
	types    []funcSig
	bodies   []funcBody
	exports  map[string]uint32
	memMin   uint32
	memMax   uint32
	hasMem   bool
	hasMax   bool
	data     []dataSegment
}

func newModule() *moduleBuilder {
	return &moduleBuilder{exports: map[string]uint32{}}
}

func (m *moduleBuilder) addFunc(sig funcSig, locals []api.ValueType, body *code, exportName string) uint32 {
	typeIdx := uint32(len(m.types))
	m.types = append(m.types, sig)
	funcIdx := uint32(len(m.bodies))
	m.bodies = append(m.bodies, funcBody{typeIdx: typeIdx, locals: locals, code: body.bytes()})
	if exportName != "" {
		m.exports[exportName] = funcIdx
	}
	return funcIdx
}

func (m *moduleBuilder) withMemory(minPages uint32) *moduleBuilder {
	m.hasMem = true
	m.memMin = minPages
	return m
}

func (m *moduleBuilder) withData(offset int32, payload []byte) *moduleBuilder {
	m.data = append(m.data, dataSegment{offset: offset, payload: payload})
	return m
}

func section(id api.SectionID, body []byte) []byte {
	out := []byte{byte(id)}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func valTypeSlice(b *[]byte, vts []api.ValueType) {
	*b = append(*b, uleb(uint32(len(vts)))...)
	for _, vt := range vts {
		*b = append(*b, byte(vt))
	}
}

func (m *moduleBuilder) build() []byte {
	out := append([]byte{}, api.Magic[:]...)
	out = append(out, api.Version[:]...)

	// Type section.
	{
		var body []byte
		body = append(body, uleb(uint32(len(m.types)))...)
		for _, t := range m.types {
			body = append(body, byte(api.ValueTypeFunc))
			valTypeSlice(&body, t.params)
			valTypeSlice(&body, t.results)
		}
		out = append(out, section(api.SectionType, body)...)
	}

	// Function section.
	{
		var body []byte
		body = append(body, uleb(uint32(len(m.bodies)))...)
		for _, f := range m.bodies {
			body = append(body, uleb(f.typeIdx)...)
		}
		out = append(out, section(api.SectionFunction, body)...)
	}

	// Memory section.
	if m.hasMem {
		var body []byte
		body = append(body, uleb(1)...) // one memory
		if m.hasMax {
			body = append(body, 1)
			body = append(body, uleb(m.memMin)...)
			body = append(body, uleb(m.memMax)...)
		} else {
			body = append(body, 0)
			body = append(body, uleb(m.memMin)...)
		}
		out = append(out, section(api.SectionMemory, body)...)
	}

	// Export section.
	if len(m.exports) > 0 {
		var body []byte
		body = append(body, uleb(uint32(len(m.exports)))...)
		for name, idx := range m.exports {
			body = append(body, uleb(uint32(len(name)))...)
			body = append(body, name...)
			body = append(body, byte(api.ExportKindFunc))
			body = append(body, uleb(idx)...)
		}
		out = append(out, section(api.SectionExport, body)...)
	}

	// Code section.
	{
		var body []byte
		body = append(body, uleb(uint32(len(m.bodies)))...)
		for _, f := range m.bodies {
			var fb []byte
			fb = append(fb, uleb(uint32(len(f.locals)))...)
			for _, vt := range f.locals {
				fb = append(fb, uleb(1)...)
				fb = append(fb, byte(vt))
			}
			fb = append(fb, f.code...)
			fb = append(fb, byte(api.OpEnd))
			body = append(body, uleb(uint32(len(fb)))...)
			body = append(body, fb...)
		}
		out = append(out, section(api.SectionCode, body)...)
	}

	// Data section.
	if len(m.data) > 0 {
		var body []byte
		body = append(body, uleb(uint32(len(m.data)))...)
		for _, d := range m.data {
			body = append(body, uleb(0)...) // mem index
			body = append(body, byte(api.OpI32Const))
			body = append(body, sleb32(d.offset)...)
			body = append(body, byte(api.OpEnd))
			body = append(body, uleb(uint32(len(d.payload)))...)
			body = append(body, d.payload...)
		}
		out = append(out, section(api.SectionData, body)...)
	}

	return out
}
