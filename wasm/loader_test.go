package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/warpwasm/api"
)

// buildOneFuncModule assembles a complete binary image with a single
// locally defined, exported function of signature (i32, i32) -> i32
// running body (the function's own trailing end is appended here, not
// by the caller).
func buildOneFuncModule(body []byte) []byte {
	b := emptyModuleBytes()

	typeBody := []byte{
		0x01,                   // one type
		byte(api.ValueTypeFunc), // form
		0x02, byte(api.ValueTypeI32), byte(api.ValueTypeI32), // 2 params
		0x01, byte(api.ValueTypeI32), // 1 result
	}
	b = append(b, byte(api.SectionType), byte(len(typeBody)))
	b = append(b, typeBody...)

	funcBody := []byte{0x01, 0x00} // one function, type idx 0
	b = append(b, byte(api.SectionFunction), byte(len(funcBody)))
	b = append(b, funcBody...)

	exportBody := append([]byte{0x01, 0x03}, "add"...)
	exportBody = append(exportBody, byte(api.ExportKindFunc), 0x00)
	b = append(b, byte(api.SectionExport), byte(len(exportBody)))
	b = append(b, exportBody...)

	full := append(append([]byte{}, body...), byte(api.OpEnd))
	codeInner := append([]byte{0x00}, full...) // zero declared-local groups
	codeBody := append([]byte{0x01, byte(len(codeInner))}, codeInner...)
	b = append(b, byte(api.SectionCode), byte(len(codeBody)))
	b = append(b, codeBody...)

	return b
}

func TestLoadRoundTripsSimpleFunction(t *testing.T) {
	body := []byte{
		byte(api.OpGetLocal), 0x00,
		byte(api.OpGetLocal), 0x01,
		byte(api.OpI32Add),
	}
	b := buildOneFuncModule(body)
	summary, trap := Scan(b, DefaultScanLimits)
	require.Equal(t, api.TrapNone, trap)

	m, trap := Load(b, summary)
	require.Equal(t, api.TrapNone, trap)
	require.NotNil(t, m)
	defer Destroy(m)

	require.Len(t, m.Types, 1)
	assert.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, m.Types[0].Params)
	assert.Equal(t, []api.ValueType{api.ValueTypeI32}, m.Types[0].Results)

	idx, ok := m.ExportFunc("add")
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)

	require.Len(t, m.Funcs, 1)
	fn := m.Funcs[0].Defined
	require.NotNil(t, fn)
	assert.Equal(t, api.TrapNone, Validate(m, 0))
}

func TestLoadExportNameIsRecordedVerbatim(t *testing.T) {
	// The loader copies export entries without resolving their index — a
	// dangling export func index is only caught later, when something
	// actually calls through it; Load itself just decodes and places.
	b := emptyModuleBytes()
	exportBody := append([]byte{0x01, 0x03}, "add"...)
	exportBody = append(exportBody, byte(api.ExportKindFunc), 0x00) // no funcs defined at all
	b = append(b, byte(api.SectionExport), byte(len(exportBody)))
	b = append(b, exportBody...)

	summary, trap := Scan(b, DefaultScanLimits)
	require.Equal(t, api.TrapNone, trap)
	m, trap := Load(b, summary)
	require.Equal(t, api.TrapNone, trap)
	defer Destroy(m)

	idx, ok := m.ExportFunc("add")
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)
	assert.Len(t, m.Funcs, 0) // export's index 0 is dangling; resolved lazily at call time
}
