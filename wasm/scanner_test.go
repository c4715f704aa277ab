package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/warpwasm/api"
)

func emptyModuleBytes() []byte {
	return append(append([]byte{}, api.Magic[:]...), api.Version[:]...)
}

func TestScanBadMagic(t *testing.T) {
	b := []byte{0x00, 0x61, 0x73, 0x00}
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapBadMagic, trap)
}

func TestScanTruncatedMagic(t *testing.T) {
	_, trap := Scan([]byte{0x00, 0x61}, DefaultScanLimits)
	assert.Equal(t, api.TrapBadMagic, trap)
}

func TestScanBadVersion(t *testing.T) {
	b := append(append([]byte{}, api.Magic[:]...), 0x02, 0x00, 0x00, 0x00)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapBadVersion, trap)
}

func TestScanEmptyModule(t *testing.T) {
	summary, trap := Scan(emptyModuleBytes(), DefaultScanLimits)
	require.Equal(t, api.TrapNone, trap)
	assert.Equal(t, uint32(0), summary.NumTypes)
	assert.Equal(t, uint32(0), summary.NumFuncs)
}

func TestScanUnknownSectionID(t *testing.T) {
	b := emptyModuleBytes()
	b = append(b, 0xFF, 0x00) // id 0xFF is beyond SectionCount
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapInvalidBytes, trap)
}

func TestScanSectionOutOfOrder(t *testing.T) {
	b := emptyModuleBytes()
	b = append(b, byte(api.SectionFunction), 0x01, 0x00) // function section, empty count
	b = append(b, byte(api.SectionType), 0x01, 0x00)      // type after function: out of order
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapSectionOutOfOrder, trap)
}

func TestScanDuplicateSection(t *testing.T) {
	b := emptyModuleBytes()
	b = append(b, byte(api.SectionType), 0x01, 0x00)
	b = append(b, byte(api.SectionType), 0x01, 0x00)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapDuplicateSection, trap)
}

func TestScanSectionSizeMismatch(t *testing.T) {
	b := emptyModuleBytes()
	// Declares size 5 but the type section body (count=0) is only 1 byte.
	b = append(b, byte(api.SectionType), 0x05, 0x00)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapSectionSizeMismatch, trap)
}

func TestScanCustomSectionsAllowedAnywhere(t *testing.T) {
	b := emptyModuleBytes()
	b = append(b, byte(api.SectionCustom), 0x01, 0x00)
	b = append(b, byte(api.SectionType), 0x01, 0x00)
	b = append(b, byte(api.SectionCustom), 0x01, 0x00)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapNone, trap)
}

func TestScanInvalidInitExpression(t *testing.T) {
	b := emptyModuleBytes()
	// global section: count=1, type=i32, mutable=0, init expr opcode=0x0B (end, invalid as a leading opcode)
	globalBody := []byte{0x01, byte(api.ValueTypeI32), 0x00, byte(api.OpEnd)}
	b = append(b, byte(api.SectionGlobal), byte(len(globalBody)))
	b = append(b, globalBody...)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapInvalidInitExpression, trap)
}

func TestScanTableAndMemoryLimitOne(t *testing.T) {
	b := emptyModuleBytes()
	memBody := []byte{0x02, 0x00, 0x01, 0x00, 0x01} // two memories, each min=1 no max
	b = append(b, byte(api.SectionMemory), byte(len(memBody)))
	b = append(b, memBody...)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapMetaLimitExceeded, trap)
}

func TestScanCodeSectionCountMustMatchFunctionSection(t *testing.T) {
	b := emptyModuleBytes()
	fnBody := []byte{0x00} // function section: 0 entries
	b = append(b, byte(api.SectionFunction), byte(len(fnBody)))
	b = append(b, fnBody...)
	codeBody := []byte{0x01, 0x02, 0x00, byte(api.OpEnd)} // code section claims 1 entry
	b = append(b, byte(api.SectionCode), byte(len(codeBody)))
	b = append(b, codeBody...)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapInvalidBytes, trap)
}

func TestScanCodeBodyMustEndWithEnd(t *testing.T) {
	b := emptyModuleBytes()
	fnBody := []byte{0x01, 0x00} // one function, type idx 0
	b = append(b, byte(api.SectionFunction), byte(len(fnBody)))
	b = append(b, fnBody...)
	// code: localDeclCount=0, body is just i32.const 0 (no terminating end)
	inner := []byte{0x00, byte(api.OpI32Const), 0x00}
	codeBody := append([]byte{0x01, byte(len(inner))}, inner...)
	b = append(b, byte(api.SectionCode), byte(len(codeBody)))
	b = append(b, codeBody...)
	_, trap := Scan(b, DefaultScanLimits)
	assert.Equal(t, api.TrapInvalidEndOpcode, trap)
}
