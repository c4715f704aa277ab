package wasm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/reader"
)

// ScanLimits are the "configured maxima" of §6. Counts discovered during
// scanning that exceed these reject with TrapMetaLimitExceeded before any
// arena is ever allocated.
type ScanLimits struct {
	MaxTypes, MaxFunctions, MaxImports, MaxExports, MaxGlobals uint32
	MaxTableEntries, MaxMemoryPages, MaxLocalsPerFunction      uint32
}

// DefaultScanLimits are generous but finite, so a hostile module can't
// force an unbounded arena allocation purely through declared counts.
var DefaultScanLimits = ScanLimits{
	MaxTypes:             1 << 16,
	MaxFunctions:         1 << 16,
	MaxImports:           1 << 16,
	MaxExports:           1 << 16,
	MaxGlobals:           1 << 16,
	MaxTableEntries:      1 << 20,
	MaxMemoryPages:       1 << 16, // 4 GiB
	MaxLocalsPerFunction: 1 << 16,
}

// Summary is the scanner's output: exact per-field byte/item counts used
// to size the arena in one allocation, plus the per-function breakdown
// the loader and validator need to carve that function's own sub-slices.
type Summary struct {
	NumTypes   uint32
	NumParams  uint32
	NumResults uint32

	NumImports uint32

	NumFuncs        uint32 // defined (code-backed) functions
	FuncLocalCounts []uint32
	FuncCodeLens    []uint32
	FuncBlockCounts []uint32
	FuncIfCounts    []uint32
	TotalLocals     uint32
	TotalCodeBytes  uint32
	TotalBlockOps   uint32
	TotalIfOps      uint32

	NumTables       uint32
	TableMinEntries uint32

	NumMemories    uint32
	MemoryMinPages uint32

	NumGlobals uint32
	NumExports uint32

	HasStart  bool
	StartFunc uint32

	NumElemSegments   uint32
	NumElemEntries    uint32
	ElemInitExprBytes uint32

	NumDataSegments   uint32
	DataPayloadBytes  uint32
	DataInitExprBytes uint32
}

// Scan performs the first pass of §4.3: it walks every section in order,
// rejects structurally malformed input, and counts — without
// materializing — everything the loader will need to size one arena
// allocation.
func Scan(bytes []byte, limits ScanLimits) (*Summary, api.Trap) {
	r := reader.New(bytes)

	magic, trap := r.ReadBytes(4)
	if trap != api.TrapNone || string(magic) != string(api.Magic[:]) {
		return nil, api.TrapBadMagic
	}
	version, trap := r.ReadBytes(4)
	if trap != api.TrapNone || string(version) != string(api.Version[:]) {
		return nil, api.TrapBadVersion
	}

	s := &Summary{}
	var lastSection = int(api.SectionCustom)
	seen := make(map[api.SectionID]bool)

	for !r.AtEnd() {
		idByte, trap := r.ReadU8()
		if trap != api.TrapNone {
			return nil, trap
		}
		id := api.SectionID(idByte)
		if id >= api.SectionCount {
			return nil, api.TrapInvalidBytes
		}

		size, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return nil, trap
		}
		sectionStart := r.Pos()

		if id != api.SectionCustom {
			if seen[id] {
				return nil, api.TrapDuplicateSection
			}
			if int(id) <= lastSection && lastSection != int(api.SectionCustom) {
				return nil, api.TrapSectionOutOfOrder
			}
			seen[id] = true
			lastSection = int(id)
		}

		if int(size) > r.Remaining() {
			return nil, api.TrapSectionSizeMismatch
		}
		body, trap := r.ReadBytes(int(size))
		if trap != api.TrapNone {
			return nil, trap
		}

		if id != api.SectionCustom {
			if trap := scanSection(id, body, s, limits); trap != api.TrapNone {
				return nil, trap
			}
		}

		if r.Pos() != sectionStart+int(size) {
			return nil, api.TrapSectionSizeMismatch
		}
	}

	if s.NumTables > 1 || s.NumMemories > 1 {
		return nil, api.TrapMetaLimitExceeded
	}
	if s.NumTypes > limits.MaxTypes || s.NumFuncs > limits.MaxFunctions ||
		s.NumImports > limits.MaxImports || s.NumExports > limits.MaxExports ||
		s.NumGlobals > limits.MaxGlobals || s.TableMinEntries > limits.MaxTableEntries ||
		s.MemoryMinPages > limits.MaxMemoryPages {
		return nil, api.TrapMetaLimitExceeded
	}
	return s, api.TrapNone
}

func scanSection(id api.SectionID, body []byte, s *Summary, limits ScanLimits) api.Trap {
	r := reader.New(body)
	switch id {
	case api.SectionType:
		return scanTypeSection(r, s)
	case api.SectionImport:
		return scanImportSection(r, s)
	case api.SectionFunction:
		return scanFunctionSection(r, s)
	case api.SectionTable:
		return scanTableSection(r, s)
	case api.SectionMemory:
		return scanMemorySection(r, s)
	case api.SectionGlobal:
		return scanGlobalSection(r, s)
	case api.SectionExport:
		return scanExportSection(r, s)
	case api.SectionStart:
		return scanStartSection(r, s)
	case api.SectionElement:
		return scanElementSection(r, s)
	case api.SectionCode:
		return scanCodeSection(r, s, limits)
	case api.SectionData:
		return scanDataSection(r, s)
	}
	return api.TrapNone
}

func scanTypeSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumTypes = count
	for i := uint32(0); i < count; i++ {
		form, trap := r.ReadVarI7()
		if trap != api.TrapNone {
			return trap
		}
		if api.ValueType(byte(form)) != api.ValueTypeFunc {
			return api.TrapInvalidBytes
		}
		paramCount, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		for j := uint32(0); j < paramCount; j++ {
			if _, trap := r.ReadVarI7(); trap != api.TrapNone {
				return trap
			}
		}
		s.NumParams += paramCount
		resultCount, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		for j := uint32(0); j < resultCount; j++ {
			if _, trap := r.ReadVarI7(); trap != api.TrapNone {
				return trap
			}
		}
		s.NumResults += resultCount
	}
	return api.TrapNone
}

func scanImportSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumImports = count
	for i := uint32(0); i < count; i++ {
		if _, trap := scanName(r); trap != api.TrapNone {
			return trap
		}
		if _, trap := scanName(r); trap != api.TrapNone {
			return trap
		}
		kindByte, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		switch api.ImportKind(kindByte) {
		case api.ImportKindFunc, api.ImportKindGlobal:
			if _, trap := r.ReadVarU32(); trap != api.TrapNone {
				return trap
			}
			if api.ImportKind(kindByte) == api.ImportKindGlobal {
				if _, trap := r.ReadVarI7(); trap != api.TrapNone {
					return trap
				}
				if _, trap := r.ReadU8(); trap != api.TrapNone {
					return trap
				}
			}
		case api.ImportKindTable:
			if _, trap := r.ReadVarI7(); trap != api.TrapNone {
				return trap
			}
			if trap := scanLimits(r); trap != api.TrapNone {
				return trap
			}
		case api.ImportKindMemory:
			if trap := scanLimits(r); trap != api.TrapNone {
				return trap
			}
		default:
			return api.TrapInvalidBytes
		}
	}
	return api.TrapNone
}

func scanName(r *reader.Reader) ([]byte, api.Trap) {
	n, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return nil, trap
	}
	return r.ReadBytes(int(n))
}

func scanLimits(r *reader.Reader) api.Trap {
	flags, trap := r.ReadU8()
	if trap != api.TrapNone {
		return trap
	}
	if _, trap := r.ReadVarU32(); trap != api.TrapNone {
		return trap
	}
	if flags&1 != 0 {
		if _, trap := r.ReadVarU32(); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

func scanFunctionSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumFuncs = count
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarU32(); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

func scanTableSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumTables = count
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarI7(); trap != api.TrapNone {
			return trap
		}
		flags, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		min, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		s.TableMinEntries += min
		if flags&1 != 0 {
			if _, trap := r.ReadVarU32(); trap != api.TrapNone {
				return trap
			}
		}
	}
	return api.TrapNone
}

func scanMemorySection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumMemories = count
	for i := uint32(0); i < count; i++ {
		flags, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		min, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		s.MemoryMinPages += min
		if flags&1 != 0 {
			if _, trap := r.ReadVarU32(); trap != api.TrapNone {
				return trap
			}
		}
	}
	return api.TrapNone
}

func scanGlobalSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumGlobals = count
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarI7(); trap != api.TrapNone {
			return trap
		}
		if _, trap := r.ReadU8(); trap != api.TrapNone {
			return trap
		}
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

// scanInitExpr skips over a restricted init-expression: one const/global
// opcode's immediate followed by its terminating end.
func scanInitExpr(r *reader.Reader) api.Trap {
	op, trap := r.ReadU8()
	if trap != api.TrapNone {
		return trap
	}
	switch api.Opcode(op) {
	case api.OpI32Const:
		if _, trap := r.ReadVarI32(); trap != api.TrapNone {
			return trap
		}
	case api.OpI64Const:
		if _, trap := r.ReadVarI64(); trap != api.TrapNone {
			return trap
		}
	case api.OpF32Const:
		if _, trap := r.ReadF32LE(); trap != api.TrapNone {
			return trap
		}
	case api.OpF64Const:
		if _, trap := r.ReadF64LE(); trap != api.TrapNone {
			return trap
		}
	case api.OpGetGlobal:
		if _, trap := r.ReadVarU32(); trap != api.TrapNone {
			return trap
		}
	default:
		return api.TrapInvalidInitExpression
	}
	end, trap := r.ReadU8()
	if trap != api.TrapNone {
		return trap
	}
	if api.Opcode(end) != api.OpEnd {
		return api.TrapInvalidInitExpression
	}
	return api.TrapNone
}

func scanExportSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumExports = count
	for i := uint32(0); i < count; i++ {
		if _, trap := scanName(r); trap != api.TrapNone {
			return trap
		}
		if _, trap := r.ReadU8(); trap != api.TrapNone {
			return trap
		}
		if _, trap := r.ReadVarU32(); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

func scanStartSection(r *reader.Reader, s *Summary) api.Trap {
	idx, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.HasStart = true
	s.StartFunc = idx
	return api.TrapNone
}

func scanElementSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumElemSegments = count
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarU32(); trap != api.TrapNone { // table index
			return trap
		}
		before := r.Pos()
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
		s.ElemInitExprBytes += uint32(r.Pos() - before)
		n, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		s.NumElemEntries += n
		for j := uint32(0); j < n; j++ {
			if _, trap := r.ReadVarU32(); trap != api.TrapNone {
				return trap
			}
		}
	}
	return api.TrapNone
}

func scanCodeSection(r *reader.Reader, s *Summary, limits ScanLimits) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	if count != s.NumFuncs {
		return api.TrapInvalidBytes
	}
	s.FuncLocalCounts = make([]uint32, count)
	s.FuncCodeLens = make([]uint32, count)
	s.FuncBlockCounts = make([]uint32, count)
	s.FuncIfCounts = make([]uint32, count)

	for i := uint32(0); i < count; i++ {
		bodySize, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		body, trap := r.ReadBytes(int(bodySize))
		if trap != api.TrapNone {
			return trap
		}
		br := reader.New(body)

		localDeclCount, trap := br.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		var localCount uint32
		for j := uint32(0); j < localDeclCount; j++ {
			n, trap := br.ReadVarU32()
			if trap != api.TrapNone {
				return trap
			}
			if _, trap := br.ReadVarI7(); trap != api.TrapNone {
				return trap
			}
			localCount += n
		}
		if localCount > limits.MaxLocalsPerFunction {
			return api.TrapMetaLimitExceeded
		}
		s.FuncLocalCounts[i] = localCount
		s.TotalLocals += localCount

		code := body[br.Pos():]
		blocks, ifs, trap := countBlocksAndIfs(code)
		if trap != api.TrapNone {
			return trap
		}
		s.FuncCodeLens[i] = uint32(len(code))
		s.FuncBlockCounts[i] = blocks
		s.FuncIfCounts[i] = ifs
		s.TotalCodeBytes += uint32(len(code))
		s.TotalBlockOps += blocks
		s.TotalIfOps += ifs
	}
	return api.TrapNone
}

// countBlocksAndIfs walks one function's raw code, counting block/loop/if
// opcodes (for sizing the per-function jump-address tables) and requiring
// the body's final byte to be an end opcode. Whether that end closes the
// function frame is left to the validator.
func countBlocksAndIfs(code []byte) (blocks, ifs uint32, trap api.Trap) {
	if len(code) == 0 || api.Opcode(code[len(code)-1]) != api.OpEnd {
		return 0, 0, api.TrapInvalidEndOpcode
	}
	pos := 0
	for pos < len(code) {
		in, t := decodeInstr(code, pos)
		if t != api.TrapNone {
			return 0, 0, t
		}
		switch in.Op {
		case api.OpBlock, api.OpLoop:
			blocks++
		case api.OpIf:
			ifs++
		}
		pos = in.Next
	}
	return blocks, ifs, api.TrapNone
}

func scanDataSection(r *reader.Reader, s *Summary) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	s.NumDataSegments = count
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarU32(); trap != api.TrapNone { // mem index
			return trap
		}
		before := r.Pos()
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
		s.DataInitExprBytes += uint32(r.Pos() - before)
		n, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		if _, trap := r.ReadBytes(int(n)); trap != api.TrapNone {
			return trap
		}
		s.DataPayloadBytes += n
	}
	return api.TrapNone
}
