package wasm

import (
	"github.com/tetratelabs/warpwasm/api"
	"github.com/tetratelabs/warpwasm/internal/arena"
	"github.com/tetratelabs/warpwasm/internal/reader"
)

// Load performs the second pass of §4.4: driven by summary, it allocates
// one arena and decodes every section again, this time materializing
// values into it. It does not type-check function bodies — that is
// Validate's job, invoked once per function body here so the module
// returned already carries resolved jump addresses.
func Load(bytes []byte, summary *Summary) (*Module, api.Trap) {
	totalArenaBytes := int(summary.MemoryMinPages)*api.WasmPageSize +
		int(summary.TotalCodeBytes) + int(summary.DataPayloadBytes)
	// Every arena.Bytes call starts on a 64-byte boundary, so each memory,
	// code body and data payload may be preceded by up to 63 padding bytes.
	totalArenaBytes += int(summary.NumMemories+summary.NumFuncs+summary.NumDataSegments) * 64
	a := arena.New(totalArenaBytes)

	m := &Module{a: a}

	r := reader.New(bytes)
	// Magic/version were already validated by Scan; skip over them.
	r.Seek(8)

	for !r.AtEnd() {
		idByte, trap := r.ReadU8()
		if trap != api.TrapNone {
			return nil, trap
		}
		id := api.SectionID(idByte)
		size, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return nil, trap
		}
		body, trap := r.ReadBytes(int(size))
		if trap != api.TrapNone {
			return nil, trap
		}
		if id == api.SectionCustom {
			continue
		}
		br := reader.New(body)
		var lerr api.Trap
		switch id {
		case api.SectionType:
			lerr = loadTypeSection(br, m)
		case api.SectionImport:
			lerr = loadImportSection(br, m)
		case api.SectionFunction:
			lerr = loadFunctionSection(br, m)
		case api.SectionTable:
			lerr = loadTableSection(br, m)
		case api.SectionMemory:
			lerr = loadMemorySection(br, m, a)
		case api.SectionGlobal:
			lerr = loadGlobalSection(br, m, a)
		case api.SectionExport:
			lerr = loadExportSection(br, m)
		case api.SectionStart:
			lerr = loadStartSection(br, m)
		case api.SectionElement:
			lerr = loadElementSection(br, m)
		case api.SectionCode:
			lerr = loadCodeSection(br, m, summary, a)
		case api.SectionData:
			lerr = loadDataSection(br, m, a)
		}
		if lerr != api.TrapNone {
			Destroy(m)
			return nil, lerr
		}
	}

	if err := applyElementSegments(m); err != api.TrapNone {
		Destroy(m)
		return nil, err
	}
	if err := applyDataSegments(m); err != api.TrapNone {
		Destroy(m)
		return nil, err
	}

	return m, api.TrapNone
}

func loadTypeSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.Types = make([]FuncType, count)
	for i := range m.Types {
		if _, trap := r.ReadVarI7(); trap != api.TrapNone { // form
			return trap
		}
		paramCount, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		params := make([]api.ValueType, paramCount)
		for j := range params {
			v, trap := r.ReadVarI7()
			if trap != api.TrapNone {
				return trap
			}
			params[j] = api.ValueType(byte(v))
		}
		resultCount, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		results := make([]api.ValueType, resultCount)
		for j := range results {
			v, trap := r.ReadVarI7()
			if trap != api.TrapNone {
				return trap
			}
			results[j] = api.ValueType(byte(v))
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return api.TrapNone
}

func loadImportSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.Imports = make([]Import, count)
	for i := range m.Imports {
		modName, trap := loadName(r)
		if trap != api.TrapNone {
			return trap
		}
		field, trap := loadName(r)
		if trap != api.TrapNone {
			return trap
		}
		kindByte, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		kind := api.ImportKind(kindByte)
		imp := Import{Module: modName, Field: field, Kind: kind}
		switch kind {
		case api.ImportKindFunc:
			idx, trap := r.ReadVarU32()
			if trap != api.TrapNone {
				return trap
			}
			imp.Index = idx
			m.Funcs = append(m.Funcs, FuncRef{TypeIndex: idx, Imported: true})
		case api.ImportKindGlobal:
			vt, trap := r.ReadVarI7()
			if trap != api.TrapNone {
				return trap
			}
			mut, trap := r.ReadU8()
			if trap != api.TrapNone {
				return trap
			}
			cell := new(uint64)
			m.Globals = append(m.Globals, Global{
				Type: api.ValueType(byte(vt)), Mutable: mut != 0, Imported: true, Cell: cell,
			})
			imp.Index = uint32(len(m.Globals) - 1)
		case api.ImportKindTable:
			if _, trap := r.ReadVarI7(); trap != api.TrapNone {
				return trap
			}
			min, max, hasMax, trap := loadLimits(r)
			if trap != api.TrapNone {
				return trap
			}
			m.Tables = append(m.Tables, Table{Elements: make([]uint32, min), Max: max, HasMax: hasMax})
			imp.Index = uint32(len(m.Tables) - 1)
		case api.ImportKindMemory:
			min, max, hasMax, trap := loadLimits(r)
			if trap != api.TrapNone {
				return trap
			}
			m.Memory = &Memory{Data: make([]byte, uint64(min)*api.WasmPageSize), Pages: min, MaxPages: max, HasMax: hasMax}
			imp.Index = 0
		default:
			return api.TrapInvalidBytes
		}
		m.Imports[i] = imp
	}
	return api.TrapNone
}

func loadName(r *reader.Reader) (string, api.Trap) {
	n, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return "", trap
	}
	b, trap := r.ReadBytes(int(n))
	if trap != api.TrapNone {
		return "", trap
	}
	return string(b), api.TrapNone
}

func loadLimits(r *reader.Reader) (min, max uint32, hasMax bool, trap api.Trap) {
	flags, trap := r.ReadU8()
	if trap != api.TrapNone {
		return
	}
	min, trap = r.ReadVarU32()
	if trap != api.TrapNone {
		return
	}
	if flags&1 != 0 {
		max, trap = r.ReadVarU32()
		hasMax = true
	}
	return
}

func loadFunctionSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		m.Funcs = append(m.Funcs, FuncRef{TypeIndex: typeIdx, Defined: &Function{TypeIndex: typeIdx}})
	}
	return api.TrapNone
}

func loadTableSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	for i := uint32(0); i < count; i++ {
		if _, trap := r.ReadVarI7(); trap != api.TrapNone {
			return trap
		}
		min, max, hasMax, trap := loadLimits(r)
		if trap != api.TrapNone {
			return trap
		}
		m.Tables = append(m.Tables, Table{Elements: make([]uint32, min), Max: max, HasMax: hasMax})
	}
	return api.TrapNone
}

func loadMemorySection(r *reader.Reader, m *Module, a *arena.Arena) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	for i := uint32(0); i < count; i++ {
		min, max, hasMax, trap := loadLimits(r)
		if trap != api.TrapNone {
			return trap
		}
		data := a.Bytes(int(min) * api.WasmPageSize)
		m.Memory = &Memory{Data: data, Pages: min, MaxPages: max, HasMax: hasMax}
	}
	return api.TrapNone
}

func loadGlobalSection(r *reader.Reader, m *Module, a *arena.Arena) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	for i := uint32(0); i < count; i++ {
		vt, trap := r.ReadVarI7()
		if trap != api.TrapNone {
			return trap
		}
		mut, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		start := r.Pos()
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
		initExpr := mustSlice(r, start)

		g := Global{Type: api.ValueType(byte(vt)), Mutable: mut != 0, Cell: new(uint64)}

		val, trap := evalInitExpr(initExpr, m.Globals)
		if trap != api.TrapNone {
			return trap
		}
		*g.Cell = val
		m.Globals = append(m.Globals, g)
	}
	return api.TrapNone
}

func loadExportSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.Exports = make([]Export, count)
	for i := range m.Exports {
		name, trap := loadName(r)
		if trap != api.TrapNone {
			return trap
		}
		kindByte, trap := r.ReadU8()
		if trap != api.TrapNone {
			return trap
		}
		idx, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		m.Exports[i] = Export{Name: name, Kind: api.ExportKind(kindByte), Index: idx}
	}
	return api.TrapNone
}

func loadStartSection(r *reader.Reader, m *Module) api.Trap {
	idx, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.HasStart = true
	m.StartFunc = idx
	return api.TrapNone
}

func loadElementSection(r *reader.Reader, m *Module) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.Elements = make([]ElementSegment, count)
	for i := range m.Elements {
		tableIdx, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		start := r.Pos()
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
		offsetExpr := mustSlice(r, start)
		n, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		funcIdxs := make([]uint32, n)
		for j := range funcIdxs {
			v, trap := r.ReadVarU32()
			if trap != api.TrapNone {
				return trap
			}
			funcIdxs[j] = v
		}
		m.Elements[i] = ElementSegment{TableIndex: tableIdx, OffsetExpr: offsetExpr, FuncIndices: funcIdxs}
	}
	return api.TrapNone
}

func loadDataSection(r *reader.Reader, m *Module, a *arena.Arena) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	m.DataSegments = make([]DataSegment, count)
	for i := range m.DataSegments {
		memIdx, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		start := r.Pos()
		if trap := scanInitExpr(r); trap != api.TrapNone {
			return trap
		}
		offsetExpr := mustSlice(r, start)
		n, trap := r.ReadVarU32()
		if trap != api.TrapNone {
			return trap
		}
		payload, trap := r.ReadBytes(int(n))
		if trap != api.TrapNone {
			return trap
		}
		dst := a.Bytes(len(payload))
		copy(dst, payload)
		m.DataSegments[i] = DataSegment{MemIndex: memIdx, OffsetExpr: offsetExpr, Bytes: dst}
	}
	return api.TrapNone
}

func loadCodeSection(r *reader.Reader, m *Module, summary *Summary, a *arena.Arena) api.Trap {
	count, trap := r.ReadVarU32()
	if trap != api.TrapNone {
		return trap
	}
	// Defined functions are the suffix of m.Funcs after imported funcs.
	definedStart := len(m.Funcs) - int(count)
	if definedStart < 0 {
		return api.TrapInvalidBytes
	}
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
		// Local value types are a small per-function index table, not raw
		// byte payload, so they live on the Go heap rather than the arena.
		localValueTypes := make([]api.ValueType, summary.FuncLocalCounts[i])
		pos := 0
		for j := uint32(0); j < localDeclCount; j++ {
			n, trap := br.ReadVarU32()
			if trap != api.TrapNone {
				return trap
			}
			vt, trap := br.ReadVarI7()
			if trap != api.TrapNone {
				return trap
			}
			for k := uint32(0); k < n; k++ {
				localValueTypes[pos] = api.ValueType(byte(vt))
				pos++
			}
		}

		rawCode := body[br.Pos():]
		code := a.Bytes(len(rawCode))
		copy(code, rawCode)

		fn := m.Funcs[definedStart+int(i)].Defined
		fn.Locals = localValueTypes
		fn.Code = code
		fn.BlockOffsets = make([]int, 0, summary.FuncBlockCounts[i])
		fn.BlockLabels = make([]int, 0, summary.FuncBlockCounts[i])
		fn.IfOffsets = make([]int, 0, summary.FuncIfCounts[i])
		fn.IfLabels = make([]int, 0, summary.FuncIfCounts[i])
		fn.IfElseAddrs = make([]int, 0, summary.FuncIfCounts[i])

		if trap := Validate(m, uint32(definedStart+int(i))); trap != api.TrapNone {
			return trap
		}
	}
	return api.TrapNone
}

// mustSlice returns the bytes r has read since start, for retaining an
// init expression's raw bytes for (re-)evaluation.
func mustSlice(r *reader.Reader, start int) []byte {
	return r.Window(start, r.Pos())
}
