package wasm

import (
	"github.com/neri/maystorm-wasm/bytestream"
	"github.com/neri/maystorm-wasm/value"
)

// Magic is the 4-byte Wasm binary magic number, the ASCII string "\0asm"
// read as a little-endian u32.
const Magic uint32 = 0x6D736100

// Version is the only module version this loader accepts.
const Version uint32 = 0x1

const funcTypeForm byte = 0x60
const elemTypeFuncRef byte = 0x70

// Decode parses a complete Wasm binary module into its flat descriptor
// form. It performs no import resolution and no code validation; see
// vm.Instantiate for the full loader orchestration.
func Decode(data []byte) (*Module, error) {
	r := bytestream.NewReader(data)

	magic, err := readU32(r)
	if err != nil {
		return nil, errAt(UnexpectedEOF, r.Pos())
	}
	if magic != Magic {
		return nil, errAt(BadExecutable, 0)
	}

	version, err := readU32(r)
	if err != nil {
		return nil, errAt(UnexpectedEOF, r.Pos())
	}
	if version != Version {
		return nil, errAt(BadExecutable, 4)
	}

	m := &Module{}
	var lastID byte
	seenAny := false
	for !r.AtEOF() {
		id, err := r.ReadByte()
		if err != nil {
			return nil, errAt(UnexpectedEOF, r.Pos())
		}
		if seenAny && id != SecCustom && lastID != SecCustom && id <= lastID {
			return nil, errAt(UnexpectedToken, r.Pos())
		}

		size, err := r.ReadUnsigned32()
		if err != nil {
			return nil, errAt(UnexpectedEOF, r.Pos())
		}
		body, err := r.GetBytes(int(size))
		if err != nil {
			return nil, errAt(UnexpectedEOF, r.Pos())
		}
		sr := bytestream.NewReader(body)

		if err := dispatchSection(m, id, sr); err != nil {
			return nil, err
		}

		if id != SecCustom {
			lastID = id
		}
		seenAny = true
	}

	return m, nil
}

func dispatchSection(m *Module, id byte, r *bytestream.Reader) error {
	switch id {
	case SecCustom:
		return nil // custom sections carry no semantics for this runtime
	case SecType:
		return readTypeSection(m, r)
	case SecImport:
		return readImportSection(m, r)
	case SecFunction:
		return readFunctionSection(m, r)
	case SecTable:
		return readTableSection(m, r)
	case SecMemory:
		return readMemorySection(m, r)
	case SecGlobal:
		return readGlobalSection(m, r)
	case SecExport:
		return readExportSection(m, r)
	case SecStart:
		return readStartSection(m, r)
	case SecElement:
		return readElementSection(m, r)
	case SecCode:
		return readCodeSection(m, r)
	case SecData:
		return readDataSection(m, r)
	default:
		// Unknown ids are treated as custom per the loader's contract.
		return nil
	}
}

func readU32(r *bytestream.Reader) (uint32, error) {
	b, err := r.GetBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func readValueType(r *bytestream.Reader) (value.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, errAt(UnexpectedEOF, r.Pos())
	}
	switch b {
	case 0x7F:
		return value.I32, nil
	case 0x7E:
		return value.I64, nil
	case 0x7D:
		return value.F32, nil
	case 0x7C:
		return value.F64, nil
	default:
		return 0, errAt(InvalidType, r.Pos())
	}
}

func readLimits(r *bytestream.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, errAt(UnexpectedEOF, r.Pos())
	}
	var l Limits
	switch flag {
	case 0x00:
		l.Min, err = r.ReadUnsigned32()
	case 0x01:
		l.HasMax = true
		if l.Min, err = r.ReadUnsigned32(); err == nil {
			l.Max, err = r.ReadUnsigned32()
		}
	default:
		return Limits{}, errAt(InvalidParameter, r.Pos())
	}
	if err != nil {
		return Limits{}, errAt(UnexpectedEOF, r.Pos())
	}
	return l, nil
}

func readGlobalType(r *bytestream.Reader) (GlobalType, error) {
	vt, err := readValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, errAt(UnexpectedEOF, r.Pos())
	}
	if mut != 0x00 && mut != 0x01 {
		return GlobalType{}, errAt(InvalidParameter, r.Pos())
	}
	return GlobalType{Type: vt, Mutable: mut == 0x01}, nil
}

// readConstExpr consumes a constant-expression byte sequence up to and
// including its terminating 0x0B `end`, without evaluating it (that is
// done lazily once globals are available, see vm.evalConstExpr). Callers
// that need the consumed bytes re-slice with reSlice using the cursor
// position before and after this call.
func readConstExpr(r *bytestream.Reader) error {
	for {
		op, err := r.ReadByte()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		switch op {
		case 0x0B: // end
			return nil
		case 0x41, 0x42: // i32.const, i64.const
			if _, err := r.ReadSigned(); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
		case 0x43: // f32.const
			if _, err := r.GetBytes(4); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
		case 0x44: // f64.const
			if _, err := r.GetBytes(8); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
		case 0x23: // global.get
			if _, err := r.ReadUnsigned32(); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
		default:
			return errAt(UnexpectedToken, r.Pos())
		}
	}
}

func readTypeSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Types = make([]FuncType, n)
	for i := range m.Types {
		form, err := r.ReadByte()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		if form != funcTypeForm {
			return errAt(InvalidBytecode, r.Pos())
		}
		pc, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		params := make([]value.ValueType, pc)
		for j := range params {
			if params[j], err = readValueType(r); err != nil {
				return err
			}
		}
		rc, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		results := make([]value.ValueType, rc)
		for j := range results {
			if results[j], err = readValueType(r); err != nil {
				return err
			}
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func readImportSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Imports = make([]Import, n)
	for i := range m.Imports {
		modName, err := r.GetString()
		if err != nil {
			return errAt(UnexpectedToken, r.Pos())
		}
		fieldName, err := r.GetString()
		if err != nil {
			return errAt(UnexpectedToken, r.Pos())
		}
		kind, err := r.ReadByte()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		imp := Import{Module: modName, Name: fieldName}
		switch kind {
		case 0x00:
			imp.Kind = ImportFunc
			if imp.TypeIdx, err = r.ReadUnsigned32(); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
			m.NumImportedFuncs++
		case 0x01:
			imp.Kind = ImportTable
			et, err := r.ReadByte()
			if err != nil || et != elemTypeFuncRef {
				return errAt(InvalidType, r.Pos())
			}
			if imp.Table.Limits, err = readLimits(r); err != nil {
				return err
			}
		case 0x02:
			imp.Kind = ImportMemory
			if imp.Mem.Limits, err = readLimits(r); err != nil {
				return err
			}
		case 0x03:
			imp.Kind = ImportGlobal
			if imp.GlobalType, err = readGlobalType(r); err != nil {
				return err
			}
		default:
			return errAt(InvalidParameter, r.Pos())
		}
		m.Imports[i] = imp
	}
	return nil
}

func readFunctionSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.FuncTypeIdxs = make([]uint32, n)
	for i := range m.FuncTypeIdxs {
		if m.FuncTypeIdxs[i], err = r.ReadUnsigned32(); err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
	}
	return nil
}

func readTableSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		et, err := r.ReadByte()
		if err != nil || et != elemTypeFuncRef {
			return errAt(InvalidType, r.Pos())
		}
		if m.Tables[i].Limits, err = readLimits(r); err != nil {
			return err
		}
	}
	return nil
}

func readMemorySection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Mems = make([]MemType, n)
	for i := range m.Mems {
		if m.Mems[i].Limits, err = readLimits(r); err != nil {
			return err
		}
	}
	return nil
}

func readGlobalSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Globals = make([]GlobalDesc, n)
	for i := range m.Globals {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		start := r.Pos()
		if err := readConstExpr(r); err != nil {
			return err
		}
		// readConstExpr validates shape; re-slice the exact bytes consumed.
		end := r.Pos()
		m.Globals[i] = GlobalDesc{Type: gt, Init: reSlice(r, start, end)}
	}
	return nil
}

// reSlice recovers the bytes consumed between two cursor positions. The
// Reader only exposes Remaining(), so the caller rewinds, re-reads and
// restores position; this keeps bytestream.Reader's surface minimal while
// still letting higher layers keep a raw expr around for later (lazy)
// evaluation.
func reSlice(r *bytestream.Reader, start, end int) []byte {
	pos := r.Pos()
	r.SetPos(start)
	b, _ := r.GetBytes(end - start)
	r.SetPos(pos)
	return b
}

func readExportSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Exports = make([]Export, n)
	for i := range m.Exports {
		name, err := r.GetString()
		if err != nil {
			return errAt(UnexpectedToken, r.Pos())
		}
		kind, err := r.ReadByte()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		if kind > 0x03 {
			return errAt(InvalidParameter, r.Pos())
		}
		idx, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		m.Exports[i] = Export{Name: name, Kind: ExportKind(kind), Index: idx}
	}
	return nil
}

func readStartSection(m *Module, r *bytestream.Reader) error {
	idx, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Start = &idx
	return nil
}

func readElementSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Elements = make([]ElementSeg, n)
	for i := range m.Elements {
		tableIdx, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		start := r.Pos()
		if err := readConstExpr(r); err != nil {
			return err
		}
		offset := reSlice(r, start, r.Pos())

		cnt, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		idxs := make([]uint32, cnt)
		for j := range idxs {
			if idxs[j], err = r.ReadUnsigned32(); err != nil {
				return errAt(UnexpectedEOF, r.Pos())
			}
		}
		m.Elements[i] = ElementSeg{TableIdx: tableIdx, Offset: offset, FuncIdxs: idxs}
	}
	return nil
}

func readLocals(r *bytestream.Reader) ([]LocalEntry, error) {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return nil, errAt(UnexpectedEOF, r.Pos())
	}
	locals := make([]LocalEntry, n)
	for i := range locals {
		if locals[i].Count, err = r.ReadUnsigned32(); err != nil {
			return nil, errAt(UnexpectedEOF, r.Pos())
		}
		if locals[i].Type, err = readValueType(r); err != nil {
			return nil, err
		}
	}
	return locals, nil
}

func readCodeSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Bodies = make([]FuncBody, n)
	for i := range m.Bodies {
		size, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		raw, err := r.GetBytes(int(size))
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		br := bytestream.NewReader(raw)
		locals, err := readLocals(br)
		if err != nil {
			return err
		}
		m.Bodies[i] = FuncBody{Locals: locals, Code: br.Remaining()}
	}
	if len(m.Bodies) != len(m.FuncTypeIdxs) {
		return errAt(InvalidBytecode, r.Pos())
	}
	return nil
}

func readDataSection(m *Module, r *bytestream.Reader) error {
	n, err := r.ReadUnsigned32()
	if err != nil {
		return errAt(UnexpectedEOF, r.Pos())
	}
	m.Datas = make([]DataSeg, n)
	for i := range m.Datas {
		memIdx, err := r.ReadUnsigned32()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		start := r.Pos()
		if err := readConstExpr(r); err != nil {
			return err
		}
		offset := reSlice(r, start, r.Pos())

		init, err := r.ReadBytes()
		if err != nil {
			return errAt(UnexpectedEOF, r.Pos())
		}
		m.Datas[i] = DataSeg{MemIdx: memIdx, Offset: offset, Init: init}
	}
	return nil
}
