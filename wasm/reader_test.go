package wasm

import "testing"

// uleb encodes n as unsigned LEB128, sufficient for the small section-size
// and count values these tests build by hand.
func uleb(n int) []byte {
	var out []byte
	u := uint32(n)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(len(body))...)
	return append(out, body...)
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

// minimalModule builds a one-function module: (i32, i32) -> i32 computing
// i32.add of its two parameters, exported as "add".
func minimalModule(t *testing.T) []byte {
	t.Helper()
	typeSec := section(SecType, append([]byte{0x01, funcTypeForm, 0x02, 0x7F, 0x7F, 0x01}, 0x7F))
	funcSec := section(SecFunction, []byte{0x01, 0x00})
	exportName := []byte("add")
	exportBody := append([]byte{0x01}, uleb(len(exportName))...)
	exportBody = append(exportBody, exportName...)
	exportBody = append(exportBody, 0x00, 0x00) // kind func, index 0
	exportSec := section(SecExport, exportBody)

	code := []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B} // local.get 0; local.get 1; i32.add; end
	body := append([]byte{0x00}, code...)              // zero local-decl entries
	codeEntry := append(uleb(len(body)), body...)
	codeSec := section(SecCode, append([]byte{0x01}, codeEntry...))

	out := header()
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

func TestDecodeMinimalModule(t *testing.T) {
	data := minimalModule(t)
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(m.Types) != 1 {
		t.Fatalf("want 1 type, got %d", len(m.Types))
	}
	if len(m.Types[0].Params) != 2 || len(m.Types[0].Results) != 1 {
		t.Fatalf("unexpected func type: %+v", m.Types[0])
	}
	if len(m.Bodies) != 1 {
		t.Fatalf("want 1 code body, got %d", len(m.Bodies))
	}
	if len(m.Exports) != 1 || m.Exports[0].Name != "add" {
		t.Fatalf("unexpected exports: %+v", m.Exports)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x61, 0x73})
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("want *DecodeError, got %v (%T)", err, err)
	}
	if de.Kind != UnexpectedEOF {
		t.Errorf("want UnexpectedEOF, got %v", de.Kind)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x01, 0x01, 0x00, 0x00, 0x00}
	_, err := Decode(data)
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("want *DecodeError, got %v (%T)", err, err)
	}
	if de.Kind != BadExecutable {
		t.Errorf("want BadExecutable, got %v", de.Kind)
	}
}

func TestDecodeBadVersion(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	_, err := Decode(data)
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("want *DecodeError, got %v (%T)", err, err)
	}
	if de.Kind != BadExecutable {
		t.Errorf("want BadExecutable, got %v", de.Kind)
	}
}

func TestDecodeOutOfOrderSections(t *testing.T) {
	data := header()
	data = append(data, section(SecFunction, []byte{0x01, 0x00})...)
	data = append(data, section(SecType, append([]byte{0x01, funcTypeForm, 0x00, 0x00}))...)
	_, err := Decode(data)
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("want *DecodeError, got %v (%T)", err, err)
	}
	if de.Kind != UnexpectedToken {
		t.Errorf("want UnexpectedToken, got %v", de.Kind)
	}
}
