package bytestream

import "testing"

func TestReadUnsigned(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x7F}, 127},
		{[]byte{0xFF, 0x00}, 127},
		{[]byte{0xEF, 0xFD, 0xB6, 0xF5, 0x0D}, 0xDEADBEEF},
		{[]byte{0xEF, 0xFD, 0xB6, 0xF5, 0x7D}, 0x7DEADBEEF},
	}
	for _, c := range cases {
		r := NewReader(c.in)
		got, err := r.ReadUnsigned()
		if err != nil {
			t.Fatalf("ReadUnsigned(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ReadUnsigned(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestReadSigned(t *testing.T) {
	cases := []struct {
		in   []byte
		want int64
	}{
		{[]byte{0x7F}, -1},
		{[]byte{0xFF, 0x00}, 127},
		{[]byte{0xEF, 0xFD, 0xB6, 0xF5, 0x0D}, 0xDEADBEEF},
		{[]byte{0xEF, 0xFD, 0xB6, 0xF5, 0x7D}, -559038737},
	}
	for _, c := range cases {
		r := NewReader(c.in)
		got, err := r.ReadSigned()
		if err != nil {
			t.Fatalf("ReadSigned(%v): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ReadSigned(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestReadByteEOF(t *testing.T) {
	r := NewReader(nil)
	if _, err := r.ReadByte(); err != ErrUnexpectedEOF {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestGetStringInvalidUTF8(t *testing.T) {
	// length 1, followed by an invalid UTF-8 byte.
	r := NewReader([]byte{0x01, 0xFF})
	if _, err := r.GetString(); err != ErrInvalidUTF8 {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestGetBytesSubslice(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	b, err := r.GetBytes(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 3 || b[0] != 1 || b[2] != 3 {
		t.Errorf("unexpected sub-slice %v", b)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 remaining bytes, got %d", r.Len())
	}
}
