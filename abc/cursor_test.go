package abc

import (
	"errors"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Variable-length integers
// ---------------------------------------------------------------------------

func TestReadU32Boundaries(t *testing.T) {
	values := []uint32{0, 127, 128, 16383, 16384, 2097151, 2097152, 268435455, 268435456, 4294967295}
	wantLen := []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5}

	for i, v := range values {
		data := appendU30(nil, int(v))
		if len(data) != wantLen[i] {
			t.Errorf("encoding of %d has %d bytes, want %d", v, len(data), wantLen[i])
		}
		c := NewCursor(data)
		got, err := c.ReadU32()
		if err != nil {
			t.Fatalf("ReadU32(%d) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("ReadU32 = %d, want %d", got, v)
		}
		if c.Pos() != len(data) {
			t.Errorf("Pos after %d = %d, want %d", v, c.Pos(), len(data))
		}
	}
}

func TestReadU32FifthByteIsNotContinuation(t *testing.T) {
	c := NewCursor([]byte{0x80, 0x80, 0x80, 0x80, 0xff, 0x01})
	got, err := c.ReadU32()
	if err != nil {
		t.Fatalf("ReadU32 failed: %v", err)
	}
	if got != 0xf0000000 {
		t.Errorf("ReadU32 = %#x, want 0xf0000000", got)
	}
	if c.Pos() != 5 {
		t.Errorf("Pos = %d, want 5", c.Pos())
	}
}

func TestReadS32Negative(t *testing.T) {
	c := NewCursor(appendU30(nil, -1))
	got, err := c.ReadS32()
	if err != nil {
		t.Fatalf("ReadS32 failed: %v", err)
	}
	if got != -1 {
		t.Errorf("ReadS32 = %d, want -1", got)
	}
}

func TestReadU30RejectsWideValues(t *testing.T) {
	c := NewCursor(appendU30(nil, 1<<30))
	if _, err := c.ReadU30(); !errors.Is(err, ErrMalformed) {
		t.Errorf("ReadU30(1<<30) error = %v, want ErrMalformed", err)
	}
}

func TestReadTruncated(t *testing.T) {
	c := NewCursor([]byte{0x80})
	if _, err := c.ReadU32(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadU32 on truncated input error = %v, want ErrUnexpectedEOF", err)
	}
	c = NewCursor([]byte{1, 2})
	if _, err := c.ReadD64(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadD64 on truncated input error = %v, want ErrUnexpectedEOF", err)
	}
	c = NewCursor([]byte{5, 'a'})
	if _, err := c.ReadString(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("ReadString on truncated input error = %v, want ErrUnexpectedEOF", err)
	}
}

// ---------------------------------------------------------------------------
// Fixed-width values
// ---------------------------------------------------------------------------

func TestReadS24(t *testing.T) {
	tests := []struct {
		data []byte
		want int32
	}{
		{[]byte{0x00, 0x00, 0x00}, 0},
		{[]byte{0x05, 0x00, 0x00}, 5},
		{[]byte{0xff, 0xff, 0xff}, -1},
		{[]byte{0x00, 0x00, 0x80}, -8388608},
		{[]byte{0xff, 0xff, 0x7f}, 8388607},
	}
	for _, tt := range tests {
		got, err := NewCursor(tt.data).ReadS24()
		if err != nil {
			t.Fatalf("ReadS24(%x) failed: %v", tt.data, err)
		}
		if got != tt.want {
			t.Errorf("ReadS24(%x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestReadU16AndD64(t *testing.T) {
	c := NewCursor([]byte{0x10, 0x00, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f})
	v, err := c.ReadU16()
	if err != nil || v != 16 {
		t.Errorf("ReadU16 = %d, %v, want 16", v, err)
	}
	d, err := c.ReadD64()
	if err != nil || d != 1.0 {
		t.Errorf("ReadD64 = %v, %v, want 1", d, err)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", c.Remaining())
	}
}

func TestSkipAndSeek(t *testing.T) {
	data := appendU30s(nil, 300, 5, 1<<20)
	data = append(data, 3, 'a', 'b', 'c')
	c := NewCursor(data)
	if err := c.SkipU32s(3); err != nil {
		t.Fatalf("SkipU32s failed: %v", err)
	}
	s, err := c.ReadString()
	if err != nil || s != "abc" {
		t.Errorf("ReadString = %q, %v, want \"abc\"", s, err)
	}
	if err := c.Seek(len(data) + 1); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("Seek past end error = %v, want ErrUnexpectedEOF", err)
	}
	if err := c.Seek(0); err != nil {
		t.Fatalf("Seek(0) failed: %v", err)
	}
	if v, _ := c.ReadU32(); v != 300 {
		t.Errorf("ReadU32 after Seek = %d, want 300", v)
	}
}

func TestNaNSentinel(t *testing.T) {
	if !math.IsNaN(nanDouble) {
		t.Error("double sentinel should be NaN")
	}
}
