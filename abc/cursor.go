package abc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cursor is a seekable reader over an in-memory module.
//
// Variable-length integers use up to five bytes: seven payload bits per byte,
// high bit set means another byte follows. The fifth byte contributes bits
// 28-31 and is never treated as a continuation.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor creates a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the total length of the underlying data.
func (c *Cursor) Len() int { return len(c.data) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Seek moves the cursor to an absolute position.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return fmt.Errorf("%w: seek to %d of %d", ErrUnexpectedEOF, pos, len(c.data))
	}
	c.pos = pos
	return nil
}

func (c *Cursor) need(n int) error {
	if c.pos+n > len(c.data) {
		return fmt.Errorf("%w: need %d bytes at %d", ErrUnexpectedEOF, n, c.pos)
	}
	return nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

// ReadU16 reads a little-endian 16-bit value.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadS24 reads a little-endian, sign-extended 24-bit value (branch offsets).
func (c *Cursor) ReadS24() (int32, error) {
	if err := c.need(3); err != nil {
		return 0, err
	}
	b := c.data[c.pos:]
	v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
	c.pos += 3
	return v, nil
}

// ReadU32 reads a variable-length unsigned 32-bit value.
func (c *Cursor) ReadU32() (uint32, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		b, err := c.ReadU8()
		if err != nil {
			return 0, err
		}
		if i == 4 {
			result |= uint32(b) << 28
			return result, nil
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return result, nil
}

// ReadU30 reads a variable-length value used for counts and indices.
// The encoding is identical to u32; values outside 30 bits are rejected.
func (c *Cursor) ReadU30() (uint32, error) {
	start := c.pos
	v, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	if v >= 1<<30 {
		return 0, fmt.Errorf("%w: u30 value %d at %d", ErrMalformed, v, start)
	}
	return v, nil
}

// ReadIndex reads a u30 and returns it as an int.
func (c *Cursor) ReadIndex() (int, error) {
	v, err := c.ReadU30()
	return int(v), err
}

// ReadS32 reads a variable-length signed value. The bits are decoded as u32
// and reinterpreted, so negative numbers always occupy five bytes.
func (c *Cursor) ReadS32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

// ReadD64 reads a little-endian IEEE 754 double.
func (c *Cursor) ReadD64() (float64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadBytes returns the next n bytes without copying.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadString reads a u30 length followed by that many UTF-8 bytes.
func (c *Cursor) ReadString() (string, error) {
	n, err := c.ReadIndex()
	if err != nil {
		return "", err
	}
	b, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SkipU32 advances past one variable-length value without decoding it.
func (c *Cursor) SkipU32() error {
	for i := 0; i < 5; i++ {
		b, err := c.ReadU8()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return nil
}

// SkipU32s skips n variable-length values.
func (c *Cursor) SkipU32s(n int) error {
	for i := 0; i < n; i++ {
		if err := c.SkipU32(); err != nil {
			return err
		}
	}
	return nil
}

// Skip advances by n raw bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// SkipString skips a length-prefixed string.
func (c *Cursor) SkipString() error {
	n, err := c.ReadIndex()
	if err != nil {
		return err
	}
	return c.Skip(n)
}
