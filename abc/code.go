package abc

import "fmt"

// Instr is one raw instruction read from a method body.
type Instr struct {
	Pos  int // offset of the opcode byte
	Next int // offset of the following instruction
	Op   Opcode

	// Operands in encoding order. Branch offsets are already converted to
	// absolute positions in Targets.
	A, B, C, D int

	// Branch targets. For lookupswitch the default target comes first.
	Targets []int
}

// Argc returns the argument count operand of call-like instructions.
func (in *Instr) Argc() int {
	switch opcodeTable[in.Op].Format {
	case FmtNameArgc, FmtU30U30:
		return in.B
	}
	return in.A
}

// ReadInstr decodes the instruction at pos. Operand widths follow the
// opcode table: u30 indices and counts, s24 branch offsets relative to the
// end of the instruction, lookupswitch offsets relative to its start.
func ReadInstr(code []byte, pos int) (Instr, error) {
	c := NewCursor(code)
	if err := c.Seek(pos); err != nil {
		return Instr{}, err
	}
	b, err := c.ReadU8()
	if err != nil {
		return Instr{}, err
	}
	in := Instr{Pos: pos, Op: Opcode(b)}
	info, ok := opcodeTable[in.Op]
	if !ok {
		return in, fmt.Errorf("%w: 0x%02x at %d", ErrBadOpcode, b, pos)
	}

	u := func() (int, error) {
		v, err := c.ReadU32()
		return int(v), err
	}

	switch info.Format {
	case FmtNone:
	case FmtU8:
		v, e := c.ReadU8()
		in.A, err = int(v), e
	case FmtS8:
		v, e := c.ReadU8()
		in.A, err = int(int8(v)), e
	case FmtU30, FmtName:
		in.A, err = u()
		if err == nil && in.Op == OpPushShort {
			in.A = int(int16(uint16(in.A)))
		}
	case FmtU30U30, FmtNameArgc:
		if in.A, err = u(); err == nil {
			in.B, err = u()
		}
	case FmtS24:
		var off int32
		if off, err = c.ReadS24(); err == nil {
			in.A = int(off)
			in.Targets = []int{c.Pos() + int(off)}
		}
	case FmtSwitch:
		err = readSwitch(c, &in)
	case FmtDebug:
		var x uint8
		if x, err = c.ReadU8(); err != nil {
			break
		}
		in.A = int(x)
		if in.B, err = u(); err != nil {
			break
		}
		if x, err = c.ReadU8(); err != nil {
			break
		}
		in.C = int(x)
		in.D, err = u()
	}
	if err != nil {
		return in, fmt.Errorf("%s at %d: %w", in.Op, pos, err)
	}
	in.Next = c.Pos()
	return in, nil
}

func readSwitch(c *Cursor, in *Instr) error {
	def, err := c.ReadS24()
	if err != nil {
		return err
	}
	n, err := c.ReadU30()
	if err != nil {
		return err
	}
	if int(n) >= c.Remaining() {
		return fmt.Errorf("%w: %d switch cases", ErrMalformed, n)
	}
	in.A = int(n) + 1
	in.Targets = make([]int, 0, n+2)
	in.Targets = append(in.Targets, in.Pos+int(def))
	for i := 0; i <= int(n); i++ {
		off, err := c.ReadS24()
		if err != nil {
			return err
		}
		in.Targets = append(in.Targets, in.Pos+int(off))
	}
	return nil
}

// ReadCode decodes a whole body in one linear scan.
func ReadCode(code []byte) ([]Instr, error) {
	var out []Instr
	for pos := 0; pos < len(code); {
		in, err := ReadInstr(code, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pos = in.Next
	}
	return out, nil
}
