// Package jit compiles method bodies into closure-threaded code.
//
// Compilation runs four stages over one method: Decode turns the byte
// stream into Instructions with pre-resolved operands, Analyze propagates
// operand and scope stack depths, Generate emits one closure per
// instruction against a fixed register file, and Link wraps the program
// into a vm.Code entry point with the body's exception table.
package jit

import (
	"errors"
	"fmt"

	"github.com/chazu/abcvm/abc"
)

var (
	ErrUnknownOpcode     = errors.New("jit: unknown opcode")
	ErrStackUnderrun     = errors.New("jit: operand stack underrun")
	ErrScopeUnderrun     = errors.New("jit: scope stack underrun")
	ErrInconsistentDepth = errors.New("jit: inconsistent stack depth at merge")
	ErrBadBranch         = errors.New("jit: bad branch target")
)

// Op is an opcode as seen by the compiler. Instructions whose name operand
// needs runtime parts carry the Dynamic bit, so later stages never look at
// the name encoding again.
type Op uint16

// Dynamic marks the runtime-name variant of a name-taking opcode.
const Dynamic Op = 0x100

// Base returns the underlying bytecode opcode.
func (op Op) Base() abc.Opcode { return abc.Opcode(op &^ Dynamic) }

// IsDynamic reports whether the instruction pops runtime name parts.
func (op Op) IsDynamic() bool { return op&Dynamic != 0 }

func (op Op) String() string {
	if op.IsDynamic() {
		return op.Base().Name() + ".rt"
	}
	return op.Base().Name()
}

// Instruction is one decoded instruction.
type Instruction struct {
	Pos  int // byte offset in the body
	Next int
	Op   Op

	// A and B are the raw operands (index, count, register or immediate).
	A, B int

	// Name is the pre-resolved multiname of name-taking opcodes, and
	// NameIndex its module index.
	Name      *abc.Name
	NameIndex int
	// RuntimeNS and RuntimeLocal report which name parts come off the
	// operand stack.
	RuntimeNS, RuntimeLocal bool

	// Targets are instruction indices; for lookupswitch the default comes
	// first.
	Targets []int

	Pops, Pushes int
	ScopeDelta   int
	Terminal     bool
}

// Argc returns the argument count of call-like instructions.
func (in *Instruction) Argc() int {
	info, _ := in.Op.Base().Info()
	switch info.Format {
	case abc.FmtNameArgc, abc.FmtU30U30:
		return in.B
	}
	return in.A
}

func (in *Instruction) String() string {
	s := fmt.Sprintf("%4d %s", in.Pos, in.Op)
	if in.Name != nil {
		return s + " " + in.Name.String()
	}
	return s
}

// Decode scans a method body once and returns its instructions.
func Decode(mod *abc.Module, body *abc.MethodBody) ([]*Instruction, error) {
	raw, err := abc.ReadCode(body.Code)
	if err != nil {
		if errors.Is(err, abc.ErrBadOpcode) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownOpcode, err)
		}
		return nil, err
	}
	index := make(map[int]int, len(raw))
	for i, r := range raw {
		index[r.Pos] = i
	}

	out := make([]*Instruction, len(raw))
	for i := range raw {
		r := &raw[i]
		info, _ := r.Op.Info()
		in := &Instruction{
			Pos:        r.Pos,
			Next:       r.Next,
			Op:         Op(r.Op),
			A:          r.A,
			B:          r.B,
			Pushes:     info.Pushes,
			ScopeDelta: info.ScopeDelta,
			Terminal:   info.Flags&abc.Terminal != 0,
		}
		if info.Format == abc.FmtName || info.Format == abc.FmtNameArgc {
			n, err := mod.Name(r.A)
			if err != nil {
				return nil, fmt.Errorf("%s at %d: %w", r.Op, r.Pos, err)
			}
			in.Name, in.NameIndex = n, r.A
			in.RuntimeNS = n.NeedsRuntimeNamespace()
			in.RuntimeLocal = n.NeedsRuntimeName()
			if in.RuntimeNS || in.RuntimeLocal {
				in.Op |= Dynamic
			}
		}
		in.Pops = pops(in, info)
		for _, pos := range r.Targets {
			t, ok := index[pos]
			if !ok {
				return nil, fmt.Errorf("%w: %s at %d jumps to %d", ErrBadBranch, r.Op, r.Pos, pos)
			}
			in.Targets = append(in.Targets, t)
		}
		out[i] = in
	}
	return out, nil
}

func pops(in *Instruction, info abc.OpcodeInfo) int {
	n := info.Pops
	switch {
	case info.Flags&abc.PopsArgc != 0:
		n += in.Argc()
	case info.Flags&abc.PopsArgcPairs != 0:
		n += 2 * in.A
	}
	if info.Flags&abc.PopsName != 0 {
		if in.RuntimeNS {
			n++
		}
		if in.RuntimeLocal {
			n++
		}
	}
	return n
}
