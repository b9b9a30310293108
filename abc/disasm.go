package abc

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ansiOp    = "\x1b[36m"
	ansiName  = "\x1b[33m"
	ansiReset = "\x1b[0m"
)

// Disassemble returns a listing of a method body, one instruction per line.
// With color set, mnemonics and names are wrapped in ANSI escapes.
func Disassemble(body *MethodBody, color bool) string {
	var sb strings.Builder
	m := body.module
	fmt.Fprintf(&sb, "; method %d  max_stack=%d locals=%d scope=%d..%d\n",
		body.Method, body.MaxStack, body.LocalCount, body.InitScopeDepth, body.MaxScopeDepth)

	for pos := 0; pos < len(body.Code); {
		in, err := ReadInstr(body.Code, pos)
		if err != nil {
			fmt.Fprintf(&sb, "%04d  <%v>\n", pos, err)
			break
		}
		sb.WriteString(DisassembleInstr(m, &in, color))
		sb.WriteByte('\n')
		pos = in.Next
	}
	for i, e := range body.Exceptions {
		typ := "*"
		if n, err := e.TypeName(); err == nil {
			typ = n.String()
		}
		fmt.Fprintf(&sb, "; handler %d: [%04d, %04d) -> %04d catch %s\n", i, e.From, e.To, e.Target, typ)
	}
	return sb.String()
}

// DisassembleInstr formats a single instruction. m may be nil, in which
// case constant operands are shown as indices.
func DisassembleInstr(m *Module, in *Instr, color bool) string {
	info := opcodeTable[in.Op]
	op := fmt.Sprintf("%-16s", in.Op.Name())
	if color {
		op = ansiOp + op + ansiReset
	}
	name := func(i int) string {
		s := "#" + strconv.Itoa(i)
		if m != nil {
			if n, err := m.Name(i); err == nil {
				s = n.String()
			}
		}
		if color {
			return ansiName + s + ansiReset
		}
		return s
	}

	var operands string
	switch info.Format {
	case FmtNone:
	case FmtU8, FmtS8:
		operands = strconv.Itoa(in.A)
	case FmtU30:
		operands = constOperand(m, in)
	case FmtU30U30:
		operands = fmt.Sprintf("%d, %d", in.A, in.B)
	case FmtS24:
		operands = fmt.Sprintf("-> %04d", in.Targets[0])
	case FmtName:
		operands = name(in.A)
	case FmtNameArgc:
		operands = fmt.Sprintf("%s (%d)", name(in.A), in.B)
	case FmtSwitch:
		parts := make([]string, len(in.Targets))
		for i, t := range in.Targets {
			parts[i] = fmt.Sprintf("%04d", t)
		}
		operands = "default " + parts[0] + " [" + strings.Join(parts[1:], " ") + "]"
	case FmtDebug:
		operands = fmt.Sprintf("%d, %d, %d, %d", in.A, in.B, in.C, in.D)
	}
	return strings.TrimRight(fmt.Sprintf("%04d  %s%s", in.Pos, op, operands), " ")
}

func constOperand(m *Module, in *Instr) string {
	if m == nil {
		return strconv.Itoa(in.A)
	}
	switch in.Op {
	case OpPushString, OpDebugFile:
		if s, err := m.String(in.A); err == nil {
			return strconv.Quote(s)
		}
	case OpPushInt:
		if v, err := m.Int(in.A); err == nil {
			return strconv.FormatInt(int64(v), 10)
		}
	case OpPushUint:
		if v, err := m.Uint(in.A); err == nil {
			return strconv.FormatUint(uint64(v), 10)
		}
	case OpPushDouble:
		if v, err := m.Double(in.A); err == nil {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case OpPushNamespace:
		if ns, err := m.Namespace(in.A); err == nil {
			return ns.String()
		}
	}
	return strconv.Itoa(in.A)
}
