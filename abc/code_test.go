package abc

import (
	"errors"
	"strings"
	"testing"
)

func TestCodeBuilderBranches(t *testing.T) {
	cb := NewCodeBuilder()
	top := cb.NewLabel()
	done := cb.NewLabel()
	cb.Mark(top)
	cb.GetLocal(1)
	cb.Jump(OpIfFalse, done)
	cb.Jump(OpJump, top)
	cb.Mark(done)
	cb.Emit(OpReturnVoid)

	instrs, err := ReadCode(cb.Bytes())
	if err != nil {
		t.Fatalf("ReadCode failed: %v", err)
	}
	if len(instrs) != 4 {
		t.Fatalf("got %d instructions, want 4", len(instrs))
	}
	iffalse := instrs[1]
	if iffalse.Op != OpIfFalse || iffalse.Targets[0] != instrs[3].Pos {
		t.Errorf("iffalse target = %v, want %d", iffalse.Targets, instrs[3].Pos)
	}
	jump := instrs[2]
	if jump.Targets[0] != 0 {
		t.Errorf("backward jump target = %d, want 0", jump.Targets[0])
	}
	if jump.A != -(jump.Next) {
		t.Errorf("backward jump offset = %d, want %d", jump.A, -jump.Next)
	}
}

func TestLookupSwitchTargets(t *testing.T) {
	cb := NewCodeBuilder()
	def, a, b := cb.NewLabel(), cb.NewLabel(), cb.NewLabel()
	cb.PushByte(1)
	cb.LookupSwitch(def, a, b)
	cb.Mark(a).Emit(OpReturnVoid)
	cb.Mark(b).Emit(OpReturnVoid)
	cb.Mark(def).Emit(OpReturnVoid)

	in, err := ReadInstr(cb.Bytes(), 2)
	if err != nil {
		t.Fatalf("ReadInstr failed: %v", err)
	}
	if in.Op != OpLookupSwitch || in.A != 2 {
		t.Fatalf("instr = %s with %d cases", in.Op, in.A)
	}
	want := []int{in.Next + 2, in.Next, in.Next + 1}
	for i, w := range want {
		if in.Targets[i] != w {
			t.Errorf("Targets[%d] = %d, want %d", i, in.Targets[i], w)
		}
	}
}

func TestOperandDecoding(t *testing.T) {
	cb := NewCodeBuilder()
	cb.PushByte(-3)
	cb.PushShort(-300)
	cb.EmitU30(OpCallProperty, 5, 2)
	cb.EmitU8(OpGetScopeObject, 1)
	cb.GetLocal(7)
	instrs, err := ReadCode(cb.Bytes())
	if err != nil {
		t.Fatalf("ReadCode failed: %v", err)
	}
	if instrs[0].A != -3 {
		t.Errorf("pushbyte = %d, want -3", instrs[0].A)
	}
	if instrs[1].A != -300 {
		t.Errorf("pushshort = %d, want -300", instrs[1].A)
	}
	if instrs[2].A != 5 || instrs[2].Argc() != 2 {
		t.Errorf("callproperty operands = %d, %d", instrs[2].A, instrs[2].Argc())
	}
	if instrs[3].A != 1 {
		t.Errorf("getscopeobject = %d, want 1", instrs[3].A)
	}
	if instrs[4].Op != OpGetLocal || instrs[4].A != 7 {
		t.Errorf("getlocal = %s %d", instrs[4].Op, instrs[4].A)
	}
}

func TestUnknownOpcode(t *testing.T) {
	if _, err := ReadCode([]byte{0xFF}); !errors.Is(err, ErrBadOpcode) {
		t.Errorf("ReadCode(0xff) error = %v, want ErrBadOpcode", err)
	}
	if Opcode(0xFF).Known() {
		t.Error("0xff should not be a known opcode")
	}
	if Opcode(0xFF).Name() != "op_ff" {
		t.Errorf("Name = %q, want op_ff", Opcode(0xFF).Name())
	}
}

func TestOpcodeTableConsistency(t *testing.T) {
	for op, info := range opcodeTable {
		if info.Name == "" {
			t.Errorf("opcode %#x has no name", byte(op))
		}
		if info.Flags&Branches != 0 && info.Format != FmtS24 && info.Format != FmtSwitch {
			t.Errorf("%s branches without a branch operand", info.Name)
		}
	}
}

func TestDisassemble(t *testing.T) {
	b := NewModuleBuilder()
	trace := b.PublicName("trace")
	hello := b.String("hello")
	code := NewCodeBuilder().
		Emit(OpGetLocal0, OpPushScope).
		EmitU30(OpFindPropStrict, trace).
		EmitU30(OpPushString, hello).
		EmitU30(OpCallPropVoid, trace, 1).
		Emit(OpReturnVoid).
		Bytes()
	mi := b.Function(MethodSig{}, BodyDef{MaxStack: 2, InitScope: 0, MaxScope: 1, Code: code})
	m := openBuilt(t, b, nil)
	body, _ := m.Body(mi)

	out := Disassemble(body, false)
	for _, want := range []string{"0000  getlocal0", "findpropstrict  trace", `pushstring      "hello"`, "callpropvoid    trace (1)", "returnvoid"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("uncolored listing contains escapes")
	}
	if !strings.Contains(Disassemble(body, true), "\x1b[36m") {
		t.Error("colored listing has no escapes")
	}
}
