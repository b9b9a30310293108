package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/abcvm/abc"
)

// traceModule builds a module whose entry script traces the value of the
// public global named by lookup, or msg when lookup is empty.
func traceModule(msg, lookup string) []byte {
	b := abc.NewModuleBuilder()
	trace := b.PublicName("trace")
	cb := abc.NewCodeBuilder().EmitU30(abc.OpFindPropStrict, trace)
	if lookup == "" {
		cb.EmitU30(abc.OpPushString, b.String(msg))
	} else {
		name := b.PublicName(lookup)
		cb.EmitU30(abc.OpFindPropStrict, name).EmitU30(abc.OpGetProperty, name)
	}
	cb.EmitU30(abc.OpCallPropVoid, trace, 1).Emit(abc.OpReturnVoid)
	init := b.Function(abc.MethodSig{}, abc.BodyDef{MaxStack: 3, MaxScope: 1, Code: cb.Bytes()})
	b.Script(init)
	return b.Bytes()
}

func constModule(local string, value int32) []byte {
	b := abc.NewModuleBuilder()
	init := b.Function(abc.MethodSig{}, abc.BodyDef{
		Code:     abc.NewCodeBuilder().Emit(abc.OpReturnVoid).Bytes(),
		MaxStack: 1,
		MaxScope: 1,
	})
	b.Script(init, abc.ConstDef(b.PublicName(local), 0, b.PublicName("int"), abc.ValueRef{Index: b.Int(value), Kind: abc.ValueInt}))
	return b.Bytes()
}

type workspace struct {
	t   *testing.T
	dir string
	cfg string
}

func newWorkspace(t *testing.T) *workspace {
	w := &workspace{t: t, dir: t.TempDir()}
	w.cfg = w.write("abcvm.toml", []byte("[log]\nverbosity = -1\n"))
	return w
}

func (w *workspace) write(name string, data []byte) string {
	w.t.Helper()
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		w.t.Fatal(err)
	}
	return path
}

func (w *workspace) run(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(append([]string{"-config", w.cfg}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

// ---------------------------------------------------------------------------
// Running modules
// ---------------------------------------------------------------------------

func TestRunModule(t *testing.T) {
	for _, args := range [][]string{nil, {"-no-jit"}} {
		w := newWorkspace(t)
		main := w.write("main.abc", traceModule("hello", ""))
		code, out, errOut := w.run(append(args, main)...)
		if code != 0 {
			t.Fatalf("%v: exit = %d, stderr = %s", args, code, errOut)
		}
		if out != "hello\n" {
			t.Errorf("%v: output = %q, want hello", args, out)
		}
	}
}

func TestRunWithCatalog(t *testing.T) {
	w := newWorkspace(t)
	lib := w.write("answer.abc", constModule("answer", 42))
	bundle, cat := filepath.Join(w.dir, "lib.bundle"), filepath.Join(w.dir, "lib.cat")
	if code, _, errOut := w.run("-bundle", bundle, "-catalog", cat, lib); code != 0 {
		t.Fatalf("bundle exit = %d, stderr = %s", code, errOut)
	}
	main := w.write("main.abc", traceModule("", "answer"))

	code, out, errOut := w.run("-catalog", cat, "-stats", main)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	if !strings.HasPrefix(out, "42\n") {
		t.Errorf("output = %q, want 42 first", out)
	}
	if !strings.Contains(out, "jit: ") || !strings.Contains(out, "interp: ") {
		t.Errorf("stats missing from %q", out)
	}
	if !strings.Contains(out, "domain ") || !strings.Contains(out, ": 2 modules") {
		t.Errorf("domain stats missing from %q, want the catalog module counted", out)
	}

	if code, _, _ := w.run(main); code != 1 {
		t.Errorf("exit without catalog = %d, want 1", code)
	}
}

func TestPreload(t *testing.T) {
	w := newWorkspace(t)
	w.write("answer.abc", constModule("answer", 7))
	w.cfg = w.write("abcvm.toml", []byte("preload = [\"answer.abc\"]\n[log]\nverbosity = -1\n"))
	main := w.write("main.abc", traceModule("", "answer"))
	code, out, errOut := w.run(main)
	if code != 0 || out != "7\n" {
		t.Errorf("exit = %d, output = %q, stderr = %s", code, out, errOut)
	}
}

// ---------------------------------------------------------------------------
// Other modes
// ---------------------------------------------------------------------------

func TestDisasm(t *testing.T) {
	w := newWorkspace(t)
	lib := w.write("answer.abc", constModule("answer", 1))
	main := w.write("main.abc", traceModule("hi", ""))
	code, out, errOut := w.run("-disasm", "-color", "never", lib, main)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, errOut)
	}
	for _, want := range []string{"; defines answer", "findpropstrict", "callpropvoid", "returnvoid"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("listing is colorized with -color never")
	}
}

func TestUsageErrors(t *testing.T) {
	w := newWorkspace(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no modules", nil, 2},
		{"bundle without catalog", []string{"-bundle", "x.bundle", "a.abc"}, 2},
		{"unknown flag", []string{"-bogus"}, 2},
		{"missing module", []string{filepath.Join(w.dir, "missing.abc")}, 1},
		{"malformed module", []string{w.write("junk.abc", []byte{1, 2})}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := w.run(tt.args...); code != tt.want {
				t.Errorf("exit = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	if useColor("auto", &buf) {
		t.Error("auto colorizes a buffer")
	}
	if !useColor("always", &buf) || useColor("never", os.Stdout) {
		t.Error("explicit modes ignored")
	}
}
