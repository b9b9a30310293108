package vm

import (
	"errors"
	"testing"

	"github.com/chazu/abcvm/abc"
)

// constModule builds a module with one script defining a public int
// constant.
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

type mapCatalog struct {
	modules map[string][]byte
	lookups int
}

func (c *mapCatalog) Lookup(q string) ([]byte, string, bool, error) {
	c.lookups++
	data, ok := c.modules[q]
	return data, q + ".abc", ok, nil
}

// ---------------------------------------------------------------------------
// Script execution
// ---------------------------------------------------------------------------

func TestExecuteScriptOnce(t *testing.T) {
	interp := &stubInterpreter{}
	rt, _ := newTestRuntime(Options{Interpreter: interp})
	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(constModule("answer", 42), "a.abc"); err != nil {
		t.Fatal(err)
	}
	scripts := d.Scripts()
	if len(scripts) != 1 || scripts[0].State() != ScriptUnexecuted {
		t.Fatalf("scripts = %v", scripts)
	}
	s := scripts[0]
	if err := d.ExecuteScript(s); err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if s.State() != ScriptExecuted {
		t.Errorf("State = %s, want executed", s.State())
	}
	if err := d.ExecuteScript(s); !errors.Is(err, ErrScriptReentry) {
		t.Errorf("second ExecuteScript error = %v, want ErrScriptReentry", err)
	}
	if interp.prepared != 1 {
		t.Errorf("initializer prepared %d times, want 1", interp.prepared)
	}
}

func TestExecuteScriptReentryDuringInit(t *testing.T) {
	interp := &stubInterpreter{}
	rt, _ := newTestRuntime(Options{Interpreter: interp})
	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(constModule("answer", 42), "a.abc"); err != nil {
		t.Fatal(err)
	}
	s := d.Scripts()[0]
	var inner error
	interp.body = func(*Runtime, *Method, Value, []Value) Value {
		inner = d.ExecuteScript(s)
		return Undefined
	}
	if err := d.ExecuteScript(s); err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !errors.Is(inner, ErrScriptReentry) {
		t.Errorf("nested ExecuteScript error = %v, want ErrScriptReentry", inner)
	}
}

func TestFindPropertyExecutesDefiningScript(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(constModule("answer", 42), "a.abc"); err != nil {
		t.Fatal(err)
	}
	v, err := d.GetProperty(rt.PublicName("answer"))
	if err != nil || v != int32(42) {
		t.Errorf("GetProperty(answer) = %v, %v, want 42", v, err)
	}
	if s := d.Scripts()[0]; s.State() != ScriptExecuted {
		t.Errorf("defining script state = %s, want executed", s.State())
	}

	if _, err := d.FindProperty(rt.PublicName("missing"), true); err == nil {
		t.Error("strict FindProperty of a missing name succeeded")
	}
	if v, err := d.FindProperty(rt.PublicName("missing"), false); err != nil || v != Undefined {
		t.Errorf("FindProperty(missing) = %v, %v, want undefined", v, err)
	}
}

func TestDomainParentFirst(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	parent := rt.NewDomain(rt.SystemDomain())
	child := rt.NewDomain(parent)
	if _, err := parent.LoadModule(constModule("answer", 1), "parent.abc"); err != nil {
		t.Fatal(err)
	}
	if _, err := child.LoadModule(constModule("answer", 2), "child.abc"); err != nil {
		t.Fatal(err)
	}
	s, err := child.FindDefiningScript(rt.PublicName("answer"), false)
	if err != nil {
		t.Fatal(err)
	}
	if s == nil || s.Domain != parent {
		t.Errorf("defining script = %v, want the parent's", s)
	}
	if v, _ := child.GetProperty(rt.PublicName("answer")); v != int32(1) {
		t.Errorf("child answer = %v, want the parent's 1", v)
	}
	if child.Parent() != parent || child.Runtime() != rt {
		t.Error("domain accessors mismatch")
	}
}

func TestDomainCatalogLoad(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	cat := &mapCatalog{modules: map[string][]byte{"lazy": constModule("lazy", 7)}}
	d := rt.NewDomain(rt.SystemDomain())
	d.SetCatalog(cat)

	v, err := d.GetProperty(rt.PublicName("lazy"))
	if err != nil || v != int32(7) {
		t.Fatalf("GetProperty(lazy) = %v, %v, want 7", v, err)
	}
	if len(d.Modules()) != 1 {
		t.Errorf("modules = %d, want 1", len(d.Modules()))
	}
	before := cat.lookups
	if _, err := d.GetProperty(rt.PublicName("lazy")); err != nil {
		t.Fatal(err)
	}
	if cat.lookups != before {
		t.Errorf("second lookup consulted the catalog again")
	}
	if _, err := d.FindProperty(rt.PublicName("absent"), false); err != nil {
		t.Errorf("FindProperty(absent) error = %v", err)
	}
	if len(d.Modules()) != 1 {
		t.Errorf("modules after a miss = %d, want 1", len(d.Modules()))
	}
}

func TestFindDefiningScriptMultiname(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	in := rt.Interner()
	internal := in.Namespace(abc.NamespaceKindPackageInternal, "")
	answer := in.Multiname(abc.NewNamespaceSet(internal, in.Public()), "answer")

	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(constModule("answer", 42), "a.abc"); err != nil {
		t.Fatal(err)
	}
	s, err := d.FindDefiningScript(answer, false)
	if err != nil || s == nil {
		t.Fatalf("FindDefiningScript({internal, public}::answer) = %v, %v", s, err)
	}
	if v, err := d.GetProperty(answer); err != nil || v != int32(42) {
		t.Errorf("GetProperty = %v, %v, want 42", v, err)
	}
	if s, _ := d.FindDefiningScript(in.Multiname(abc.NewNamespaceSet(internal), "answer"), false); s != nil {
		t.Errorf("internal-only multiname matched the public definition")
	}

	lazy := rt.NewDomain(rt.SystemDomain())
	lazy.SetCatalog(&mapCatalog{modules: map[string][]byte{"lazy": constModule("lazy", 7)}})
	v, err := lazy.GetProperty(in.Multiname(abc.NewNamespaceSet(internal, in.Public()), "lazy"))
	if err != nil || v != int32(7) {
		t.Errorf("catalog GetProperty(multiname) = %v, %v, want 7", v, err)
	}
}

func TestGetClassBuiltin(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	d := rt.NewDomain(rt.SystemDomain())
	c, err := d.GetClass("Array")
	if err != nil || c != rt.builtins.Array {
		t.Errorf("GetClass(Array) = %v, %v", c, err)
	}
	v, err := d.GetClass("__AS3__.vec::Vector")
	if err != nil || v != rt.builtins.Vector {
		t.Errorf("GetClass(Vector) = %v, %v", v, err)
	}
	if _, err := d.GetClass("no.such::Thing"); err == nil {
		t.Error("GetClass of a missing class succeeded")
	}
}

func TestDomainMemory(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	d := rt.NewDomain(rt.SystemDomain())
	mem := make([]byte, 16)
	d.SetMemory(mem)

	rt.MemStore(d.Memory(), abc.OpSi32, int32(-2), int32(4))
	if got := rt.MemLoad(d.Memory(), abc.OpLi32, int32(4)); got != int32(-2) {
		t.Errorf("li32 = %v, want -2", got)
	}
	if got := rt.MemLoad(d.Memory(), abc.OpLi8, int32(4)); got != int32(0xFE) {
		t.Errorf("li8 = %v, want 254", got)
	}
	rt.MemStore(d.Memory(), abc.OpSf64, 1.5, int32(8))
	if got := rt.MemLoad(d.Memory(), abc.OpLf64, int32(8)); got != 1.5 {
		t.Errorf("lf64 = %v, want 1.5", got)
	}
	err := catchError(rt, func() { rt.MemLoad(d.Memory(), abc.OpLi32, int32(14)) })
	wantCode(t, err, CodeMemoryRange)

	if got := SignExtend(abc.OpSxi8, int32(0xFF)); got != int32(-1) {
		t.Errorf("sxi8(255) = %v, want -1", got)
	}
	if got := SignExtend(abc.OpSxi1, int32(3)); got != int32(-1) {
		t.Errorf("sxi1(3) = %v, want -1", got)
	}
}
