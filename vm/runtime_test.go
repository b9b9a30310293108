package vm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/abcvm/abc"
)

func newTestRuntime(opts Options) (*Runtime, *bytes.Buffer) {
	var out bytes.Buffer
	opts.Output = &out
	return New(opts), &out
}

// catchError runs fn and returns the runtime error it throws, if any.
func catchError(rt *Runtime, fn func()) (err error) {
	defer rt.recoverTo(&err)
	fn()
	return nil
}

func wantCode(t *testing.T, err error, code int) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want runtime error %d", err, code)
	}
	if e.Code != code {
		t.Errorf("error code = %d (%s), want %d", e.Code, e.Message, code)
	}
	return e
}

// stubInterpreter returns code that runs body, counting preparations.
type stubInterpreter struct {
	prepared int
	body     func(rt *Runtime, m *Method, self Value, args []Value) Value
}

func (s *stubInterpreter) Prepare(rt *Runtime, m *Method) Code {
	s.prepared++
	return func(_ *Scope, self Value, args []Value) Value {
		if s.body == nil {
			return Undefined
		}
		return s.body(rt, m, self, args)
	}
}

type stubCompiler struct {
	compiled int
	fail     bool
}

func (c *stubCompiler) Compile(rt *Runtime, m *Method) (Code, error) {
	c.compiled++
	if c.fail {
		return nil, fmt.Errorf("unsupported")
	}
	return func(*Scope, Value, []Value) Value { return "compiled" }, nil
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestNewErrorFormatsTemplate(t *testing.T) {
	e := NewError(CodeUndefinedVar, "foo")
	if e.Kind != KindReferenceError {
		t.Errorf("Kind = %s, want ReferenceError", e.Kind)
	}
	if e.Message != "Variable foo is not defined." {
		t.Errorf("Message = %q", e.Message)
	}
	if got := e.Error(); got != "ReferenceError: Error #1065: Variable foo is not defined." {
		t.Errorf("Error() = %q", got)
	}
	if e := NewError(4242); e.Kind != KindError || !strings.Contains(e.Message, "4242") {
		t.Errorf("unknown code = %+v", e)
	}
}

func TestThrowErrorRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	err := catchError(rt, func() { rt.ThrowError(CodeCheckTypeFailed, "String", "int") })
	e := wantCode(t, err, CodeCheckTypeFailed)
	if e.Kind != KindTypeError {
		t.Errorf("Kind = %s, want TypeError", e.Kind)
	}
	o, ok := e.Value.(*ScriptObject)
	if !ok {
		t.Fatalf("Value = %#v, want an error object", e.Value)
	}
	if !rt.builtins.errorClasses[KindTypeError].IsInstance(o) || !rt.builtins.Error.IsInstance(o) {
		t.Error("thrown value is not a TypeError instance")
	}
	if got := ToInt32(o.GetPublic("errorID")); got != CodeCheckTypeFailed {
		t.Errorf("errorID = %d", got)
	}
	if got := rt.ToString(o); got != "TypeError: "+e.Message {
		t.Errorf("toString = %q", got)
	}
}

func TestThrowOfPlainValue(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	err := catchError(rt, func() { panic(&Throw{Value: "boom"}) })
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindError || e.Message != "boom" || e.Value != "boom" {
		t.Errorf("error = %#v, want a KindError carrying \"boom\"", err)
	}
}

func TestCatchRepanicsGoFaults(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	defer func() {
		if recover() == nil {
			t.Error("index fault was swallowed")
		}
	}()
	_ = catchError(rt, func() {
		var s []int
		_ = s[3]
	})
}

func TestThrownValue(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	if v, ok := rt.ThrownValue(&Throw{Value: int32(3)}); !ok || v != int32(3) {
		t.Errorf("ThrownValue(Throw) = %v, %v", v, ok)
	}
	v, ok := rt.ThrownValue(NewError(CodeStackOverflow))
	if !ok || !rt.builtins.Error.IsInstance(v) {
		t.Errorf("ThrownValue(*Error) = %v, %v", v, ok)
	}
	v, ok = rt.ThrownValue(errors.New("host failure"))
	if !ok || ToString(v.(*ScriptObject).GetPublic("message")) != "host failure" {
		t.Errorf("ThrownValue(error) = %v, %v", v, ok)
	}
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func TestNativesRegistry(t *testing.T) {
	n := NewNatives()
	n.Register("pkg::B/m", func(*Runtime, Value, []Value) Value { return int32(1) })
	n.Register("pkg::A/static/s", func(*Runtime, Value, []Value) Value { return int32(2) })
	if _, ok := n.Lookup("pkg::C/m"); ok {
		t.Error("Lookup of unregistered path succeeded")
	}
	fn, ok := n.Lookup("pkg::B/m")
	if !ok || fn(nil, nil, nil) != int32(1) {
		t.Error("Lookup(pkg::B/m) failed")
	}
	if got := n.Paths(); len(got) != 2 || got[0] != "pkg::A/static/s" {
		t.Errorf("Paths = %v, want sorted paths", got)
	}
}

func TestBuiltinNativesRegistered(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	for _, path := range []string{"::trace", "::Math/static/max", "::Array/push", "::Class/get prototype"} {
		if _, ok := rt.Natives().Lookup(path); !ok {
			t.Errorf("native %q not registered", path)
		}
	}
}

// nativeModule declares a script-level native function "hello".
func nativeModule() []byte {
	b := abc.NewModuleBuilder()
	hello := b.Method(abc.MethodSig{Name: "hello", Flags: abc.Native})
	init := b.Function(abc.MethodSig{}, abc.BodyDef{Code: abc.NewCodeBuilder().Emit(abc.OpReturnVoid).Bytes(), MaxStack: 1, MaxScope: 1})
	b.Script(init, abc.MethodDef(b.PublicName("hello"), hello))
	return b.Bytes()
}

func TestNativeBinding(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	rt.Natives().Register("::hello", func(_ *Runtime, _ Value, args []Value) Value { return "hi " + ToString(arg(args, 0)) })
	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(nativeModule(), "native.abc"); err != nil {
		t.Fatal(err)
	}
	g, err := d.FindProperty(rt.PublicName("hello"), true)
	if err != nil {
		t.Fatalf("FindProperty(hello) failed: %v", err)
	}
	var got Value
	err = catchError(rt, func() { got = rt.CallProperty(g, rt.PublicName("hello"), []Value{"there"}) })
	if err != nil || got != "hi there" {
		t.Errorf("hello(there) = %v, %v", got, err)
	}
}

func TestMissingNative(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	d := rt.NewDomain(rt.SystemDomain())
	if _, err := d.LoadModule(nativeModule(), "native.abc"); err != nil {
		t.Fatal(err)
	}
	g, err := d.FindProperty(rt.PublicName("hello"), true)
	if err != nil {
		t.Fatalf("FindProperty(hello) failed: %v", err)
	}
	err = catchError(rt, func() { rt.CallProperty(g, rt.PublicName("hello"), nil) })
	wantCode(t, err, CodeNotImplemented)

	strict, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}, Strict: true})
	sd := strict.NewDomain(strict.SystemDomain())
	if _, err := sd.LoadModule(nativeModule(), "native.abc"); err != nil {
		t.Fatal(err)
	}
	_, err = sd.FindProperty(strict.PublicName("hello"), true)
	wantCode(t, err, CodeNotImplemented)
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

func bodyMethod(name string) *Method {
	return &Method{Name: name, Body: &abc.MethodBody{}}
}

func TestLinkCompilesWhenHot(t *testing.T) {
	interp := &stubInterpreter{}
	comp := &stubCompiler{}
	rt, _ := newTestRuntime(Options{Interpreter: interp, Compiler: comp, JITThreshold: 3})
	m := bodyMethod("hot")

	var got []Value
	for i := 0; i < 4; i++ {
		got = append(got, rt.Invoke(m, nil, nil))
	}
	want := []Value{Undefined, Undefined, "compiled", "compiled"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i+1, got[i], want[i])
		}
	}
	if comp.compiled != 1 || !m.Compiled() {
		t.Errorf("compiled = %d, Compiled() = %v, want one compilation", comp.compiled, m.Compiled())
	}
	if interp.prepared != 1 {
		t.Errorf("interpreter prepared %d times, want 1", interp.prepared)
	}
}

func TestLinkFallsBackOnCompileFailure(t *testing.T) {
	interp := &stubInterpreter{}
	comp := &stubCompiler{fail: true}
	rt, _ := newTestRuntime(Options{Interpreter: interp, Compiler: comp})
	m := bodyMethod("cold")
	for i := 0; i < 3; i++ {
		if got := rt.Invoke(m, nil, nil); got != Undefined {
			t.Errorf("call %d = %v, want the interpreter's result", i+1, got)
		}
	}
	if comp.compiled != 1 {
		t.Errorf("compile attempts = %d, want 1", comp.compiled)
	}
	if m.Compiled() {
		t.Error("failed method reports Compiled")
	}
}

func TestInvokeWithoutBody(t *testing.T) {
	rt, _ := newTestRuntime(Options{Interpreter: &stubInterpreter{}})
	_, err := rt.InvokeSafe(&Method{Name: "abstract"}, nil, nil)
	wantCode(t, err, CodeNotImplemented)
}

func TestCallDepthLimit(t *testing.T) {
	interp := &stubInterpreter{}
	interp.body = func(rt *Runtime, m *Method, _ Value, _ []Value) Value {
		return rt.Invoke(m, nil, nil)
	}
	rt, _ := newTestRuntime(Options{Interpreter: interp, MaxCallDepth: 20})
	_, err := rt.InvokeSafe(bodyMethod("recurse"), nil, nil)
	wantCode(t, err, CodeStackOverflow)
	if rt.depth != 0 {
		t.Errorf("depth after unwinding = %d, want 0", rt.depth)
	}
}

// ---------------------------------------------------------------------------
// Profiler
// ---------------------------------------------------------------------------

func TestProfilerHotThreshold(t *testing.T) {
	p := NewProfiler()
	p.MethodHotThreshold = 3
	var hot []*Method
	p.OnHot = func(m *Method, _ *MethodProfile) { hot = append(hot, m) }

	a, b := &Method{Name: "a"}, &Method{Name: "b"}
	var became []bool
	for i := 0; i < 4; i++ {
		became = append(became, p.RecordMethodInvocation(a))
	}
	if became[0] || became[1] || !became[2] || became[3] {
		t.Errorf("became hot = %v, want only the third call", became)
	}
	p.RecordMethodInvocation(b)
	if !p.IsMethodHot(a) || p.IsMethodHot(b) {
		t.Error("hotness mismatch")
	}
	if len(hot) != 1 || hot[0] != a {
		t.Errorf("OnHot calls = %v, want [a]", hot)
	}
	if p.RecordMethodInvocation(nil) {
		t.Error("nil method became hot")
	}

	stats := p.Stats()
	if stats.TotalMethods != 2 || stats.HotMethods != 1 || stats.MethodInvocations != 5 {
		t.Errorf("Stats = %+v", stats)
	}
	if hm := p.HotMethods(); len(hm) != 1 || hm[0] != a {
		t.Errorf("HotMethods = %v", hm)
	}
	p.Reset()
	if p.GetMethodProfile(a) != nil || p.Stats().TotalMethods != 0 {
		t.Error("Reset kept profiles")
	}
}

func TestProfilerResolutionSites(t *testing.T) {
	p := NewProfiler()
	m := &Method{Name: "m"}
	if _, ok := p.StableDepth(m, 4); ok {
		t.Error("unobserved site reported stable")
	}
	p.RecordResolution(m, 4, 2)
	p.RecordResolution(m, 4, 2)
	if d, ok := p.StableDepth(m, 4); !ok || d != 2 {
		t.Errorf("StableDepth = %d, %v, want 2, true", d, ok)
	}
	p.RecordResolution(m, 9, 1)
	p.RecordResolution(m, 9, 0)
	if _, ok := p.StableDepth(m, 9); ok {
		t.Error("varying site reported stable")
	}
	if s := p.Stats(); s.Sites != 2 || s.StableSites != 1 {
		t.Errorf("Stats = %+v, want 2 sites, 1 stable", s)
	}
}
