package vm

import (
	"math"
	"testing"
)

func call(t *testing.T, rt *Runtime, recv Value, method string, args ...Value) Value {
	t.Helper()
	var r Value
	if err := catchError(rt, func() { r = rt.CallProperty(recv, rt.PublicName(method), args) }); err != nil {
		t.Fatalf("%s() failed: %v", method, err)
	}
	return r
}

// ---------------------------------------------------------------------------
// Object and Class
// ---------------------------------------------------------------------------

func TestObjectPrototype(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	o := rt.NewObject([]Value{"a", int32(1)})
	if call(t, rt, o, "hasOwnProperty", "a") != true || call(t, rt, o, "hasOwnProperty", "b") != false {
		t.Error("hasOwnProperty mismatch")
	}
	if got := call(t, rt, o, "toString"); got != "[object Object]" {
		t.Errorf("toString = %v", got)
	}
	if got := call(t, rt, rt.builtins.Object.Prototype, "isPrototypeOf", o); got != true {
		t.Errorf("Object.prototype.isPrototypeOf(o) = %v", got)
	}
	if keys := o.OwnKeys(); len(keys) != 1 || keys[0] != "a" {
		t.Errorf("OwnKeys = %v, want hidden methods excluded", keys)
	}
}

func TestClassPrototypeGetter(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	p := rt.GetProperty(rt.builtins.Array, rt.PublicName("prototype"))
	if p != rt.builtins.Array.Prototype {
		t.Errorf("Array.prototype = %v", p)
	}
	if !rt.builtins.Class.IsInstance(rt.builtins.Array) {
		t.Error("Array is not a Class instance")
	}
	if got := rt.ToString(rt.builtins.Array); got != "[class Array]" {
		t.Errorf("String(Array) = %q", got)
	}
}

func TestInstanceOf(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	arr := rt.NewArray(nil)
	if !rt.InstanceOf(arr, rt.builtins.Array) || !rt.InstanceOf(arr, rt.builtins.Object) {
		t.Error("array instanceof failed")
	}
	if !rt.InstanceOf("s", rt.builtins.String) || rt.InstanceOf("s", rt.builtins.Array) {
		t.Error("string instanceof mismatch")
	}
	if !rt.InstanceOf(int32(1), rt.builtins.Number) {
		t.Error("int instanceof Number failed")
	}
}

// ---------------------------------------------------------------------------
// Array and Vector
// ---------------------------------------------------------------------------

func TestArrayMethods(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	arr := rt.NewArray([]Value{int32(1), int32(2)})
	if got := call(t, rt, arr, "push", int32(3)); got != int32(3) {
		t.Errorf("push = %v, want 3", got)
	}
	if got := call(t, rt, arr, "join", "-"); got != "1-2-3" {
		t.Errorf("join = %v", got)
	}
	if got := rt.ToString(arr); got != "1,2,3" {
		t.Errorf("String(arr) = %q", got)
	}
	if got := rt.GetProperty(arr, rt.PublicName("length")); got != int32(3) {
		t.Errorf("length = %v", got)
	}
	if got := call(t, rt, arr, "pop"); got != int32(3) {
		t.Errorf("pop = %v", got)
	}
	if got := call(t, rt, arr, "indexOf", int32(2)); got != int32(1) {
		t.Errorf("indexOf(2) = %v", got)
	}
	sl := call(t, rt, arr, "slice", int32(-1)).(*ScriptObject)
	if sl.Len() != 1 || sl.GetIndex(0) != int32(2) {
		t.Errorf("slice(-1) = %v", sl)
	}
	removed := call(t, rt, arr, "splice", int32(0), int32(1), "x", "y").(*ScriptObject)
	if removed.Len() != 1 || rt.ToString(arr) != "x,y,2" {
		t.Errorf("splice removed %v, left %v", removed, arr)
	}
	cat := call(t, rt, arr, "concat", rt.NewArray([]Value{int32(9)}), int32(8)).(*ScriptObject)
	if rt.ToString(cat) != "x,y,2,9,8" {
		t.Errorf("concat = %v", cat)
	}
	s := rt.NewArray([]Value{int32(10), int32(9), int32(1)})
	call(t, rt, s, "sort")
	if rt.ToString(s) != "1,10,9" {
		t.Errorf("default sort = %v, want string order", s)
	}
}

func TestArrayConstructor(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	a := rt.Construct(rt.builtins.Array, []Value{int32(3)}).(*ScriptObject)
	if a.Len() != 3 || a.GetIndex(2) != Undefined {
		t.Errorf("new Array(3) = %v (len %d)", a, a.Len())
	}
	b := rt.Construct(rt.builtins.Array, []Value{"a", "b"}).(*ScriptObject)
	if rt.ToString(b) != "a,b" {
		t.Errorf("new Array(a, b) = %v", b)
	}
	err := catchError(rt, func() { rt.Construct(rt.builtins.Array, []Value{-1.5}) })
	wantCode(t, err, CodeIndexOutOfRange)

	a.SetPublic("length", int32(1))
	if a.Len() != 1 {
		t.Errorf("length after truncation = %d", a.Len())
	}
}

func TestVectorSpecialization(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	vi := rt.applyType(rt.builtins.Vector, rt.builtins.Int)
	if rt.applyType(rt.builtins.Vector, rt.builtins.Int) != vi {
		t.Error("applyType is not memoized")
	}
	if vi.ElementType() != rt.builtins.Int || vi.Name.LocalName() != "Vector.<int>" {
		t.Errorf("specialization = %s of %v", vi.Name, vi.ElementType())
	}
	if rt.ApplyType(rt.builtins.Vector, []Value{rt.builtins.Int}) != vi {
		t.Error("ApplyType did not reuse the specialization")
	}

	v := vi.Construct(rt, []Value{int32(2)}).(*ScriptObject)
	if v.Len() != 2 || v.GetIndex(1) != int32(0) {
		t.Errorf("new Vector.<int>(2) = %v", v)
	}
	call(t, rt, v, "push", "7")
	if v.GetIndex(2) != int32(7) {
		t.Errorf("pushed element = %#v, want int 7", v.GetIndex(2))
	}
	if got := rt.GetProperty(v, rt.PublicName("length")); got != uint32(3) {
		t.Errorf("length = %#v, want uint 3", got)
	}
	err := catchError(rt, func() { rt.SetProperty(v, rt.PublicName("5"), int32(1)) })
	wantCode(t, err, CodeIndexOutOfRange)

	fixed := vi.Construct(rt, []Value{int32(1), true})
	err = catchError(rt, func() { rt.CallProperty(fixed, rt.PublicName("push"), []Value{int32(1)}) })
	wantCode(t, err, CodeIndexOutOfRange)

	err = catchError(rt, func() { rt.ApplyType(rt.builtins.Array, []Value{rt.builtins.Int}) })
	wantCode(t, err, CodeNotParameterized)
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestStringMethods(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	tests := []struct {
		method string
		args   []Value
		want   Value
	}{
		{"toUpperCase", nil, "ABC,DEF"},
		{"charAt", []Value{int32(1)}, "b"},
		{"charCodeAt", []Value{int32(0)}, int32(97)},
		{"indexOf", []Value{"d"}, int32(4)},
		{"lastIndexOf", []Value{"x"}, int32(-1)},
		{"substring", []Value{int32(5), int32(1)}, "bc,d"},
		{"substr", []Value{int32(-3), int32(2)}, "de"},
		{"slice", []Value{int32(1), int32(-1)}, "bc,de"},
		{"concat", []Value{int32(1)}, "abc,def1"},
	}
	for _, tt := range tests {
		if got := call(t, rt, "abc,def", tt.method, tt.args...); got != tt.want {
			t.Errorf("%s(%v) = %#v, want %#v", tt.method, tt.args, got, tt.want)
		}
	}
	parts := call(t, rt, "abc,def", "split", ",").(*ScriptObject)
	if parts.Len() != 2 || parts.GetIndex(1) != "def" {
		t.Errorf("split = %v", parts)
	}
	if got := rt.GetProperty("abc", rt.PublicName("length")); got != int32(3) {
		t.Errorf("length = %v", got)
	}
	if got := call(t, rt, rt.builtins.String, "fromCharCode", int32(104), int32(105)); got != "hi" {
		t.Errorf("fromCharCode = %v", got)
	}
}

func TestNumberMethods(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	if got := call(t, rt, int32(255), "toString", int32(16)); got != "ff" {
		t.Errorf("(255).toString(16) = %v", got)
	}
	if got := call(t, rt, 3.14159, "toFixed", int32(2)); got != "3.14" {
		t.Errorf("toFixed(2) = %v", got)
	}
	if got := rt.GetProperty(rt.builtins.Int, rt.PublicName("MAX_VALUE")); got != int32(math.MaxInt32) {
		t.Errorf("int.MAX_VALUE = %v", got)
	}
}

func TestPrimitiveCoercion(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	b := rt.builtins
	tests := []struct {
		v    Value
		c    *Class
		want Value
	}{
		{"12", b.Int, int32(12)},
		{-1.0, b.Uint, uint32(0xFFFFFFFF)},
		{"2.5", b.Number, 2.5},
		{int32(0), b.Boolean, false},
		{int32(5), b.String, "5"},
		{Undefined, b.String, Null},
		{Undefined, b.Array, Null},
	}
	for _, tt := range tests {
		if got := rt.CoerceTo(tt.v, tt.c); got != tt.want {
			t.Errorf("coerce %#v to %s = %#v, want %#v", tt.v, tt.c.Name, got, tt.want)
		}
	}
	err := catchError(rt, func() { rt.CoerceTo(rt.NewPlainObject(), b.Array) })
	wantCode(t, err, CodeCheckTypeFailed)

	if got := rt.Coerce(nil, "7", rt.PublicName("int")); got != int32(7) {
		t.Errorf("Coerce(7, int) = %#v", got)
	}
	if !rt.IsType(nil, int32(3), rt.PublicName("uint")) || rt.IsType(nil, int32(-3), rt.PublicName("uint")) {
		t.Error("uint istype mismatch")
	}
	if !rt.IsType(nil, 2.0, rt.PublicName("int")) || rt.IsType(nil, 2.5, rt.PublicName("int")) {
		t.Error("int istype mismatch")
	}
	if got := rt.CallProperty(rt.builtins.global, rt.PublicName("String"), nil); got != "" {
		t.Errorf("String() = %#v", got)
	}
}

// ---------------------------------------------------------------------------
// Errors, Math and globals
// ---------------------------------------------------------------------------

func TestErrorClasses(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	e := rt.Construct(rt.builtins.errorClasses[KindRangeError], []Value{"bad", int32(7)})
	if got := rt.ToString(e); got != "RangeError: bad" {
		t.Errorf("String(e) = %q", got)
	}
	o := e.(*ScriptObject)
	if ToInt32(o.GetPublic("errorID")) != 7 {
		t.Errorf("errorID = %v", o.GetPublic("errorID"))
	}
	err := rt.errorFromValue(e)
	if err.Kind != KindRangeError || err.Code != 7 || err.Message != "bad" {
		t.Errorf("errorFromValue = %+v", err)
	}
}

func TestMath(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	m := rt.builtins.Math
	if got := call(t, rt, m, "max", int32(1), int32(5), 3.5); got != int32(5) {
		t.Errorf("max = %v", got)
	}
	if got := call(t, rt, m, "min"); got != math.Inf(1) {
		t.Errorf("min() = %v", got)
	}
	if got := call(t, rt, m, "abs", int32(-4)); got != int32(4) {
		t.Errorf("abs = %v", got)
	}
	if got := call(t, rt, m, "round", 2.5); got != int32(3) {
		t.Errorf("round(2.5) = %v", got)
	}
	if got := rt.GetProperty(m, rt.PublicName("PI")); got != math.Pi {
		t.Errorf("PI = %v", got)
	}
	err := catchError(rt, func() { rt.Construct(m, nil) })
	wantCode(t, err, CodeConstructNonCtor)
}

func TestGlobalFunctions(t *testing.T) {
	rt, out := newTestRuntime(Options{})
	g := rt.builtins.global
	call(t, rt, g, "trace", "a", int32(1), rt.NewArray([]Value{int32(2), int32(3)}))
	if out.String() != "a 1 2,3\n" {
		t.Errorf("trace output = %q", out.String())
	}
	tests := []struct {
		fn   string
		arg  Value
		want Value
	}{
		{"parseInt", "0x1f", int32(31)},
		{"parseInt", "  -12px", int32(-12)},
		{"parseFloat", "3.5e", 3.5},
		{"isNaN", "abc", true},
		{"isFinite", int32(3), true},
	}
	for _, tt := range tests {
		if got := call(t, rt, g, tt.fn, tt.arg); got != tt.want {
			t.Errorf("%s(%#v) = %#v, want %#v", tt.fn, tt.arg, got, tt.want)
		}
	}
	if got := call(t, rt, g, "parseInt", "z"); !math.IsNaN(ToNumber(got)) {
		t.Errorf("parseInt(z) = %v, want NaN", got)
	}
	if got := rt.GetProperty(g, rt.PublicName("undefined")); got != Undefined {
		t.Errorf("undefined = %v", got)
	}
}
