package vm

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/chazu/abcvm/abc"
)

// builtins holds the classes and functions every domain sees. They live on
// a pre-executed global object consulted before any domain's scripts.
type builtins struct {
	rt     *Runtime
	global *ScriptObject

	Object    *Class
	Class     *Class
	Function  *Class
	Array     *Class
	Vector    *Class
	Namespace *Class
	String    *Class
	Number    *Class
	Int       *Class
	Uint      *Class
	Boolean   *Class
	Error     *Class
	Math      *Class

	errorClasses map[ErrorKind]*Class
	errorKinds   map[*Class]ErrorKind
	primitives   map[string]*Class
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func newBuiltins(rt *Runtime) *builtins {
	b := &builtins{
		rt:           rt,
		errorClasses: make(map[ErrorKind]*Class),
		errorKinds:   make(map[*Class]ErrorKind),
		primitives:   make(map[string]*Class),
	}
	rt.builtins = b
	pub := rt.interner.Public()

	// Object and Class refer to each other; their static sides are
	// attached once both exist.
	b.Object = b.newClass(pub, "Object", nil)
	b.Object.Prototype.class = b.Object
	b.Class = b.newClass(pub, "Class", b.Object)
	b.attachStatic(b.Object)
	b.attachStatic(b.Class)
	b.Function = b.newClass(pub, "Function", b.Object)

	b.global = NewScriptObject(b.Object, NewTraits(nil, nil), b.Object.Prototype)
	b.defineClassTrait(b.Object)
	b.defineClassTrait(b.Class)
	b.defineClassTrait(b.Function)

	b.initObject()
	b.initClass()
	b.initFunction()
	b.initErrors()
	b.initPrimitives()
	b.initArray()
	b.initVector()
	b.initMath()
	b.initGlobals()
	return b
}

func (b *builtins) name(local string) *abc.Name { return b.rt.interner.PublicName(local) }

// newClass creates a builtin class. Its static side is attached when the
// Class class exists.
func (b *builtins) newClass(ns *abc.Namespace, local string, super *Class) *Class {
	c := &Class{Name: b.rt.interner.QName(ns, local), Super: super}
	var superTraits *ResolvedTraits
	var superProto *ScriptObject
	if super != nil {
		superTraits = super.Instance
		superProto = super.Prototype
	}
	c.Instance = NewTraits(superTraits, nil)
	c.Prototype = NewScriptObject(b.Object, nil, superProto)
	if b.Class != nil {
		b.attachStatic(c)
	}
	return c
}

func (b *builtins) attachStatic(c *Class) {
	c.ScriptObject = NewScriptObject(b.Class, NewTraits(b.Class.Instance, nil), b.Class.Prototype)
	c.ScriptObject.self = c
	c.ScriptObject.sealed = false
}

// addTrait defines t on o and sizes o's slots for it.
func addTrait(o *ScriptObject, t *Trait) {
	must(o.traits.Define(t))
	for len(o.slots) < o.traits.SlotCount() {
		o.slots = append(o.slots, Undefined)
	}
	if t.IsSlot() {
		o.slots[t.Slot] = slotDefault(t)
	}
}

func (b *builtins) defineClassTrait(c *Class) {
	addTrait(b.global, &Trait{Name: c.Name, Kind: abc.TraitClass, ReadOnly: true, Default: c})
}

func (b *builtins) defineConst(o *ScriptObject, local string, v Value) {
	addTrait(o, &Trait{Name: b.name(local), Kind: abc.TraitConst, ReadOnly: true, Default: v})
}

// native registers fn under path and returns its Method.
func (b *builtins) native(path string, fn NativeFunc) *Method {
	b.rt.natives.Register(path, fn)
	return NewNativeMethod(path, fn)
}

// proto installs a hidden prototype method.
func (b *builtins) proto(c *Class, member string, fn NativeFunc) {
	m := b.native(c.nativeKey()+"/"+member, fn)
	c.Prototype.defineHidden(member, b.rt.newFunctionObject(m, nil))
}

// static installs a class method trait.
func (b *builtins) static(c *Class, member string, fn NativeFunc) {
	m := b.native(c.nativeKey()+"/static/"+member, fn)
	addTrait(c.ScriptObject, &Trait{Name: b.name(member), Kind: abc.TraitMethod, Method: m})
}

// getter installs an instance getter trait.
func (b *builtins) getter(c *Class, member string, fn NativeFunc) {
	m := b.native(c.nativeKey()+"/get "+member, fn)
	must(c.Instance.Define(&Trait{Name: b.name(member), Kind: abc.TraitGetter, Getter: m}))
}

func (b *builtins) globalFunc(member string, fn NativeFunc) {
	m := b.native("::"+member, fn)
	addTrait(b.global, &Trait{Name: b.name(member), Kind: abc.TraitMethod, Method: m})
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// boxClass returns the class whose prototype serves a primitive value.
func (b *builtins) boxClass(v Value) *Class {
	switch v.(type) {
	case string:
		return b.String
	case int32:
		return b.Int
	case uint32:
		return b.Uint
	case float64:
		return b.Number
	case bool:
		return b.Boolean
	case *abc.Namespace:
		return b.Namespace
	}
	return nil
}

// ---------------------------------------------------------------------------
// Object, Class, Function
// ---------------------------------------------------------------------------

func (b *builtins) initObject() {
	c := b.Object
	c.isInstance = func(v Value) bool { return !IsNullish(v) }
	c.coerce = func(_ *Runtime, v Value) (Value, bool) {
		if IsNullish(v) {
			return Null, true
		}
		return v, true
	}
	c.call = func(rt *Runtime, _ Value, args []Value) Value {
		if v := arg(args, 0); !IsNullish(v) {
			return v
		}
		return rt.NewPlainObject()
	}
	c.construct = c.call
	b.primitives["Object"] = c

	b.proto(c, "hasOwnProperty", func(rt *Runtime, self Value, args []Value) Value {
		if o, ok := self.(Object); ok {
			return o.HasOwnProperty(rt.publicName(arg(args, 0)))
		}
		return rt.HasProperty(self, rt.publicName(arg(args, 0)))
	})
	b.proto(c, "propertyIsEnumerable", func(rt *Runtime, self Value, args []Value) Value {
		o, ok := self.(Object)
		if !ok {
			return false
		}
		key := rt.ToString(arg(args, 0))
		for _, k := range o.OwnKeys() {
			if k == key {
				return true
			}
		}
		return false
	})
	b.proto(c, "isPrototypeOf", func(rt *Runtime, self Value, args []Value) Value {
		o, ok := arg(args, 0).(Object)
		if !ok {
			return false
		}
		for p := o.Proto(); p != nil; p = p.proto {
			if Value(p.self) == self {
				return true
			}
		}
		return false
	})
	b.proto(c, "toString", func(rt *Runtime, self Value, _ []Value) Value {
		if o, ok := self.(Object); ok {
			if c := o.ClassOf(); c != nil {
				return "[object " + c.Name.LocalName() + "]"
			}
			return "[object Object]"
		}
		return ToString(self)
	})
	b.proto(c, "valueOf", func(_ *Runtime, self Value, _ []Value) Value { return self })
}

func (b *builtins) initClass() {
	b.Class.isInstance = func(v Value) bool { _, ok := v.(*Class); return ok }
	b.getter(b.Class, "prototype", func(_ *Runtime, self Value, _ []Value) Value {
		if c, ok := self.(*Class); ok {
			return c.Prototype
		}
		return Undefined
	})
	b.proto(b.Class, "toString", func(_ *Runtime, self Value, _ []Value) Value { return ToString(self) })
}

func (b *builtins) initFunction() {
	c := b.Function
	c.isInstance = func(v Value) bool { _, ok := v.(*Function); return ok }
	c.construct = func(rt *Runtime, _ Value, _ []Value) Value {
		rt.ThrowError(CodeNotImplemented, "Function")
		return nil
	}
	c.call = c.construct
	b.proto(c, "call", func(rt *Runtime, self Value, args []Value) Value {
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return rt.Call(self, arg(args, 0), rest)
	})
	b.proto(c, "apply", func(rt *Runtime, self Value, args []Value) Value {
		var list []Value
		if a, ok := arg(args, 1).(Object); ok {
			list = append(list, a.base().elems...)
		}
		return rt.Call(self, arg(args, 0), list)
	})
	b.proto(c, "toString", func(_ *Runtime, self Value, _ []Value) Value { return "function Function() {}" })
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var errorKinds = []ErrorKind{
	KindTypeError, KindReferenceError, KindArgumentError, KindRangeError,
	KindVerifyError, KindSecurityError, KindURIError, KindEvalError,
}

func (b *builtins) initErrors() {
	pub := b.rt.interner.Public()
	b.Error = b.newClass(pub, "Error", b.Object)
	b.Error.native = func(rt *Runtime, self Value, args []Value) Value {
		o := rt.ToObject(self).base()
		msg := ""
		if v := arg(args, 0); !IsUndefined(v) {
			msg = rt.ToString(v)
		}
		o.SetPublic("message", msg)
		o.SetPublic("errorID", ToInt32(arg(args, 1)))
		return Undefined
	}
	b.proto(b.Error, "toString", func(rt *Runtime, self Value, _ []Value) Value {
		o := rt.ToObject(self).base()
		name, msg := rt.ToString(o.GetPublic("name")), rt.ToString(o.GetPublic("message"))
		if msg == "" {
			return name
		}
		return name + ": " + msg
	})
	b.proto(b.Error, "getStackTrace", func(*Runtime, Value, []Value) Value { return Null })
	b.Error.Prototype.defineHidden("name", "Error")
	b.Error.Prototype.defineHidden("message", "")
	b.errorClasses[KindError] = b.Error
	b.errorKinds[b.Error] = KindError
	b.defineClassTrait(b.Error)

	for _, k := range errorKinds {
		c := b.newClass(pub, string(k), b.Error)
		c.Prototype.defineHidden("name", string(k))
		b.errorClasses[k] = c
		b.errorKinds[c] = k
		b.defineClassTrait(c)
	}
}

// ---------------------------------------------------------------------------
// Math and global functions
// ---------------------------------------------------------------------------

func (b *builtins) initMath() {
	c := b.newClass(b.rt.interner.Public(), "Math", b.Object)
	c.Final = true
	c.construct = func(rt *Runtime, _ Value, _ []Value) Value {
		rt.ThrowError(CodeConstructNonCtor)
		return nil
	}
	b.Math = c
	b.defineClassTrait(c)

	for name, v := range map[string]float64{
		"E": math.E, "LN10": math.Ln10, "LN2": math.Ln2, "LOG10E": math.Log10E,
		"LOG2E": math.Log2E, "PI": math.Pi, "SQRT1_2": math.Sqrt2 / 2, "SQRT2": math.Sqrt2,
	} {
		b.defineConst(c.ScriptObject, name, v)
	}

	unary := map[string]func(float64) float64{
		"abs": math.Abs, "acos": math.Acos, "asin": math.Asin, "atan": math.Atan,
		"ceil": math.Ceil, "cos": math.Cos, "exp": math.Exp, "floor": math.Floor,
		"log": math.Log, "sin": math.Sin, "sqrt": math.Sqrt, "tan": math.Tan,
		"round": func(x float64) float64 { return math.Floor(x + 0.5) },
	}
	for name, f := range unary {
		f := f
		b.static(c, name, func(rt *Runtime, _ Value, args []Value) Value {
			return NumberValue(f(rt.ToNumber(arg(args, 0))))
		})
	}
	b.static(c, "atan2", func(rt *Runtime, _ Value, args []Value) Value {
		return NumberValue(math.Atan2(rt.ToNumber(arg(args, 0)), rt.ToNumber(arg(args, 1))))
	})
	b.static(c, "pow", func(rt *Runtime, _ Value, args []Value) Value {
		return NumberValue(math.Pow(rt.ToNumber(arg(args, 0)), rt.ToNumber(arg(args, 1))))
	})
	b.static(c, "random", func(*Runtime, Value, []Value) Value { return rand.Float64() })
	b.static(c, "max", func(rt *Runtime, _ Value, args []Value) Value {
		r := math.Inf(-1)
		for _, a := range args {
			x := rt.ToNumber(a)
			if math.IsNaN(x) {
				return math.NaN()
			}
			r = math.Max(r, x)
		}
		return NumberValue(r)
	})
	b.static(c, "min", func(rt *Runtime, _ Value, args []Value) Value {
		r := math.Inf(1)
		for _, a := range args {
			x := rt.ToNumber(a)
			if math.IsNaN(x) {
				return math.NaN()
			}
			r = math.Min(r, x)
		}
		return NumberValue(r)
	})
}

func (b *builtins) initGlobals() {
	b.defineConst(b.global, "NaN", math.NaN())
	b.defineConst(b.global, "Infinity", math.Inf(1))
	b.defineConst(b.global, "undefined", Undefined)

	b.globalFunc("trace", func(rt *Runtime, _ Value, args []Value) Value {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = rt.ToString(a)
		}
		line := strings.Join(parts, " ")
		rt.log.Debugf("trace: %s", line)
		fmt.Fprintln(rt.opts.Output, line)
		return Undefined
	})
	b.globalFunc("isNaN", func(rt *Runtime, _ Value, args []Value) Value {
		return math.IsNaN(rt.ToNumber(arg(args, 0)))
	})
	b.globalFunc("isFinite", func(rt *Runtime, _ Value, args []Value) Value {
		x := rt.ToNumber(arg(args, 0))
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	})
	b.globalFunc("parseInt", func(rt *Runtime, _ Value, args []Value) Value {
		return parseInt(rt.ToString(arg(args, 0)), int(ToInt32(arg(args, 1))))
	})
	b.globalFunc("parseFloat", func(rt *Runtime, _ Value, args []Value) Value {
		return parseFloat(rt.ToString(arg(args, 0)))
	})
}

// parseInt parses a leading integer in radix (0 means 10, or 16 with a 0x
// prefix).
func parseInt(s string, radix int) Value {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 0 || radix == 16) && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	end := 0
	for end < len(s) {
		d := digitVal(s[end])
		if d < 0 || d >= radix {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	var r float64
	for i := 0; i < end; i++ {
		r = r*float64(radix) + float64(digitVal(s[i]))
	}
	if neg {
		r = -r
	}
	return NumberValue(r)
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

// parseFloat parses the longest numeric prefix of s.
func parseFloat(s string) Value {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "Infinity") || strings.HasPrefix(s, "+Infinity") {
		return math.Inf(1)
	}
	if strings.HasPrefix(s, "-Infinity") {
		return math.Inf(-1)
	}
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return NumberValue(f)
		}
	}
	return math.NaN()
}
