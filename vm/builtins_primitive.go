package vm

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/chazu/abcvm/abc"
)

// Primitive classes: their instances are Go values, so each class carries
// an isInstance test and a coercion instead of instance traits.

func (b *builtins) primitive(local string, isInstance func(Value) bool, convert func(*Runtime, Value) Value) *Class {
	c := b.newClass(b.rt.interner.Public(), local, b.Object)
	c.Final = true
	c.Sealed = true
	c.isInstance = isInstance
	c.coerce = func(rt *Runtime, v Value) (Value, bool) { return convert(rt, v), true }
	c.call = func(rt *Runtime, _ Value, args []Value) Value {
		if len(args) == 0 {
			return convert(rt, Undefined)
		}
		return convert(rt, args[0])
	}
	c.construct = c.call
	b.primitives[local] = c
	b.defineClassTrait(c)
	return c
}

func thisNumber(rt *Runtime, self Value) float64 {
	if !IsNumber(self) {
		rt.ThrowError(CodeCheckTypeFailed, describe(self), "Number")
	}
	return ToNumber(self)
}

func (b *builtins) initPrimitives() {
	b.String = b.primitive("String",
		func(v Value) bool { _, ok := v.(string); return ok },
		func(rt *Runtime, v Value) Value {
			if IsNullish(v) {
				return Null
			}
			return rt.ToString(v)
		})
	// String(undefined) is "undefined"; only coercion maps nullish to null.
	b.String.call = func(rt *Runtime, _ Value, args []Value) Value {
		if len(args) == 0 {
			return ""
		}
		return rt.ToString(args[0])
	}
	b.String.construct = b.String.call

	b.Number = b.primitive("Number", IsNumber, func(rt *Runtime, v Value) Value {
		return NumberValue(rt.ToNumber(v))
	})
	b.Number.call = func(rt *Runtime, _ Value, args []Value) Value {
		if len(args) == 0 {
			return int32(0)
		}
		return NumberValue(rt.ToNumber(args[0]))
	}
	b.Number.construct = b.Number.call

	b.Int = b.primitive("int",
		func(v Value) bool {
			if !IsNumber(v) {
				return false
			}
			f := ToNumber(v)
			return f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32
		},
		func(rt *Runtime, v Value) Value { return doubleToInt32(rt.ToNumber(v)) })

	b.Uint = b.primitive("uint",
		func(v Value) bool {
			if !IsNumber(v) {
				return false
			}
			f := ToNumber(v)
			return f == math.Trunc(f) && f >= 0 && f <= math.MaxUint32
		},
		func(rt *Runtime, v Value) Value { return uint32(doubleToInt32(rt.ToNumber(v))) })

	b.Boolean = b.primitive("Boolean",
		func(v Value) bool { _, ok := v.(bool); return ok },
		func(_ *Runtime, v Value) Value { return ToBoolean(v) })

	b.Namespace = b.primitive("Namespace",
		func(v Value) bool { _, ok := v.(*abc.Namespace); return ok },
		func(rt *Runtime, v Value) Value {
			switch x := v.(type) {
			case *abc.Namespace:
				return x
			case nil, undefinedType, nullType:
				return Null
			}
			return rt.interner.Namespace(abc.NamespaceKindNamespace, rt.ToString(v))
		})
	b.Namespace.coerce = nil

	// int and uint share Number's methods.
	b.Int.Prototype.proto = b.Number.Prototype
	b.Uint.Prototype.proto = b.Number.Prototype

	for _, c := range []*Class{b.Number, b.Int, b.Uint} {
		b.defineConst(c.ScriptObject, "NaN", math.NaN())
	}
	b.defineConst(b.Number.ScriptObject, "MAX_VALUE", math.MaxFloat64)
	b.defineConst(b.Number.ScriptObject, "MIN_VALUE", 5e-324)
	b.defineConst(b.Number.ScriptObject, "POSITIVE_INFINITY", math.Inf(1))
	b.defineConst(b.Number.ScriptObject, "NEGATIVE_INFINITY", math.Inf(-1))
	b.defineConst(b.Int.ScriptObject, "MAX_VALUE", int32(math.MaxInt32))
	b.defineConst(b.Int.ScriptObject, "MIN_VALUE", int32(math.MinInt32))
	b.defineConst(b.Uint.ScriptObject, "MAX_VALUE", uint32(math.MaxUint32))
	b.defineConst(b.Uint.ScriptObject, "MIN_VALUE", uint32(0))

	b.initNumberMethods()
	b.initStringMethods()

	b.proto(b.Boolean, "toString", func(rt *Runtime, self Value, _ []Value) Value {
		if _, ok := self.(bool); !ok {
			rt.ThrowError(CodeCheckTypeFailed, describe(self), "Boolean")
		}
		return ToString(self)
	})
	b.proto(b.Boolean, "valueOf", func(_ *Runtime, self Value, _ []Value) Value { return self })
	b.proto(b.Namespace, "toString", func(_ *Runtime, self Value, _ []Value) Value { return ToString(self) })
}

func (b *builtins) initNumberMethods() {
	c := b.Number
	b.proto(c, "toString", func(rt *Runtime, self Value, args []Value) Value {
		f := thisNumber(rt, self)
		radix := 10
		if r := arg(args, 0); !IsUndefined(r) {
			radix = int(ToInt32(r))
		}
		if radix < 2 || radix > 36 {
			rt.ThrowError(CodeIndexOutOfRange, radix, 36)
		}
		if radix == 10 || f != math.Trunc(f) || math.IsInf(f, 0) {
			return FormatNumber(f)
		}
		return strconv.FormatInt(int64(f), radix)
	})
	b.proto(c, "toFixed", func(rt *Runtime, self Value, args []Value) Value {
		digits := int(ToInt32(arg(args, 0)))
		if digits < 0 || digits > 20 {
			rt.ThrowError(CodeIndexOutOfRange, digits, 20)
		}
		f := thisNumber(rt, self)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return FormatNumber(f)
		}
		return strconv.FormatFloat(f, 'f', digits, 64)
	})
	b.proto(c, "valueOf", func(rt *Runtime, self Value, _ []Value) Value {
		return NumberValue(thisNumber(rt, self))
	})
}

// utf16Units converts s to the UTF-16 code units string methods index by.
func utf16Units(s string) []uint16 { return utf16.Encode([]rune(s)) }

func fromUnits(u []uint16) string { return string(utf16.Decode(u)) }

func (b *builtins) initStringMethods() {
	c := b.String
	str := func(rt *Runtime, self Value) string {
		s, ok := self.(string)
		if !ok {
			rt.checkNullish(self)
			return rt.ToString(self)
		}
		return s
	}
	b.static(c, "fromCharCode", func(rt *Runtime, _ Value, args []Value) Value {
		u := make([]uint16, len(args))
		for i, a := range args {
			u[i] = uint16(ToUint32(a))
		}
		return fromUnits(u)
	})
	b.proto(c, "toString", func(rt *Runtime, self Value, _ []Value) Value { return str(rt, self) })
	b.proto(c, "valueOf", func(rt *Runtime, self Value, _ []Value) Value { return str(rt, self) })
	b.proto(c, "charAt", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		i := int(ToNumber(arg(args, 0)))
		if i < 0 || i >= len(u) {
			return ""
		}
		return fromUnits(u[i : i+1])
	})
	b.proto(c, "charCodeAt", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		i := int(ToNumber(arg(args, 0)))
		if i < 0 || i >= len(u) {
			return math.NaN()
		}
		return int32(u[i])
	})
	b.proto(c, "indexOf", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		sub := utf16Units(rt.ToString(arg(args, 0)))
		for i := relIndex(arg(args, 1), len(u), 0); i+len(sub) <= len(u); i++ {
			if slices.Equal(u[i:i+len(sub)], sub) {
				return int32(i)
			}
		}
		return int32(-1)
	})
	b.proto(c, "lastIndexOf", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		sub := utf16Units(rt.ToString(arg(args, 0)))
		for i := len(u) - len(sub); i >= 0; i-- {
			if slices.Equal(u[i:i+len(sub)], sub) {
				return int32(i)
			}
		}
		return int32(-1)
	})
	b.proto(c, "substring", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		clamp := func(v Value, def int) int {
			if IsUndefined(v) {
				return def
			}
			f := ToNumber(v)
			if math.IsNaN(f) || f < 0 {
				return 0
			}
			return min(int(f), len(u))
		}
		start, end := clamp(arg(args, 0), 0), clamp(arg(args, 1), len(u))
		if start > end {
			start, end = end, start
		}
		return fromUnits(u[start:end])
	})
	b.proto(c, "substr", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		start := relIndex(arg(args, 0), len(u), 0)
		n := len(u) - start
		if v := arg(args, 1); !IsUndefined(v) {
			n = max(0, min(int(ToNumber(v)), n))
		}
		return fromUnits(u[start : start+n])
	})
	b.proto(c, "slice", func(rt *Runtime, self Value, args []Value) Value {
		u := utf16Units(str(rt, self))
		start, end := relIndex(arg(args, 0), len(u), 0), relIndex(arg(args, 1), len(u), len(u))
		if start >= end {
			return ""
		}
		return fromUnits(u[start:end])
	})
	b.proto(c, "toUpperCase", func(rt *Runtime, self Value, _ []Value) Value { return strings.ToUpper(str(rt, self)) })
	b.proto(c, "toLowerCase", func(rt *Runtime, self Value, _ []Value) Value { return strings.ToLower(str(rt, self)) })
	b.proto(c, "concat", func(rt *Runtime, self Value, args []Value) Value {
		var sb strings.Builder
		sb.WriteString(str(rt, self))
		for _, a := range args {
			sb.WriteString(rt.ToString(a))
		}
		return sb.String()
	})
	b.proto(c, "split", func(rt *Runtime, self Value, args []Value) Value {
		s := str(rt, self)
		var parts []string
		if sep := arg(args, 0); IsUndefined(sep) {
			parts = []string{s}
		} else {
			parts = strings.Split(s, rt.ToString(sep))
		}
		if lim := arg(args, 1); !IsUndefined(lim) {
			if n := int(ToUint32(lim)); n < len(parts) {
				parts = parts[:n]
			}
		}
		elems := make([]Value, len(parts))
		for i, p := range parts {
			elems[i] = p
		}
		return rt.NewArray(elems)
	})
}
