package vm

import (
	"math"
	"slices"
	"strings"

	"github.com/chazu/abcvm/abc"
)

// joinElements renders elements the way Array.join does: nullish elements
// become empty strings.
func joinElements(elems []Value, sep string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		if !IsNullish(e) {
			parts[i] = ToString(e)
		}
	}
	return strings.Join(parts, sep)
}

func (rt *Runtime) list(self Value) *ScriptObject {
	o := rt.ToObject(self).base()
	if !o.array && o.vector == nil {
		rt.ThrowError(CodeCheckTypeFailed, describe(self), "Array")
	}
	return o
}

// relIndex clamps a possibly negative index against n.
func relIndex(v Value, n int, def int) int {
	if IsUndefined(v) {
		return def
	}
	f := ToNumber(v)
	if math.IsNaN(f) {
		return 0
	}
	i := int(math.Trunc(f))
	if f < 0 {
		i = n + i
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	return i
}

// like creates an empty list of the same class as o.
func (rt *Runtime) like(o *ScriptObject) *ScriptObject {
	n := o.class.Allocate(rt)
	n.elems = []Value{}
	return n
}

// listAppend appends vs to o, coercing vector elements.
func (rt *Runtime) listAppend(o *ScriptObject, vs ...Value) {
	if o.vector == nil {
		o.elems = append(o.elems, vs...)
		return
	}
	if o.vector.fixed && len(vs) > 0 {
		rt.ThrowError(CodeIndexOutOfRange, len(o.elems), len(o.elems))
	}
	for _, v := range vs {
		o.elems = append(o.elems, rt.CoerceTo(v, o.vector.elem))
	}
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

func (b *builtins) initArray() {
	c := b.newClass(b.rt.interner.Public(), "Array", b.Object)
	c.alloc = func(_ *Runtime, k *Class) *ScriptObject {
		o := NewScriptObject(k, k.Instance, k.Prototype)
		o.array = true
		o.elems = []Value{}
		return o
	}
	c.native = func(rt *Runtime, self Value, args []Value) Value {
		o := rt.ToObject(self).base()
		if len(args) == 1 && IsNumber(args[0]) {
			n := ToNumber(args[0])
			if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
				rt.ThrowError(CodeIndexOutOfRange, FormatNumber(n), 0)
			}
			o.setLength(int(n))
			return Undefined
		}
		o.elems = append(o.elems, args...)
		return Undefined
	}
	c.call = func(rt *Runtime, _ Value, args []Value) Value { return c.Construct(rt, args) }
	b.Array = c
	b.defineClassTrait(c)
	b.listMethods(c)

	b.proto(c, "concat", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		r := rt.NewArray(o.elems)
		for _, a := range args {
			if ao, ok := a.(Object); ok && (ao.base().array || ao.base().vector != nil) {
				r.elems = append(r.elems, ao.base().elems...)
			} else {
				r.elems = append(r.elems, a)
			}
		}
		return r
	})
	b.proto(c, "shift", func(rt *Runtime, self Value, _ []Value) Value {
		o := rt.list(self)
		if len(o.elems) == 0 {
			return Undefined
		}
		v := o.elems[0]
		o.elems = append(o.elems[:0], o.elems[1:]...)
		return v
	})
	b.proto(c, "unshift", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		o.elems = append(append([]Value{}, args...), o.elems...)
		return NumberValue(float64(len(o.elems)))
	})
	b.proto(c, "splice", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		n := len(o.elems)
		start := relIndex(arg(args, 0), n, 0)
		count := n - start
		if len(args) > 1 {
			count = int(ToNumber(args[1]))
			count = max(0, min(count, n-start))
		}
		removed := rt.NewArray(o.elems[start : start+count])
		var insert []Value
		if len(args) > 2 {
			insert = args[2:]
		}
		o.elems = slices.Concat(o.elems[:start:start], insert, o.elems[start+count:])
		return removed
	})
}

// listMethods installs the methods Array and Vector share.
func (b *builtins) listMethods(c *Class) {
	b.proto(c, "push", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		rt.listAppend(o, args...)
		return o.length()
	})
	b.proto(c, "pop", func(rt *Runtime, self Value, _ []Value) Value {
		o := rt.list(self)
		if len(o.elems) == 0 {
			return o.hole()
		}
		v := o.elems[len(o.elems)-1]
		o.elems = o.elems[:len(o.elems)-1]
		return v
	})
	b.proto(c, "join", func(rt *Runtime, self Value, args []Value) Value {
		sep := ","
		if v := arg(args, 0); !IsUndefined(v) {
			sep = rt.ToString(v)
		}
		return joinElements(rt.list(self).elems, sep)
	})
	b.proto(c, "toString", func(rt *Runtime, self Value, _ []Value) Value {
		return joinElements(rt.list(self).elems, ",")
	})
	b.proto(c, "indexOf", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		x := arg(args, 0)
		for i := relIndex(arg(args, 1), len(o.elems), 0); i < len(o.elems); i++ {
			if StrictEquals(o.elems[i], x) {
				return int32(i)
			}
		}
		return int32(-1)
	})
	b.proto(c, "lastIndexOf", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		x := arg(args, 0)
		from := len(o.elems) - 1
		if len(args) > 1 {
			from = min(from, relIndex(args[1], len(o.elems), 0))
		}
		for i := from; i >= 0; i-- {
			if StrictEquals(o.elems[i], x) {
				return int32(i)
			}
		}
		return int32(-1)
	})
	b.proto(c, "reverse", func(rt *Runtime, self Value, _ []Value) Value {
		slices.Reverse(rt.list(self).elems)
		return self
	})
	b.proto(c, "slice", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		n := len(o.elems)
		start, end := relIndex(arg(args, 0), n, 0), relIndex(arg(args, 1), n, n)
		r := rt.like(o)
		if start < end {
			r.elems = append(r.elems, o.elems[start:end]...)
		}
		return r
	})
	b.proto(c, "sort", func(rt *Runtime, self Value, args []Value) Value {
		o := rt.list(self)
		cmp := func(a, b Value) int { return strings.Compare(rt.ToString(a), rt.ToString(b)) }
		if fn := arg(args, 0); !IsNullish(fn) && !IsNumber(fn) {
			cmp = func(a, b Value) int {
				r := rt.ToNumber(rt.Call(fn, Null, []Value{a, b}))
				switch {
				case r < 0:
					return -1
				case r > 0:
					return 1
				}
				return 0
			}
		}
		slices.SortStableFunc(o.elems, cmp)
		return self
	})
	iterate := func(rt *Runtime, self Value, args []Value, visit func(i int, v, r Value) bool) {
		o := rt.list(self)
		fn, this := arg(args, 0), arg(args, 1)
		for i := 0; i < len(o.elems); i++ {
			v := o.elems[i]
			if !visit(i, v, rt.Call(fn, this, []Value{v, int32(i), self})) {
				return
			}
		}
	}
	b.proto(c, "forEach", func(rt *Runtime, self Value, args []Value) Value {
		iterate(rt, self, args, func(int, Value, Value) bool { return true })
		return Undefined
	})
	b.proto(c, "map", func(rt *Runtime, self Value, args []Value) Value {
		r := rt.like(rt.list(self))
		iterate(rt, self, args, func(_ int, _, x Value) bool { rt.listAppend(r, x); return true })
		return r
	})
	b.proto(c, "filter", func(rt *Runtime, self Value, args []Value) Value {
		r := rt.like(rt.list(self))
		iterate(rt, self, args, func(_ int, v, x Value) bool {
			if ToBoolean(x) {
				rt.listAppend(r, v)
			}
			return true
		})
		return r
	})
	b.proto(c, "some", func(rt *Runtime, self Value, args []Value) Value {
		found := false
		iterate(rt, self, args, func(_ int, _, x Value) bool { found = ToBoolean(x); return !found })
		return found
	})
	b.proto(c, "every", func(rt *Runtime, self Value, args []Value) Value {
		all := true
		iterate(rt, self, args, func(_ int, _, x Value) bool { all = ToBoolean(x); return all })
		return all
	})
}

// ---------------------------------------------------------------------------
// Vector
// ---------------------------------------------------------------------------

func (b *builtins) initVector() {
	ns := b.rt.interner.Namespace(abc.NamespaceKindPackage, "__AS3__.vec")
	c := b.newClass(ns, "Vector", b.Object)
	c.generic = true
	c.Final = true
	c.construct = func(rt *Runtime, _ Value, _ []Value) Value {
		rt.ThrowError(CodeNotAConstructor, "Vector")
		return nil
	}
	b.Vector = c
	b.defineClassTrait(c)
	b.listMethods(c)
}

// applyType returns base specialized to param (nil for *). Only Vector is
// parametrized.
func (rt *Runtime) applyType(base, param *Class) *Class {
	if !base.generic {
		rt.ThrowError(CodeNotParameterized)
	}
	base.mu.Lock()
	defer base.mu.Unlock()
	if c, ok := base.applied[param]; ok {
		return c
	}
	b := rt.builtins
	elemName := "*"
	if param != nil {
		elemName = param.QualifiedName()
	}
	c := b.newClass(base.Name.Namespace(), base.Name.LocalName()+".<"+elemName+">", b.Object)
	c.Final = true
	c.elem = param
	c.Prototype.proto = base.Prototype
	zero := Undefined
	if param != nil {
		zero = DefaultForType(param.Name)
	}
	c.alloc = func(_ *Runtime, k *Class) *ScriptObject {
		o := NewScriptObject(k, k.Instance, k.Prototype)
		o.vector = &vectorInfo{elem: param, zero: zero}
		o.elems = []Value{}
		return o
	}
	c.native = func(rt *Runtime, self Value, args []Value) Value {
		o := rt.ToObject(self).base()
		if n := arg(args, 0); !IsUndefined(n) {
			o.setLength(int(ToUint32(n)))
		}
		o.vector.fixed = ToBoolean(arg(args, 1))
		return Undefined
	}
	c.call = func(rt *Runtime, _ Value, args []Value) Value {
		if len(args) != 1 {
			rt.ThrowError(CodeWrongArgumentCount, c.Name, 1, len(args))
		}
		src, ok := args[0].(Object)
		if !ok {
			rt.ThrowError(CodeCheckTypeFailed, describe(args[0]), c.QualifiedName())
		}
		if src.ClassOf() == c {
			return src
		}
		o := c.Allocate(rt)
		rt.listAppend(o, src.base().elems...)
		return o
	}
	c.coerce = func(rt *Runtime, v Value) (Value, bool) {
		if IsNullish(v) {
			return Null, true
		}
		return v, c.IsInstance(v)
	}
	if base.applied == nil {
		base.applied = make(map[*Class]*Class)
	}
	base.applied[param] = c
	rt.log.Debugf("applied %s", c.QualifiedName())
	return c
}
