package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/abcvm/abc"
)

// Host operations shared by the compiler and the interpreter. Every
// operation accepts any Value; failures are raised as language exceptions.

func (rt *Runtime) checkNullish(v Value) {
	switch v.(type) {
	case nullType:
		rt.ThrowError(CodeConvertNullToObject)
	case nil, undefinedType:
		rt.ThrowError(CodeConvertUndefined)
	}
}

// CheckNullish raises TypeError 1009 for null and 1010 for undefined.
func (rt *Runtime) CheckNullish(v Value) { rt.checkNullish(v) }

// ToObject returns v as an Object. Primitives have no object form here;
// they raise TypeError 1009/1010 when nullish and 1034 otherwise.
func (rt *Runtime) ToObject(v Value) Object {
	if o, ok := v.(Object); ok {
		return o
	}
	rt.checkNullish(v)
	rt.ThrowError(CodeCheckTypeFailed, describe(v), "Object")
	return nil
}

func describe(v Value) string {
	switch v.(type) {
	case string:
		return "String"
	case int32:
		return "int"
	case uint32:
		return "uint"
	case float64:
		return "Number"
	case bool:
		return "Boolean"
	case *abc.Namespace:
		return "Namespace"
	}
	if o, ok := v.(Object); ok {
		if c := o.ClassOf(); c != nil {
			return c.QualifiedName()
		}
		return "Object"
	}
	return ToString(v)
}

// ---------------------------------------------------------------------------
// Property access on any value
// ---------------------------------------------------------------------------

// GetProperty reads name from obj.
func (rt *Runtime) GetProperty(obj Value, name *abc.Name) Value {
	if o, ok := obj.(Object); ok {
		return o.GetProperty(rt, name)
	}
	rt.checkNullish(obj)
	return rt.primitiveGet(obj, name)
}

func (rt *Runtime) primitiveGet(v Value, name *abc.Name) Value {
	key, ok := publicKey(name)
	if !ok {
		return Undefined
	}
	switch x := v.(type) {
	case string:
		if key == "length" {
			return int32(utf8.RuneCountInString(x))
		}
		if i, ok := arrayIndex(key); ok {
			for j, r := range []rune(x) {
				if j == i {
					return string(r)
				}
			}
			return Undefined
		}
	case *abc.Namespace:
		switch key {
		case "uri":
			return x.URI
		case "prefix":
			return x.Prefix
		}
	}
	if c := rt.builtins.boxClass(v); c != nil {
		return c.Prototype.GetPublic(key)
	}
	return Undefined
}

// SetProperty writes name on obj.
func (rt *Runtime) SetProperty(obj Value, name *abc.Name, v Value) {
	if o, ok := obj.(Object); ok {
		o.SetProperty(rt, name, v)
		return
	}
	rt.checkNullish(obj)
	rt.ThrowError(CodeWriteSealed, name, describe(obj))
}

// InitProperty writes name on obj, allowing constant initialization.
func (rt *Runtime) InitProperty(obj Value, name *abc.Name, v Value) {
	if o, ok := obj.(Object); ok {
		o.InitProperty(rt, name, v)
		return
	}
	rt.checkNullish(obj)
	rt.ThrowError(CodeWriteSealed, name, describe(obj))
}

// DeleteProperty removes name from obj.
func (rt *Runtime) DeleteProperty(obj Value, name *abc.Name) bool {
	if o, ok := obj.(Object); ok {
		return o.DeleteProperty(rt, name)
	}
	rt.checkNullish(obj)
	return false
}

// HasProperty reports whether name resolves on obj.
func (rt *Runtime) HasProperty(obj Value, name *abc.Name) bool {
	if o, ok := obj.(Object); ok {
		return o.HasProperty(rt, name)
	}
	if IsNullish(obj) {
		return false
	}
	key, ok := publicKey(name)
	if !ok {
		return false
	}
	if s, isStr := obj.(string); isStr {
		if key == "length" {
			return true
		}
		if i, ok := arrayIndex(key); ok {
			return i < utf8.RuneCountInString(s)
		}
	}
	c := rt.builtins.boxClass(obj)
	return c != nil && !IsUndefined(c.Prototype.GetPublic(key))
}

// In implements the in operator.
func (rt *Runtime) In(key, obj Value) bool {
	rt.checkNullish(obj)
	return rt.HasProperty(obj, rt.publicName(key))
}

// publicName builds a runtime public name from a key value.
func (rt *Runtime) publicName(key Value) *abc.Name {
	return abc.NewRuntimeName([]*abc.Namespace{rt.interner.Public()}, ToString(key), false)
}

// PublicName returns the interned public name for local.
func (rt *Runtime) PublicName(local string) *abc.Name { return rt.interner.PublicName(local) }

// IsUndefined reports whether v is undefined.
func IsUndefined(v Value) bool {
	switch v.(type) {
	case nil, undefinedType:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Calls and construction
// ---------------------------------------------------------------------------

// Call invokes fn with receiver self. Unbound closures called with a
// nullish receiver run with their global object as receiver.
func (rt *Runtime) Call(fn, self Value, args []Value) Value {
	switch f := fn.(type) {
	case *Function:
		if f.Bound != nil {
			self = f.Bound
		} else if IsNullish(self) && f.Method.Scope != nil {
			self = f.Method.Scope.Global()
		}
		return rt.Invoke(f.Method, self, args)
	case *Class:
		return f.CallAsFunction(rt, args)
	}
	rt.ThrowError(CodeCallOfNonFunction, describe(fn))
	return nil
}

func (rt *Runtime) callValue(fn, self Value, args []Value, name *abc.Name) Value {
	switch fn.(type) {
	case *Function, *Class:
		return rt.Call(fn, self, args)
	}
	rt.ThrowError(CodeCallOfNonFunction, name)
	return nil
}

// CallProperty calls the property name of recv with recv as receiver.
func (rt *Runtime) CallProperty(recv Value, name *abc.Name, args []Value) Value {
	return rt.callProperty(recv, name, args, false)
}

// CallPropLex is CallProperty except that non-method values are called
// with a null receiver.
func (rt *Runtime) CallPropLex(recv Value, name *abc.Name, args []Value) Value {
	return rt.callProperty(recv, name, args, true)
}

func (rt *Runtime) callProperty(recv Value, name *abc.Name, args []Value, lex bool) Value {
	o, ok := recv.(Object)
	if !ok {
		rt.checkNullish(recv)
		return rt.callValue(rt.primitiveGet(recv, name), recv, args, name)
	}
	sb := o.base()
	this := recv
	if lex {
		this = Null
	}
	if t := sb.ResolveName(name); t != nil {
		if t.Kind == abc.TraitMethod {
			return rt.Invoke(t.Method, sb.self, args)
		}
		return rt.callValue(sb.getTrait(rt, t), this, args, name)
	}
	key, ok := publicKey(name)
	if !ok {
		rt.ThrowError(CodeCallOfNonFunction, name)
	}
	return rt.callValue(sb.GetPublic(key), this, args, name)
}

// Construct implements new on a constructor value.
func (rt *Runtime) Construct(ctor Value, args []Value) Value {
	switch c := ctor.(type) {
	case *Class:
		return c.Construct(rt, args)
	case *Function:
		return rt.constructFunction(c, args)
	}
	rt.checkNullish(ctor)
	rt.ThrowError(CodeConstructNonCtor)
	return nil
}

func (rt *Runtime) constructFunction(f *Function, args []Value) Value {
	proto, ok := f.GetPublic("prototype").(*ScriptObject)
	if !ok {
		proto = rt.builtins.Object.Prototype
	}
	obj := NewScriptObject(rt.builtins.Object, nil, proto)
	if r, ok := rt.Invoke(f.Method, obj, args).(Object); ok {
		return r
	}
	return obj
}

// ConstructProperty constructs the value of recv's property name.
func (rt *Runtime) ConstructProperty(recv Value, name *abc.Name, args []Value) Value {
	ctor := rt.GetProperty(recv, name)
	switch ctor.(type) {
	case *Class, *Function:
		return rt.Construct(ctor, args)
	}
	rt.ThrowError(CodeNotAConstructor, name)
	return nil
}

// ---------------------------------------------------------------------------
// Super access, relative to the home class of the executing method
// ---------------------------------------------------------------------------

func (rt *Runtime) superTrait(m *Method, recv Value, name *abc.Name) (*ScriptObject, *Trait) {
	o := rt.ToObject(recv).base()
	if m.Home == nil || m.Home.Super == nil {
		rt.ThrowError(CodeReadSealed, name, "super")
	}
	return o, m.Home.Super.Instance.LookupName(name)
}

// GetSuper reads name as declared by the superclass of m's home class.
func (rt *Runtime) GetSuper(m *Method, recv Value, name *abc.Name) Value {
	o, t := rt.superTrait(m, recv, name)
	if t == nil {
		return o.GetProperty(rt, name)
	}
	return o.getTrait(rt, t)
}

// SetSuper writes name through the superclass's declaration.
func (rt *Runtime) SetSuper(m *Method, recv Value, name *abc.Name, v Value) {
	o, t := rt.superTrait(m, recv, name)
	if t == nil {
		o.SetProperty(rt, name, v)
		return
	}
	o.setTrait(rt, t, v, false)
}

// CallSuper calls the superclass's implementation of name.
func (rt *Runtime) CallSuper(m *Method, recv Value, name *abc.Name, args []Value) Value {
	o, t := rt.superTrait(m, recv, name)
	if t == nil {
		rt.ThrowError(CodeCallOfNonFunction, name)
	}
	if t.Kind == abc.TraitMethod {
		return rt.Invoke(t.Method, o.self, args)
	}
	return rt.callValue(o.getTrait(rt, t), recv, args, name)
}

// ConstructSuper runs the superclass initializer on recv.
func (rt *Runtime) ConstructSuper(m *Method, recv Value, args []Value) {
	if m.Home == nil || m.Home.Super == nil {
		return
	}
	m.Home.Super.Initialize(rt, recv, args)
}

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// NewPlainObject creates an empty dynamic Object instance.
func (rt *Runtime) NewPlainObject() *ScriptObject {
	return NewScriptObject(rt.builtins.Object, nil, rt.builtins.Object.Prototype)
}

// NewObject creates an object from alternating name/value pairs.
func (rt *Runtime) NewObject(pairs []Value) *ScriptObject {
	o := rt.NewPlainObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		o.SetPublic(ToString(pairs[i]), pairs[i+1])
	}
	return o
}

// NewArray creates an Array holding elems.
func (rt *Runtime) NewArray(elems []Value) *ScriptObject {
	o := rt.builtins.Array.Allocate(rt)
	o.elems = append(o.elems[:0], elems...)
	return o
}

// NewFunction creates a closure over scope for method index of mod.
func (rt *Runtime) NewFunction(mod *abc.Module, index int, scope *Scope) *Function {
	m, err := rt.bindMethod(mod, index, scope, nil, "", "")
	if err != nil {
		panic(err)
	}
	f := rt.newFunctionObject(m, nil)
	proto := rt.NewPlainObject()
	proto.defineHidden("constructor", f)
	f.SetPublic("prototype", proto)
	return f
}

// NewNativeFunction wraps a host function as a Function object.
func (rt *Runtime) NewNativeFunction(name string, fn NativeFunc) *Function {
	return rt.newFunctionObject(NewNativeMethod(name, fn), nil)
}

func (rt *Runtime) newFunctionObject(m *Method, bound Value) *Function {
	var so *ScriptObject
	if fc := rt.builtins.Function; fc != nil {
		so = NewScriptObject(fc, nil, fc.Prototype)
	} else {
		so = NewScriptObject(nil, nil, nil)
	}
	so.sealed = false
	f := &Function{ScriptObject: so, Method: m, Bound: bound}
	so.self = f
	return f
}

// NewActivation creates the activation object of a call to m.
func (rt *Runtime) NewActivation(m *Method) *ScriptObject {
	v, ok := rt.activations.Load(m.Body)
	if !ok {
		traits, err := ResolveTraits(m.Body.Traits, nil, nil, m.Scope, &methodBinder{rt: rt})
		if err != nil {
			panic(err)
		}
		v, _ = rt.activations.LoadOrStore(m.Body, traits)
	}
	return NewScriptObject(nil, v.(*ResolvedTraits), nil)
}

// NewCatch creates the scope object of exception handler index of m.
func (rt *Runtime) NewCatch(m *Method, index int) *ScriptObject {
	ex := m.Body.Exceptions[index]
	v, ok := rt.catches.Load(ex)
	if !ok {
		traits, err := ResolveTraits(ex.Traits(), nil, nil, m.Scope, nil)
		if err != nil {
			panic(err)
		}
		v, _ = rt.catches.LoadOrStore(ex, traits)
	}
	return NewScriptObject(nil, v.(*ResolvedTraits), nil)
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

func enumerable(v Value) *ScriptObject {
	if o, ok := v.(Object); ok {
		return o.base()
	}
	return nil
}

// HasNext2 advances an enumeration. It returns the object to continue
// with, the new index and whether a property remains; when none remains
// the object is Null and the index 0.
func (rt *Runtime) HasNext2(obj Value, index int32) (Value, int32, bool) {
	o := enumerable(obj)
	for o != nil {
		if int(index) < len(o.OwnKeys()) {
			return o.self, index + 1, true
		}
		o, index = o.proto, 0
	}
	return Null, 0, false
}

// HasNext returns the next index of obj after index, or 0.
func (rt *Runtime) HasNext(obj Value, index int32) int32 {
	o := enumerable(obj)
	if o != nil && int(index) < len(o.OwnKeys()) {
		return index + 1
	}
	return 0
}

// NextName returns the key at the 1-based index.
func (rt *Runtime) NextName(obj Value, index int32) Value {
	o := enumerable(obj)
	if o == nil {
		return Undefined
	}
	keys := o.OwnKeys()
	if index < 1 || int(index) > len(keys) {
		return Undefined
	}
	return keys[index-1]
}

// NextValue returns the value at the 1-based index.
func (rt *Runtime) NextValue(obj Value, index int32) Value {
	k := rt.NextName(obj, index)
	if IsUndefined(k) {
		return Undefined
	}
	return enumerable(obj).GetPublic(k.(string))
}

// ---------------------------------------------------------------------------
// Runtime names
// ---------------------------------------------------------------------------

// RuntimeName completes tmpl with operand-stack parts. String local names
// of namespace-set names are specialized to fixed, cacheable names.
func (rt *Runtime) RuntimeName(tmpl *abc.Name, ns, local Value) *abc.Name {
	if tmpl.NeedsRuntimeName() && !tmpl.NeedsRuntimeNamespace() {
		if s, ok := local.(string); ok && tmpl.ID() >= 0 {
			return rt.interner.Specialize(tmpl, s)
		}
	}
	var nsv *abc.Namespace
	if tmpl.NeedsRuntimeNamespace() {
		n, ok := ns.(*abc.Namespace)
		if !ok {
			rt.ThrowError(CodeIllegalNamespace, ToString(ns))
		}
		nsv = n
	}
	l := ""
	if tmpl.NeedsRuntimeName() {
		l = rt.ToString(local)
	}
	return tmpl.WithRuntimeParts(nsv, l)
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// ClassFor resolves a type name to a class, raising VerifyError 1014 when
// it does not name one. Parametrized names are applied.
func (rt *Runtime) ClassFor(d *Domain, name *abc.Name) *Class {
	if d == nil {
		d = rt.system
	}
	if v, ok := d.types.Load(name); ok {
		return v.(*Class)
	}
	var c *Class
	if name.IsParametrized() {
		base := rt.ClassFor(d, name.Base())
		var param *Class
		if p := name.TypeParameter(); p != nil && !p.IsAnyName() {
			param = rt.ClassFor(d, p)
		}
		c = rt.applyType(base, param)
	} else {
		g := d.findGlobal(rt, name)
		if g == nil {
			rt.ThrowError(CodeClassNotFound, name)
		}
		var ok bool
		if c, ok = rt.GetProperty(g, name).(*Class); !ok {
			rt.ThrowError(CodeClassNotFound, name)
		}
	}
	if name.IsFixed() || name.IsParametrized() {
		d.types.Store(name, c)
	}
	return c
}

func (rt *Runtime) resolveClass(d *Domain, name *abc.Name) (c *Class, err error) {
	defer rt.recoverTo(&err)
	return rt.ClassFor(d, name), nil
}

// primitiveType returns the builtin class of a public primitive type name
// without a global lookup.
func (rt *Runtime) primitiveType(name *abc.Name) *Class {
	if name.IsRuntime() || !name.IsPublic() || name.IsParametrized() {
		return nil
	}
	return rt.builtins.primitives[name.LocalName()]
}

// Coerce converts v to the type named by typeName, raising TypeError 1034
// on failure. A nil or "*" type accepts anything.
func (rt *Runtime) Coerce(d *Domain, v Value, typeName *abc.Name) Value {
	if typeName == nil || typeName.IsAnyName() {
		return v
	}
	c := rt.primitiveType(typeName)
	if c == nil {
		c = rt.ClassFor(d, typeName)
	}
	return rt.CoerceTo(v, c)
}

// CoerceTo converts v to class c.
func (rt *Runtime) CoerceTo(v Value, c *Class) Value {
	if c == nil {
		return v
	}
	if c.coerce != nil {
		r, ok := c.coerce(rt, v)
		if !ok {
			rt.ThrowError(CodeCheckTypeFailed, describe(v), c.QualifiedName())
		}
		return r
	}
	if IsNullish(v) {
		return Null
	}
	if c.IsInstance(v) {
		return v
	}
	rt.ThrowError(CodeCheckTypeFailed, describe(v), c.QualifiedName())
	return nil
}

// coerceSlot applies the primitive conversions of typed slots. Class-typed
// slots are stored as given; compiled code coerces before storing.
func (rt *Runtime) coerceSlot(t *Trait, v Value) Value {
	if t.Type == nil {
		return v
	}
	if c := rt.primitiveType(t.Type); c != nil && c.coerce != nil {
		if r, ok := c.coerce(rt, v); ok {
			return r
		}
	}
	return v
}

// IsType implements istype.
func (rt *Runtime) IsType(d *Domain, v Value, typeName *abc.Name) bool {
	if typeName == nil || typeName.IsAnyName() {
		return true
	}
	c := rt.primitiveType(typeName)
	if c == nil {
		c = rt.ClassFor(d, typeName)
	}
	return c.IsInstance(v)
}

// IsTypeLate implements istypelate.
func (rt *Runtime) IsTypeLate(v, class Value) bool {
	c, ok := class.(*Class)
	if !ok {
		rt.ThrowError(CodeNotAClass)
	}
	return c.IsInstance(v)
}

// AsType implements astype.
func (rt *Runtime) AsType(d *Domain, v Value, typeName *abc.Name) Value {
	if rt.IsType(d, v, typeName) {
		return v
	}
	return Null
}

// AsTypeLate implements astypelate.
func (rt *Runtime) AsTypeLate(v, class Value) Value {
	if rt.IsTypeLate(v, class) {
		return v
	}
	return Null
}

// InstanceOf implements instanceof: a prototype chain test.
func (rt *Runtime) InstanceOf(v, ctor Value) bool {
	var proto *ScriptObject
	switch c := ctor.(type) {
	case *Class:
		proto = c.Prototype
	case *Function:
		proto, _ = c.GetPublic("prototype").(*ScriptObject)
	default:
		rt.checkNullish(ctor)
		rt.ThrowError(CodeNotAClass)
	}
	var p *ScriptObject
	if o, ok := v.(Object); ok {
		p = o.Proto()
	} else if c := rt.builtins.boxClass(v); c != nil {
		p = c.Prototype
	}
	for ; p != nil; p = p.proto {
		if p == proto {
			return true
		}
	}
	return false
}

// ApplyType implements applytype: base.<params>.
func (rt *Runtime) ApplyType(base Value, params []Value) Value {
	c, ok := base.(*Class)
	if !ok || !c.generic || len(params) != 1 {
		rt.ThrowError(CodeNotParameterized)
	}
	var param *Class
	if !IsNullish(params[0]) {
		if param, ok = params[0].(*Class); !ok {
			rt.ThrowError(CodeNotAClass)
		}
	}
	return rt.applyType(c, param)
}

// ---------------------------------------------------------------------------
// Conversions that may call into objects
// ---------------------------------------------------------------------------

// ToPrimitive converts objects through valueOf and toString.
func (rt *Runtime) ToPrimitive(v Value, preferString bool) Value {
	o, ok := v.(Object)
	if !ok {
		return v
	}
	if p, ok := v.(primitiveValuer); ok {
		return p.PrimitiveValue()
	}
	order := []string{"valueOf", "toString"}
	if preferString {
		order[0], order[1] = order[1], order[0]
	}
	for _, m := range order {
		fn := o.base().GetPublic(m)
		if t := o.ResolveName(rt.PublicName(m)); t != nil {
			fn = o.base().getTrait(rt, t)
		}
		switch fn.(type) {
		case *Function, *Class:
			if r := rt.Call(fn, v, nil); isPrimitive(r) {
				return r
			}
		}
	}
	return ToString(v)
}

// ToString converts v, calling toString on objects.
func (rt *Runtime) ToString(v Value) string {
	if _, ok := v.(Object); ok {
		return ToString(rt.ToPrimitive(v, true))
	}
	return ToString(v)
}

// ToNumber converts v, calling valueOf on objects.
func (rt *Runtime) ToNumber(v Value) float64 {
	if _, ok := v.(Object); ok {
		return ToNumber(rt.ToPrimitive(v, false))
	}
	return ToNumber(v)
}

// Add implements + including the markup hook and object conversion.
func (rt *Runtime) Add(a, b Value) Value {
	if isPrimitive(a) && isPrimitive(b) {
		return Add(a, b)
	}
	_, ma := a.(Markup)
	_, mb := b.(Markup)
	if (ma || mb) && rt.opts.Markup != nil {
		return rt.opts.Markup(rt, a, b)
	}
	return Add(rt.ToPrimitive(a, false), rt.ToPrimitive(b, false))
}

// Equals implements == with object conversion.
func (rt *Runtime) Equals(a, b Value) bool {
	if isPrimitive(a) == isPrimitive(b) || IsNullish(a) || IsNullish(b) {
		return Equals(a, b)
	}
	if isPrimitive(a) {
		return Equals(a, rt.ToPrimitive(b, false))
	}
	return Equals(rt.ToPrimitive(a, false), b)
}

// Compare returns -1, 0, 1, or 2 for unordered operands, converting
// objects first.
func (rt *Runtime) Compare(a, b Value) int {
	return compare(rt.ToPrimitive(a, false), rt.ToPrimitive(b, false))
}

// ---------------------------------------------------------------------------
// Slots and early-bound dispatch
// ---------------------------------------------------------------------------

func (rt *Runtime) slotOwner(obj Value, id int) *ScriptObject {
	o := rt.ToObject(obj).base()
	if id <= 0 || id >= len(o.slots) {
		rt.ThrowError(CodeSlotOutOfRange, id)
	}
	return o
}

// GetSlot implements getslot.
func (rt *Runtime) GetSlot(obj Value, id int) Value { return rt.slotOwner(obj, id).slots[id] }

// SetSlot implements setslot. Typed slots apply their primitive conversion.
func (rt *Runtime) SetSlot(obj Value, id int, v Value) {
	o := rt.slotOwner(obj, id)
	if t := o.traits.SlotTrait(id); t != nil {
		v = rt.coerceSlot(t, v)
	}
	o.slots[id] = v
}

// CallMethod implements callmethod: dispatch by method id on the traits
// of recv.
func (rt *Runtime) CallMethod(recv Value, dispID int, args []Value) Value {
	o := rt.ToObject(recv).base()
	var t *Trait
	if o.traits != nil {
		t = o.traits.ByDispID(dispID)
	}
	if t == nil || t.Method == nil {
		rt.ThrowError(CodeCallOfNonFunction, dispID)
	}
	return rt.Invoke(t.Method, o.self, args)
}

type staticKey struct {
	info  *abc.MethodInfo
	scope *Scope
}

// CallStatic implements callstatic: a direct call of method index of the
// caller's module, closed over the caller's scope.
func (rt *Runtime) CallStatic(caller *Method, index int, recv Value, args []Value) Value {
	rt.checkNullish(recv)
	info, err := caller.Module().Method(index)
	if err != nil {
		panic(err)
	}
	key := staticKey{info, caller.Scope}
	v, ok := rt.statics.Load(key)
	if !ok {
		m, err := rt.bindMethod(caller.Module(), index, caller.Scope, caller.Home, "", "")
		if err != nil {
			panic(err)
		}
		v, _ = rt.statics.LoadOrStore(key, m)
	}
	return rt.Invoke(v.(*Method), recv, args)
}

// ---------------------------------------------------------------------------
// Markup
// ---------------------------------------------------------------------------

// Descendable is implemented by markup values supporting the descendants
// operator and filters.
type Descendable interface {
	Markup
	Descendants(name *abc.Name) Value
}

// GetDescendants implements getdescendants.
func (rt *Runtime) GetDescendants(obj Value, name *abc.Name) Value {
	d, ok := obj.(Descendable)
	if !ok {
		rt.checkNullish(obj)
		rt.ThrowError(CodeCheckTypeFailed, describe(obj), "XMLList")
	}
	return d.Descendants(name)
}

// CheckFilter implements checkfilter: only markup values can be filtered.
func (rt *Runtime) CheckFilter(v Value) Value {
	if _, ok := v.(Markup); !ok {
		rt.checkNullish(v)
		rt.ThrowError(CodeCheckTypeFailed, describe(v), "XMLList")
	}
	return v
}

var (
	elemEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", "\"", "&quot;", "\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

// EscapeMarkup implements esc_xelem and esc_xattr.
func (rt *Runtime) EscapeMarkup(v Value, attr bool) string {
	if m, ok := v.(Markup); ok {
		return m.MarkupString()
	}
	if attr {
		return attrEscaper.Replace(rt.ToString(v))
	}
	return elemEscaper.Replace(rt.ToString(v))
}
