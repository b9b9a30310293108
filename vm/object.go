package vm

import (
	"strconv"

	"github.com/chazu/abcvm/abc"
)

// Object is the property protocol every heap value implements.
type Object interface {
	Traits() *ResolvedTraits
	ClassOf() *Class
	Proto() *ScriptObject

	// ResolveName returns the trait name refers to, or nil when the name
	// is dynamic or absent.
	ResolveName(name *abc.Name) *Trait
	HasTrait(name *abc.Name) bool
	HasProperty(rt *Runtime, name *abc.Name) bool
	HasOwnProperty(name *abc.Name) bool
	GetProperty(rt *Runtime, name *abc.Name) Value
	SetProperty(rt *Runtime, name *abc.Name, v Value)
	InitProperty(rt *Runtime, name *abc.Name, v Value)
	DeleteProperty(rt *Runtime, name *abc.Name) bool
	CallProperty(rt *Runtime, name *abc.Name, args []Value) Value
	ConstructProperty(rt *Runtime, name *abc.Name, args []Value) Value

	GetPublic(key string) Value
	SetPublic(key string, v Value)
	HasPublic(key string) bool
	DeletePublic(key string) bool
	GetIndex(i int) Value
	SetIndex(i int, v Value)
	OwnKeys() []string

	Slot(id int) Value
	SetSlot(id int, v Value)

	base() *ScriptObject
}

// ScriptObject is the common object representation: trait slots, dynamic
// public properties kept in insertion order, and a prototype link.
// Arrays and vectors additionally keep dense elements.
type ScriptObject struct {
	class  *Class
	traits *ResolvedTraits
	slots  []Value
	proto  *ScriptObject
	sealed bool

	dynamic map[string]Value
	keys    []string

	// elems is non-nil for arrays and vectors.
	elems  []Value
	array  bool
	vector *vectorInfo

	bound map[*Trait]*Function

	// self is the outermost value wrapping this object (a *Class or
	// *Function embeds its ScriptObject). Accessors receive self.
	self Value
}

type vectorInfo struct {
	elem  *Class
	fixed bool
	zero  Value
}

// NewScriptObject creates an object with the given traits and prototype.
// Slots start at their trait defaults.
func NewScriptObject(class *Class, traits *ResolvedTraits, proto *ScriptObject) *ScriptObject {
	o := &ScriptObject{class: class, traits: traits, proto: proto}
	o.self = o
	if traits != nil {
		o.slots = make([]Value, traits.SlotCount())
		for id, t := range traits.Slots() {
			if t == nil {
				continue
			}
			o.slots[id] = slotDefault(t)
		}
	}
	if class != nil {
		o.sealed = class.Sealed
	}
	return o
}

// slotDefault returns the initial value of a slot before any initializer
// runs.
func slotDefault(t *Trait) Value {
	if t.Default != nil {
		return t.Default
	}
	if t.Info != nil && t.Info.HasDefault() {
		if c, err := t.Info.DefaultValue(); err == nil {
			return ConstantValue(c)
		}
	}
	if t.Kind != abc.TraitSlot && t.Kind != abc.TraitConst {
		return Null
	}
	return DefaultForType(t.Type)
}

// ConstantValue converts a decoded constant.
func ConstantValue(c abc.Constant) Value {
	switch c.Kind {
	case abc.ValueUndefined:
		return Undefined
	case abc.ValueUtf8:
		return c.String
	case abc.ValueInt:
		return c.Int
	case abc.ValueUint:
		return c.Uint
	case abc.ValueDouble:
		return c.Double
	case abc.ValueFalse:
		return false
	case abc.ValueTrue:
		return true
	case abc.ValueNull:
		return Null
	}
	return c.Namespace
}

// DefaultForType returns the value an uninitialized slot of the given
// declared type holds.
func DefaultForType(typ *abc.Name) Value {
	if typ == nil || typ.IsAnyName() {
		return Undefined
	}
	if typ.IsPublic() {
		switch typ.LocalName() {
		case "int":
			return int32(0)
		case "uint":
			return uint32(0)
		case "Number":
			return nan
		case "Boolean":
			return false
		case "*":
			return Undefined
		}
	}
	return Null
}

func (o *ScriptObject) base() *ScriptObject { return o }

// Traits returns the object's resolved traits (nil for plain dynamic
// objects).
func (o *ScriptObject) Traits() *ResolvedTraits { return o.traits }

// ClassOf returns the object's class.
func (o *ScriptObject) ClassOf() *Class { return o.class }

// Proto returns the prototype link.
func (o *ScriptObject) Proto() *ScriptObject { return o.proto }

// Self returns the value that wraps this object.
func (o *ScriptObject) Self() Value { return o.self }

// IsSealed reports whether dynamic properties are disallowed.
func (o *ScriptObject) IsSealed() bool { return o.sealed }

func (o *ScriptObject) className() string {
	if o.class == nil {
		return "Object"
	}
	return o.class.Name.String()
}

func (o *ScriptObject) String() string {
	if o.array || o.vector != nil {
		return joinElements(o.elems, ",")
	}
	return "[object " + o.className() + "]"
}

// ResolveName returns the trait for name.
func (o *ScriptObject) ResolveName(name *abc.Name) *Trait {
	if o.traits == nil {
		return nil
	}
	return o.traits.LookupName(name)
}

// HasTrait reports whether name refers to a trait.
func (o *ScriptObject) HasTrait(name *abc.Name) bool { return o.ResolveName(name) != nil }

// publicKey returns the dynamic-property key for name, if name can address
// dynamic properties at all.
func publicKey(name *abc.Name) (string, bool) {
	if name.IsAttribute() || name.IsAnyName() || !name.IsPublic() {
		return "", false
	}
	return name.LocalName(), true
}

// arrayIndex parses canonical non-negative integer keys.
func arrayIndex(key string) (int, bool) {
	if key == "" || len(key) > 10 || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Dynamic properties
// ---------------------------------------------------------------------------

func (o *ScriptObject) getOwn(key string) (Value, bool) {
	if o.elems != nil || o.array {
		if i, ok := arrayIndex(key); ok {
			if i < len(o.elems) {
				return o.elems[i], true
			}
			return nil, false
		}
		if key == "length" {
			return o.length(), true
		}
	}
	v, ok := o.dynamic[key]
	return v, ok
}

func (o *ScriptObject) length() Value {
	if o.vector != nil {
		return uint32(len(o.elems))
	}
	return NumberValue(float64(len(o.elems)))
}

// GetPublic reads a public property through the prototype chain without
// consulting traits.
func (o *ScriptObject) GetPublic(key string) Value {
	for p := o; p != nil; p = p.proto {
		if v, ok := p.getOwn(key); ok {
			return v
		}
	}
	return Undefined
}

// SetPublic writes an own public property, ignoring sealing.
func (o *ScriptObject) SetPublic(key string, v Value) {
	if o.array || o.vector != nil {
		if i, ok := arrayIndex(key); ok {
			o.setElem(i, v)
			return
		}
		if key == "length" {
			o.setLength(int(ToUint32(v)))
			return
		}
	}
	if o.dynamic == nil {
		o.dynamic = make(map[string]Value)
	}
	if _, ok := o.dynamic[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.dynamic[key] = v
}

// defineHidden stores a public property that enumeration skips.
func (o *ScriptObject) defineHidden(key string, v Value) {
	if o.dynamic == nil {
		o.dynamic = make(map[string]Value)
	}
	o.dynamic[key] = v
}

// HasPublic reports whether key is an own public property.
func (o *ScriptObject) HasPublic(key string) bool {
	_, ok := o.getOwn(key)
	return ok
}

// DeletePublic removes an own public property.
func (o *ScriptObject) DeletePublic(key string) bool {
	if o.array {
		if i, ok := arrayIndex(key); ok {
			if i < len(o.elems) {
				o.elems[i] = Undefined
			}
			return true
		}
	}
	if _, ok := o.dynamic[key]; !ok {
		return true
	}
	delete(o.dynamic, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// GetIndex reads element i of an array or an indexed property.
func (o *ScriptObject) GetIndex(i int) Value {
	if o.elems != nil || o.array {
		if i >= 0 && i < len(o.elems) {
			return o.elems[i]
		}
		return Undefined
	}
	return o.GetPublic(strconv.Itoa(i))
}

// SetIndex writes element i.
func (o *ScriptObject) SetIndex(i int, v Value) {
	if o.array || o.vector != nil {
		o.setElem(i, v)
		return
	}
	o.SetPublic(strconv.Itoa(i), v)
}

func (o *ScriptObject) setLength(n int) {
	if n <= len(o.elems) {
		o.elems = o.elems[:n]
		return
	}
	for len(o.elems) < n {
		o.elems = append(o.elems, o.hole())
	}
}

func (o *ScriptObject) hole() Value {
	if o.vector != nil {
		return o.vector.zero
	}
	return Undefined
}

func (o *ScriptObject) setElem(i int, v Value) {
	if i < 0 {
		return
	}
	for len(o.elems) <= i {
		o.elems = append(o.elems, o.hole())
	}
	o.elems[i] = v
}

// OwnKeys lists own enumerable keys: element indices first, then dynamic
// properties in insertion order.
func (o *ScriptObject) OwnKeys() []string {
	keys := make([]string, 0, len(o.elems)+len(o.keys))
	for i := range o.elems {
		keys = append(keys, strconv.Itoa(i))
	}
	return append(keys, o.keys...)
}

// Len returns the element count of an array or vector.
func (o *ScriptObject) Len() int { return len(o.elems) }

// Elements returns the dense element store.
func (o *ScriptObject) Elements() []Value { return o.elems }

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

// Slot returns the value in slot id (1-based).
func (o *ScriptObject) Slot(id int) Value {
	if id <= 0 || id >= len(o.slots) {
		panic(NewError(CodeSlotOutOfRange, id))
	}
	return o.slots[id]
}

// SetSlot stores v in slot id without coercion.
func (o *ScriptObject) SetSlot(id int, v Value) {
	if id <= 0 || id >= len(o.slots) {
		panic(NewError(CodeSlotOutOfRange, id))
	}
	o.slots[id] = v
}

// ---------------------------------------------------------------------------
// Property protocol
// ---------------------------------------------------------------------------

func (o *ScriptObject) getTrait(rt *Runtime, t *Trait) Value {
	switch {
	case t.IsSlot():
		return o.slots[t.Slot]
	case t.IsAccessor():
		if t.Getter == nil {
			rt.ThrowError(CodeWriteOnly, t.Name, o.className())
		}
		return rt.Invoke(t.Getter, o.self, nil)
	}
	return o.boundMethod(rt, t)
}

func (o *ScriptObject) boundMethod(rt *Runtime, t *Trait) *Function {
	if f, ok := o.bound[t]; ok {
		return f
	}
	f := rt.newFunctionObject(t.Method, o.self)
	if o.bound == nil {
		o.bound = make(map[*Trait]*Function)
	}
	o.bound[t] = f
	return f
}

func (o *ScriptObject) setTrait(rt *Runtime, t *Trait, v Value, init bool) {
	switch {
	case t.IsSlot():
		if t.ReadOnly && !init {
			rt.ThrowError(CodeConstWrite, t.Name, o.className())
		}
		o.slots[t.Slot] = rt.coerceSlot(t, v)
	case t.IsAccessor():
		if t.Setter == nil {
			rt.ThrowError(CodeConstWrite, t.Name, o.className())
		}
		rt.Invoke(t.Setter, o.self, []Value{v})
	default:
		rt.ThrowError(CodeCannotAssignMethod, t.Name, o.className())
	}
}

// lookup reads name without raising on a miss.
func (o *ScriptObject) lookup(rt *Runtime, name *abc.Name) (Value, bool) {
	if t := o.ResolveName(name); t != nil {
		return o.getTrait(rt, t), true
	}
	if key, ok := publicKey(name); ok {
		for p := o; p != nil; p = p.proto {
			if v, ok := p.getOwn(key); ok {
				return v, true
			}
		}
	}
	return Undefined, false
}

// GetProperty implements the property read protocol: traits first, then
// public dynamic properties along the prototype chain. Missing properties
// of sealed objects raise ReferenceError 1069.
func (o *ScriptObject) GetProperty(rt *Runtime, name *abc.Name) Value {
	v, ok := o.lookup(rt, name)
	if !ok && o.sealed {
		rt.ThrowError(CodeReadSealed, name, o.className())
	}
	return v
}

// SetProperty implements the property write protocol.
func (o *ScriptObject) SetProperty(rt *Runtime, name *abc.Name, v Value) {
	o.putProperty(rt, name, v, false)
}

// InitProperty is SetProperty that may also write constants.
func (o *ScriptObject) InitProperty(rt *Runtime, name *abc.Name, v Value) {
	o.putProperty(rt, name, v, true)
}

func (o *ScriptObject) putProperty(rt *Runtime, name *abc.Name, v Value, init bool) {
	if t := o.ResolveName(name); t != nil {
		o.setTrait(rt, t, v, init)
		return
	}
	key, ok := publicKey(name)
	if !ok {
		rt.ThrowError(CodeWriteSealed, name, o.className())
	}
	if o.vector != nil {
		if i, ok := arrayIndex(key); ok {
			o.setVectorElem(rt, i, v)
			return
		}
	}
	if o.sealed {
		rt.ThrowError(CodeWriteSealed, name, o.className())
	}
	o.SetPublic(key, v)
}

func (o *ScriptObject) setVectorElem(rt *Runtime, i int, v Value) {
	if i > len(o.elems) || (i == len(o.elems) && o.vector.fixed) {
		rt.ThrowError(CodeIndexOutOfRange, i, len(o.elems))
	}
	v = rt.CoerceTo(v, o.vector.elem)
	if i == len(o.elems) {
		o.elems = append(o.elems, v)
		return
	}
	o.elems[i] = v
}

// DeleteProperty removes a dynamic property. Traits cannot be deleted.
func (o *ScriptObject) DeleteProperty(rt *Runtime, name *abc.Name) bool {
	if o.ResolveName(name) != nil {
		return false
	}
	key, ok := publicKey(name)
	if !ok || o.sealed && o.vector == nil {
		return false
	}
	return o.DeletePublic(key)
}

// HasProperty reports whether name resolves on the object or its
// prototype chain.
func (o *ScriptObject) HasProperty(rt *Runtime, name *abc.Name) bool {
	_, ok := o.lookup(rt, name)
	return ok
}

// HasOwnProperty reports whether name is a trait or own dynamic property.
func (o *ScriptObject) HasOwnProperty(name *abc.Name) bool {
	if o.ResolveName(name) != nil {
		return true
	}
	key, ok := publicKey(name)
	return ok && o.HasPublic(key)
}

// CallProperty calls the property name with the object as receiver.
func (o *ScriptObject) CallProperty(rt *Runtime, name *abc.Name, args []Value) Value {
	return rt.CallProperty(o.self, name, args)
}

// ConstructProperty constructs the property name.
func (o *ScriptObject) ConstructProperty(rt *Runtime, name *abc.Name, args []Value) Value {
	return rt.ConstructProperty(o.self, name, args)
}
