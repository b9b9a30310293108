package vm

import (
	"sync"

	"github.com/chazu/abcvm/abc"
)

// Class is a class object. Its embedded ScriptObject carries the static
// side (class traits and dynamic properties); Instance holds the traits
// every instance gets.
type Class struct {
	*ScriptObject

	Name        *abc.Name
	Super       *Class
	Info        *abc.ClassInfo // nil for builtins
	Instance    *ResolvedTraits
	ProtectedNS *abc.Namespace
	Prototype   *ScriptObject
	Interfaces  []*Class
	Init        *Method
	Scope       *Scope

	Sealed    bool
	Final     bool
	Interface bool

	// Host hooks for builtin classes. Subclasses inherit alloc and native.
	alloc      func(rt *Runtime, c *Class) *ScriptObject
	native     NativeFunc // instance initializer; self is the new instance
	call       NativeFunc // the class called as a function
	construct  NativeFunc // replaces allocate and initialize
	isInstance func(v Value) bool
	coerce     func(rt *Runtime, v Value) (Value, bool)

	// Vector specializations.
	elem    *Class
	generic bool
	mu      sync.Mutex
	applied map[*Class]*Class
}

func (c *Class) String() string { return "[class " + c.Name.LocalName() + "]" }

// QualifiedName renders the class name as "uri::Local", or "Local" for
// the public package.
func (c *Class) QualifiedName() string { return c.Name.String() }

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
		if other.Interface && k.implements(other) {
			return true
		}
	}
	return false
}

func (c *Class) implements(iface *Class) bool {
	for _, i := range c.Interfaces {
		if i == iface || i.implements(iface) {
			return true
		}
	}
	return false
}

// IsInstance implements the is-type test.
func (c *Class) IsInstance(v Value) bool {
	if c.isInstance != nil {
		return c.isInstance(v)
	}
	o, ok := v.(Object)
	if !ok {
		return false
	}
	k := o.ClassOf()
	return k != nil && k.IsSubclassOf(c)
}

// ElementType returns the element class of a Vector specialization.
func (c *Class) ElementType() *Class { return c.elem }

// Allocate creates an uninitialized instance.
func (c *Class) Allocate(rt *Runtime) *ScriptObject {
	for k := c; k != nil; k = k.Super {
		if k.alloc != nil {
			return k.alloc(rt, c)
		}
	}
	return NewScriptObject(c, c.Instance, c.Prototype)
}

// Initialize runs the instance initializer chain for obj.
func (c *Class) Initialize(rt *Runtime, obj Value, args []Value) {
	for k := c; k != nil; k = k.Super {
		switch {
		case k.Init != nil:
			rt.Invoke(k.Init, obj, args)
			return
		case k.native != nil:
			k.native(rt, obj, args)
			return
		}
	}
}

// Construct allocates and initializes an instance.
func (c *Class) Construct(rt *Runtime, args []Value) Value {
	if c.construct != nil {
		return c.construct(rt, c, args)
	}
	if c.Interface {
		rt.ThrowError(CodeConstructNonCtor)
	}
	obj := c.Allocate(rt)
	c.Initialize(rt, obj.self, args)
	return obj.self
}

// CallAsFunction implements calling a class: an explicit conversion to the
// class type.
func (c *Class) CallAsFunction(rt *Runtime, args []Value) Value {
	if c.call != nil {
		return c.call(rt, c, args)
	}
	if len(args) != 1 {
		rt.ThrowError(CodeWrongArgumentCount, c.Name, 1, len(args))
	}
	return rt.CoerceTo(args[0], c)
}

// ---------------------------------------------------------------------------
// Class creation from a module
// ---------------------------------------------------------------------------

// NewClass builds the class described by ci on top of super, runs its
// static initializer and returns it. scope is the scope chain at the
// newclass site.
func (rt *Runtime) NewClass(scope *Scope, ci *abc.ClassInfo, super *Class) *Class {
	c, err := rt.newClass(scope, ci, super)
	if err != nil {
		panic(err)
	}
	if ci.Init >= 0 {
		init, err := rt.bindMethod(ci.Module(), ci.Init, c.Scope, c, c.QualifiedName()+"$cinit", "")
		if err != nil {
			panic(err)
		}
		rt.Invoke(init, c, nil)
	}
	return c
}

func (rt *Runtime) newClass(scope *Scope, ci *abc.ClassInfo, super *Class) (*Class, error) {
	ii := ci.Instance
	name, err := ii.Name()
	if err != nil {
		return nil, err
	}
	if super == nil && ii.SuperNameIndex != 0 {
		super = rt.builtins.Object
	}
	if super != nil && super.Final {
		return nil, NewError(CodeCannotExtendFinal, name)
	}
	protectedNS, err := ii.ProtectedNamespace()
	if err != nil {
		return nil, err
	}

	c := &Class{
		Name:        name,
		Super:       super,
		Info:        ci,
		ProtectedNS: protectedNS,
		Sealed:      ii.IsSealed(),
		Final:       ii.IsFinal(),
		Interface:   ii.IsInterface(),
	}
	c.Scope = scope.Extend(c)

	d := scope.Domain()
	for _, idx := range ii.Interfaces {
		iname, err := ci.Module().Name(idx)
		if err != nil {
			return nil, err
		}
		iface, err := rt.resolveClass(d, iname)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	var superTraits *ResolvedTraits
	var superProto *ScriptObject
	if super != nil {
		superTraits = super.Instance
		superProto = super.Prototype
	}
	c.Instance, err = ResolveTraits(ii.Traits, superTraits, protectedNS, c.Scope, &methodBinder{rt: rt, home: c})
	if err != nil {
		return nil, err
	}
	static, err := ResolveTraits(ci.Traits, rt.builtins.Class.Instance, nil, c.Scope, &methodBinder{rt: rt, home: c, static: true})
	if err != nil {
		return nil, err
	}
	c.ScriptObject = NewScriptObject(rt.builtins.Class, static, rt.builtins.Class.Prototype)
	c.ScriptObject.self = c
	c.ScriptObject.sealed = false
	c.Prototype = NewScriptObject(rt.builtins.Object, nil, superProto)

	if !c.Interface {
		if c.Init, err = rt.bindMethod(ci.Module(), ii.Init, c.Scope, c, c.QualifiedName()+"$iinit", ""); err != nil {
			return nil, err
		}
	}
	rt.log.Debugf("class %s defined (super %v)", c.QualifiedName(), super)
	return c, nil
}

// methodBinder binds trait methods declared by home (nil for script and
// activation traits).
type methodBinder struct {
	rt     *Runtime
	home   *Class
	static bool
}

func (b *methodBinder) Bind(desc *abc.TraitInfo, scope *Scope) (*Method, error) {
	name, err := desc.Name()
	if err != nil {
		return nil, err
	}
	member := name.LocalName()
	switch desc.Kind {
	case abc.TraitGetter:
		member = "get " + member
	case abc.TraitSetter:
		member = "set " + member
	}
	var path string
	switch {
	case b.home == nil:
		path = packagePath(name) + "::" + member
	case b.static:
		path = b.home.nativeKey() + "/static/" + member
	default:
		path = b.home.nativeKey() + "/" + member
	}
	return b.rt.bindMethod(desc.Module(), desc.Method, scope, b.home, path, path)
}

// nativeKey is "pkg::Class", the prefix of native member paths.
func (c *Class) nativeKey() string {
	return packagePath(c.Name) + "::" + c.Name.LocalName()
}

func packagePath(n *abc.Name) string {
	if ns := n.Namespace(); ns != nil {
		return ns.URI
	}
	return ""
}

// bindMethod creates the Method for index in mod. Methods flagged native
// are looked up in the native registry under nativePath.
func (rt *Runtime) bindMethod(mod *abc.Module, index int, scope *Scope, home *Class, debugName, nativePath string) (*Method, error) {
	info, err := mod.Method(index)
	if err != nil {
		return nil, err
	}
	m := &Method{Info: info, Scope: scope, Home: home, Name: debugName}
	if m.Name == "" {
		m.Name = info.DebugName()
	}
	if info.Has(abc.Native) {
		if nativePath == "" {
			nativePath = debugName
		}
		fn, ok := rt.natives.Lookup(nativePath)
		if !ok {
			if rt.opts.Strict {
				return nil, NewError(CodeNotImplemented, nativePath)
			}
			fn = missingNative(nativePath)
		}
		m.Native = fn
		return m, nil
	}
	if mod.HasBody(index) {
		if m.Body, err = mod.Body(index); err != nil {
			return nil, err
		}
	}
	return m, nil
}
