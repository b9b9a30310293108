package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/abcvm/abc"
)

// ScriptState tracks a script's initializer.
type ScriptState int32

const (
	ScriptUnexecuted ScriptState = iota
	ScriptExecuting
	ScriptExecuted
)

func (s ScriptState) String() string {
	switch s {
	case ScriptUnexecuted:
		return "unexecuted"
	case ScriptExecuting:
		return "executing"
	case ScriptExecuted:
		return "executed"
	}
	return fmt.Sprintf("ScriptState(%d)", int32(s))
}

// Script is a loaded module-level initializer together with the global
// object its traits live on.
type Script struct {
	Info   *abc.ScriptInfo
	Module *abc.Module
	Domain *Domain

	global *ScriptObject
	scope  *Scope
	state  atomic.Int32
	mu     sync.Mutex
}

// State returns the initializer state.
func (s *Script) State() ScriptState { return ScriptState(s.state.Load()) }

// Defines reports whether one of the script's traits matches name. Every
// namespace of a multiname is tried.
func (s *Script) Defines(name *abc.Name) bool {
	for _, t := range s.Info.Traits {
		tn, err := t.Name()
		if err != nil || (!name.IsAnyName() && tn.LocalName() != name.LocalName()) {
			continue
		}
		if name.IsAnyNamespace() {
			return true
		}
		for _, ns := range name.Namespaces() {
			if ns == tn.Namespace() {
				return true
			}
		}
	}
	return false
}

// Global returns the script's global object, creating it on first use.
func (s *Script) Global(rt *Runtime) (*ScriptObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.global != nil {
		return s.global, nil
	}
	g := NewScriptObject(rt.builtins.Object, nil, rt.builtins.Object.Prototype)
	scope := NewScope(s.Domain, g)
	traits, err := ResolveTraits(s.Info.Traits, nil, nil, scope, &methodBinder{rt: rt})
	if err != nil {
		return nil, err
	}
	g.traits = traits
	g.slots = make([]Value, traits.SlotCount())
	for id, t := range traits.Slots() {
		if t == nil {
			continue
		}
		if t.Kind == abc.TraitFunction && t.Method != nil {
			g.slots[id] = rt.newFunctionObject(t.Method, nil)
			continue
		}
		g.slots[id] = slotDefault(t)
	}
	s.global, s.scope = g, scope
	return g, nil
}

// Catalog maps qualified names to modules that can be loaded on demand.
type Catalog interface {
	Lookup(qualifiedName string) (data []byte, source string, ok bool, err error)
}

// Domain is a module registry. Lookups consult the parent first; children
// add definitions, never shadow them. All domains of one Runtime share its
// interner so names from different domains compare by identity.
type Domain struct {
	ID     uuid.UUID
	parent *Domain
	rt     *Runtime

	mu      sync.Mutex
	modules []*abc.Module
	scripts []*Script
	catalog Catalog
	sources map[string]bool
	memory  []byte
	types   sync.Map // *abc.Name -> *Class

	log commonlog.Logger
}

// NewDomain creates a child of parent (nil for a root domain).
func (rt *Runtime) NewDomain(parent *Domain) *Domain {
	d := &Domain{
		ID:      uuid.New(),
		parent:  parent,
		rt:      rt,
		sources: make(map[string]bool),
		log:     commonlog.GetLogger("abcvm.domain"),
	}
	d.log.Debugf("domain %s created", d.ID)
	return d
}

// Parent returns the parent domain.
func (d *Domain) Parent() *Domain { return d.parent }

// Runtime returns the owning runtime.
func (d *Domain) Runtime() *Runtime { return d.rt }

// SetCatalog installs the name catalog used for on-demand loading.
func (d *Domain) SetCatalog(c Catalog) { d.catalog = c }

// SetMemory installs the byte array backing the memory opcodes.
func (d *Domain) SetMemory(mem []byte) { d.memory = mem }

// Memory returns the domain memory, or the nearest ancestor's.
func (d *Domain) Memory() []byte {
	for x := d; x != nil; x = x.parent {
		if x.memory != nil {
			return x.memory
		}
	}
	return nil
}

// Modules returns the modules loaded into this domain.
func (d *Domain) Modules() []*abc.Module {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*abc.Module(nil), d.modules...)
}

// Scripts returns the scripts loaded into this domain in load order.
func (d *Domain) Scripts() []*Script {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Script(nil), d.scripts...)
}

// LoadModule parses data and registers its scripts. Nothing executes.
func (d *Domain) LoadModule(data []byte, source string) (*abc.Module, error) {
	m, err := abc.Open(data, d.rt.interner, abc.WithSource(source), abc.WithMinVersion(d.rt.opts.MinVersion))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", source, err)
	}
	d.mu.Lock()
	d.modules = append(d.modules, m)
	for _, si := range m.Scripts {
		d.scripts = append(d.scripts, &Script{Info: si, Module: m, Domain: d})
	}
	if source != "" {
		d.sources[source] = true
	}
	d.mu.Unlock()
	d.log.Infof("domain %s loaded %s: version %s, %d scripts, %d classes", d.ID, source, m.Version, len(m.Scripts), len(m.Classes))
	return m, nil
}

// ExecuteScript runs s's initializer. A script runs at most once; a second
// request fails with ErrScriptReentry whatever the first outcome was.
func (d *Domain) ExecuteScript(s *Script) (err error) {
	if !s.state.CompareAndSwap(int32(ScriptUnexecuted), int32(ScriptExecuting)) {
		return fmt.Errorf("%w: script %d of %s is %s", ErrScriptReentry, s.Info.Index, s.Module.Source, s.State())
	}
	defer s.state.Store(int32(ScriptExecuted))
	defer d.rt.recoverTo(&err)

	g, err := s.Global(d.rt)
	if err != nil {
		return err
	}
	init, err := d.rt.bindMethod(s.Module, s.Info.Init, s.scope, nil, fmt.Sprintf("script%d$init", s.Info.Index), "")
	if err != nil {
		return err
	}
	d.log.Debugf("domain %s executing script %d of %s", d.ID, s.Info.Index, s.Module.Source)
	d.rt.Invoke(init, g, nil)
	return nil
}

// FindDefiningScript returns the script whose traits define name. The
// parent domain is consulted first, then local scripts, then the catalog.
// With allowExecute an unexecuted script is executed before returning.
func (d *Domain) FindDefiningScript(name *abc.Name, allowExecute bool) (*Script, error) {
	if d.parent != nil {
		s, err := d.parent.FindDefiningScript(name, allowExecute)
		if s != nil || err != nil {
			return s, err
		}
	}
	for attempt := 0; attempt < 2; attempt++ {
		if s := d.localScript(name); s != nil {
			if allowExecute && s.State() == ScriptUnexecuted {
				if err := d.ExecuteScript(s); err != nil {
					return nil, err
				}
			}
			return s, nil
		}
		loaded, err := d.loadFromCatalog(name)
		if err != nil || !loaded {
			return nil, err
		}
	}
	return nil, nil
}

func (d *Domain) localScript(name *abc.Name) *Script {
	d.mu.Lock()
	scripts := d.scripts
	d.mu.Unlock()
	for _, s := range scripts {
		if s.Defines(name) {
			return s
		}
	}
	return nil
}

func (d *Domain) loadFromCatalog(name *abc.Name) (bool, error) {
	if d.catalog == nil || name.IsAnyName() {
		return false, nil
	}
	qualified := name.LocalName()
	if ns := name.Namespace(); ns != nil && ns.URI != "" {
		qualified = ns.URI + "::" + qualified
	} else if len(name.Namespaces()) > 1 {
		for _, ns := range name.Namespaces() {
			if ns.URI == "" {
				continue
			}
			if ok, err := d.loadQualified(ns.URI + "::" + name.LocalName()); ok || err != nil {
				return ok, err
			}
		}
	}
	return d.loadQualified(qualified)
}

func (d *Domain) loadQualified(qualified string) (bool, error) {
	data, source, ok, err := d.catalog.Lookup(qualified)
	if err != nil || !ok {
		return false, err
	}
	d.mu.Lock()
	seen := d.sources[source]
	d.mu.Unlock()
	if seen {
		return false, nil
	}
	d.log.Infof("domain %s catalog load of %s for %s", d.ID, source, qualified)
	if _, err := d.LoadModule(data, source); err != nil {
		return false, err
	}
	return true, nil
}

// findGlobal returns the global object defining name, executing its script
// if needed. Errors propagate as runtime throws. Builtins precede every domain.
func (d *Domain) findGlobal(rt *Runtime, name *abc.Name) Value {
	if rt.builtins.global.HasTrait(name) {
		return rt.builtins.global.self
	}
	s, err := d.FindDefiningScript(name, true)
	if err != nil {
		panic(err)
	}
	if s == nil {
		return nil
	}
	g, err := s.Global(rt)
	if err != nil {
		panic(err)
	}
	return g
}

// FindProperty returns the global object that defines name. strict turns
// a miss into a ReferenceError.
func (d *Domain) FindProperty(name *abc.Name, strict bool) (v Value, err error) {
	defer d.rt.recoverTo(&err)
	if g := d.findGlobal(d.rt, name); g != nil {
		return g, nil
	}
	if strict {
		return nil, NewError(CodeUndefinedVar, name)
	}
	return Undefined, nil
}

// GetProperty reads the global definition of name.
func (d *Domain) GetProperty(name *abc.Name) (v Value, err error) {
	defer d.rt.recoverTo(&err)
	g := d.findGlobal(d.rt, name)
	if g == nil {
		return nil, NewError(CodeUndefinedVar, name)
	}
	return d.rt.GetProperty(g, name), nil
}

// GetClass looks up a class by qualified name ("pkg.Name", "pkg::Name" or
// a bare public name).
func (d *Domain) GetClass(qualified string) (*Class, error) {
	pkg, local := splitQualified(qualified)
	name := d.rt.interner.QName(d.rt.interner.Namespace(abc.NamespaceKindPackage, pkg), local)
	v, err := d.GetProperty(name)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*Class)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchClass, qualified)
	}
	return c, nil
}

func splitQualified(q string) (pkg, local string) {
	if i := strings.LastIndex(q, "::"); i >= 0 {
		return q[:i], q[i+2:]
	}
	if i := strings.LastIndexByte(q, '.'); i >= 0 {
		return q[:i], q[i+1:]
	}
	return "", q
}

// RunMain executes the last script of m, the module's entry point.
// Earlier scripts run on demand when the entry point references them.
func (d *Domain) RunMain(m *abc.Module) error {
	d.mu.Lock()
	var mine []*Script
	for _, s := range d.scripts {
		if s.Module == m {
			mine = append(mine, s)
		}
	}
	d.mu.Unlock()
	if len(mine) == 0 {
		return fmt.Errorf("vm: module %s has no scripts", m.Source)
	}
	entry := mine[len(mine)-1]
	if entry.State() != ScriptUnexecuted {
		return nil
	}
	return d.ExecuteScript(entry)
}
