package vm

import (
	"sync"

	"github.com/chazu/abcvm/abc"
)

// Scope is one frame of a scope chain. Normal frames resolve names only
// against the fixed traits of their object; with-frames use the full
// dynamic has-property test.
type Scope struct {
	parent *Scope
	object Value
	with   bool
	domain *Domain

	mu       sync.RWMutex
	cache    []Value // fixed name id -> resolved object
	children map[scopeKey]*Scope
}

type scopeKey struct {
	object Value
	with   bool
}

// NewScope creates a root frame for a script global owned by d.
func NewScope(d *Domain, global Value) *Scope {
	return &Scope{object: global, domain: d}
}

// Parent returns the enclosing frame, or nil for the global frame.
func (s *Scope) Parent() *Scope { return s.parent }

// Object returns the frame's value.
func (s *Scope) Object() Value { return s.object }

// IsWith reports whether the frame was pushed by pushwith.
func (s *Scope) IsWith() bool { return s.with }

// Domain returns the domain that owns the chain.
func (s *Scope) Domain() *Domain {
	if s == nil {
		return nil
	}
	return s.domain
}

// Global returns the outermost frame's value.
func (s *Scope) Global() Value {
	g := s
	for g.parent != nil {
		g = g.parent
	}
	return g.object
}

// Depth returns the number of frames in the chain.
func (s *Scope) Depth() int {
	n := 0
	for f := s; f != nil; f = f.parent {
		n++
	}
	return n
}

// FrameDepth returns how many frames out from s the frame holding v is,
// or -1 when v is not on the chain.
func (s *Scope) FrameDepth(v Value) int {
	n := 0
	for f := s; f != nil; f = f.parent {
		if f.object == v {
			return n
		}
		n++
	}
	return -1
}

// At returns the frame value i levels from the outermost frame (0 is the
// global frame), the addressing getscopeobject uses for captured chains.
func (s *Scope) At(i int) Value {
	frames := make([]*Scope, 0, 8)
	for f := s; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	return frames[len(frames)-1-i].object
}

// Extend returns the child frame for v, reusing one built earlier for the
// same (parent, v) pair.
func (s *Scope) Extend(v Value) *Scope { return s.extend(v, false) }

// ExtendWith is Extend for a with-frame.
func (s *Scope) ExtendWith(v Value) *Scope { return s.extend(v, true) }

func (s *Scope) extend(v Value, with bool) *Scope {
	k := scopeKey{v, with}
	s.mu.RLock()
	c, ok := s.children[k]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.children[k]; ok {
		return c
	}
	c = s.Push(v, with)
	if s.children == nil {
		s.children = make(map[scopeKey]*Scope)
	}
	s.children[k] = c
	return c
}

// Push creates a child frame without memoizing it. Frames for per-call
// values (activations, catch scopes) use Push so they can be collected.
func (s *Scope) Push(v Value, with bool) *Scope {
	return &Scope{parent: s, object: v, with: with, domain: s.domain}
}

func (s *Scope) cached(name *abc.Name) (Value, bool) {
	if !name.IsFixed() {
		return nil, false
	}
	id := name.ID()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < len(s.cache) && s.cache[id] != nil {
		return s.cache[id], true
	}
	return nil, false
}

func (s *Scope) remember(name *abc.Name, v Value) {
	if !name.IsFixed() {
		return
	}
	id := name.ID()
	s.mu.Lock()
	for len(s.cache) <= id {
		s.cache = append(s.cache, nil)
	}
	s.cache[id] = v
	s.mu.Unlock()
}

// FindScopeProperty returns the object on which name should be accessed.
// With scopeOnly the domain is not consulted. An unresolved name raises
// ReferenceError 1065 when strict, and resolves to the global object
// otherwise.
func (s *Scope) FindScopeProperty(rt *Runtime, name *abc.Name, strict, scopeOnly bool) Value {
	if v, ok := s.cached(name); ok {
		return v
	}
	stable := true
	for f := s; f != nil; f = f.parent {
		if f.with {
			stable = false
			if rt.HasProperty(f.object, name) {
				return f.object
			}
			continue
		}
		o, ok := f.object.(Object)
		if !ok {
			continue
		}
		if f.parent == nil {
			if name.IsAttribute() {
				rt.ThrowError(CodeUndefinedVar, name)
			}
			if o.HasTrait(name) {
				if stable {
					s.remember(name, f.object)
				}
				return f.object
			}
			if o.HasProperty(rt, name) {
				return f.object
			}
			continue
		}
		if o.HasTrait(name) {
			if stable {
				s.remember(name, f.object)
			}
			return f.object
		}
	}

	if !scopeOnly && s.domain != nil {
		if g := s.domain.findGlobal(rt, name); g != nil {
			if stable {
				s.remember(name, g)
			}
			return g
		}
	}
	if strict {
		rt.ThrowError(CodeUndefinedVar, name)
	}
	return s.Global()
}
