package vm

import (
	"sort"
	"sync"
)

// Natives maps native method paths to host implementations. Paths name the
// declaring definition:
//
//	"pkg::Class/member"         instance method
//	"pkg::Class/static/member"  class method
//	"pkg::member"               script-level function
//
// Accessors prefix the member with "get " or "set ". The public package
// has an empty pkg ("::trace").
type Natives struct {
	mu sync.RWMutex
	m  map[string]NativeFunc
}

// NewNatives creates an empty registry.
func NewNatives() *Natives {
	return &Natives{m: make(map[string]NativeFunc)}
}

// Register installs fn under path, replacing any earlier registration.
func (n *Natives) Register(path string, fn NativeFunc) {
	n.mu.Lock()
	n.m[path] = fn
	n.mu.Unlock()
}

// Lookup returns the implementation registered under path.
func (n *Natives) Lookup(path string) (NativeFunc, bool) {
	n.mu.RLock()
	fn, ok := n.m[path]
	n.mu.RUnlock()
	return fn, ok
}

// Paths returns the registered paths in sorted order.
func (n *Natives) Paths() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.m))
	for p := range n.m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// missingNative raises Error 1001 when called.
func missingNative(path string) NativeFunc {
	return func(rt *Runtime, _ Value, _ []Value) Value {
		rt.ThrowError(CodeNotImplemented, path)
		return nil
	}
}
