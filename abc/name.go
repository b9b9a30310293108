package abc

import (
	"fmt"
	"strings"
)

// NameKind is the 8-bit kind tag of a multiname constant.
type NameKind uint8

const (
	KindQName       NameKind = 0x07
	KindQNameA      NameKind = 0x0D
	KindRTQName     NameKind = 0x0F
	KindRTQNameA    NameKind = 0x10
	KindRTQNameL    NameKind = 0x11
	KindRTQNameLA   NameKind = 0x12
	KindMultiname   NameKind = 0x09
	KindMultinameA  NameKind = 0x0E
	KindMultinameL  NameKind = 0x1B
	KindMultinameLA NameKind = 0x1C
	KindTypeName    NameKind = 0x1D
)

// IsAttribute reports whether the kind is one of the attribute (A) variants.
func (k NameKind) IsAttribute() bool {
	switch k {
	case KindQNameA, KindRTQNameA, KindRTQNameLA, KindMultinameA, KindMultinameLA:
		return true
	}
	return false
}

func (k NameKind) needsRuntimeNamespace() bool {
	switch k {
	case KindRTQName, KindRTQNameA, KindRTQNameL, KindRTQNameLA:
		return true
	}
	return false
}

func (k NameKind) needsRuntimeName() bool {
	switch k {
	case KindRTQNameL, KindRTQNameLA, KindMultinameL, KindMultinameLA:
		return true
	}
	return false
}

func (k NameKind) withoutRuntimeName() NameKind {
	switch k {
	case KindRTQNameL:
		return KindRTQName
	case KindRTQNameLA:
		return KindRTQNameA
	case KindMultinameL:
		return KindMultiname
	case KindMultinameLA:
		return KindMultinameA
	}
	return k
}

func (k NameKind) resolved() NameKind {
	attr := k.IsAttribute()
	switch k {
	case KindRTQName, KindRTQNameA, KindRTQNameL, KindRTQNameLA:
		if attr {
			return KindQNameA
		}
		return KindQName
	case KindMultinameL, KindMultinameLA:
		if attr {
			return KindMultinameA
		}
		return KindMultiname
	}
	return k
}

// Name is a multiname. Names decoded from a module, interned qualified names
// and specialized names are fixed: they carry an id unique within their
// Interner and never change, so they are safe cache keys. Names assembled at
// execution time from operand-stack parts are runtime names with id -1 and
// must never be cached against.
type Name struct {
	Kind         NameKind
	namespaces   []*Namespace
	local        string
	anyName      bool
	anyNamespace bool
	typeParam    *Name
	base         *Name
	id           int
}

// AnyName returns the wildcard name matching every local name in every namespace.
func AnyName() *Name {
	return &Name{Kind: KindQName, anyName: true, anyNamespace: true, id: -1}
}

// NewRuntimeName builds an unqualified-at-compile-time name from execution
// time parts. It is never fixed.
func NewRuntimeName(namespaces []*Namespace, local string, attribute bool) *Name {
	kind := KindMultiname
	if len(namespaces) == 1 {
		kind = KindQName
	}
	if attribute {
		if kind == KindQName {
			kind = KindQNameA
		} else {
			kind = KindMultinameA
		}
	}
	return &Name{Kind: kind, namespaces: namespaces, local: local, id: -1}
}

// ID returns the id allocated to a module or interned name, or -1 for
// names assembled at runtime.
func (n *Name) ID() int { return n.id }

// IsFixed reports whether the name may be used as a cache key. Module
// constants that still need runtime parts carry an id but are not fixed.
func (n *Name) IsFixed() bool { return n.id >= 0 && !n.IsRuntime() }

// Namespaces returns the candidate namespaces (nil when supplied at runtime).
func (n *Name) Namespaces() []*Namespace { return n.namespaces }

// Namespace returns the single namespace of a qualified name, or nil.
func (n *Name) Namespace() *Namespace {
	if len(n.namespaces) != 1 {
		return nil
	}
	return n.namespaces[0]
}

// LocalName returns the local part ("*" for the any-name wildcard).
func (n *Name) LocalName() string {
	if n.anyName {
		return "*"
	}
	return n.local
}

// IsAnyName reports whether the local part is the wildcard.
func (n *Name) IsAnyName() bool { return n.anyName }

// IsAnyNamespace reports whether the namespace part is the wildcard.
func (n *Name) IsAnyNamespace() bool { return n.anyNamespace }

// IsAttribute reports whether the name refers to an attribute.
func (n *Name) IsAttribute() bool { return n.Kind.IsAttribute() }

// NeedsRuntimeNamespace reports whether the namespace comes from the operand stack.
func (n *Name) NeedsRuntimeNamespace() bool { return n.Kind.needsRuntimeNamespace() }

// NeedsRuntimeName reports whether the local name comes from the operand stack.
func (n *Name) NeedsRuntimeName() bool { return n.Kind.needsRuntimeName() }

// IsRuntime reports whether any part is supplied at execution time.
func (n *Name) IsRuntime() bool {
	return n.NeedsRuntimeNamespace() || n.NeedsRuntimeName()
}

// IsQName reports whether the name has exactly one namespace and no
// runtime or wildcard parts.
func (n *Name) IsQName() bool {
	return !n.IsRuntime() && !n.anyNamespace && !n.anyName && len(n.namespaces) == 1
}

// IsPublic reports whether one of the candidate namespaces is public.
func (n *Name) IsPublic() bool {
	if n.anyNamespace {
		return true
	}
	for _, ns := range n.namespaces {
		if ns.IsPublic() {
			return true
		}
	}
	return false
}

// TypeParameter returns the single parameter of a parametrized name.
func (n *Name) TypeParameter() *Name { return n.typeParam }

// Base returns the generic base name of a parametrized name.
func (n *Name) Base() *Name { return n.base }

// IsParametrized reports whether the name is a type application.
func (n *Name) IsParametrized() bool { return n.Kind == KindTypeName }

// WithRuntimeParts completes a runtime name with the values popped from the
// operand stack. ns is used only if the namespace is runtime supplied, local
// only if the local name is. The result is a runtime name.
func (n *Name) WithRuntimeParts(ns *Namespace, local string) *Name {
	out := &Name{
		Kind:         n.Kind.resolved(),
		namespaces:   n.namespaces,
		local:        n.local,
		anyName:      n.anyName,
		anyNamespace: n.anyNamespace,
		typeParam:    n.typeParam,
		base:         n.base,
		id:           -1,
	}
	if n.NeedsRuntimeNamespace() {
		out.namespaces = []*Namespace{ns}
		out.anyNamespace = false
	}
	if n.NeedsRuntimeName() {
		out.local = local
		out.anyName = false
	}
	return out
}

// MangledKey returns the trait-map key of a fixed qualified name. It is a
// pure function of the namespace key and the local name.
func MangledKey(n *Name) string {
	if n.IsRuntime() || n.anyNamespace || len(n.namespaces) != 1 {
		panic(fmt.Sprintf("abc: MangledKey of non-qualified name %s", n))
	}
	return n.namespaces[0].key + "$" + n.LocalName()
}

// Matches reports whether candidate is selected by pattern. The local names
// must be equal unless pattern's is the wildcard, and one of candidate's
// namespaces must be pattern's single namespace unless pattern's namespace
// is the wildcard.
func Matches(pattern, candidate *Name) bool {
	if !pattern.anyName && pattern.local != candidate.local {
		return false
	}
	if pattern.anyNamespace {
		return true
	}
	if len(pattern.namespaces) == 0 {
		return false
	}
	want := pattern.namespaces[0]
	for _, ns := range candidate.namespaces {
		if ns == want {
			return true
		}
	}
	return false
}

func (n *Name) String() string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	if n.IsAttribute() {
		sb.WriteByte('@')
	}
	switch {
	case n.anyNamespace:
		sb.WriteString("*::")
	case n.NeedsRuntimeNamespace():
		sb.WriteString("[ns]::")
	case len(n.namespaces) == 1:
		if !n.namespaces[0].IsPublic() {
			sb.WriteString(n.namespaces[0].URI)
			sb.WriteString("::")
		}
	case len(n.namespaces) > 1:
		sb.WriteString("{")
		for i, ns := range n.namespaces {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(ns.String())
		}
		sb.WriteString("}::")
	}
	if n.NeedsRuntimeName() {
		sb.WriteString("[name]")
	} else {
		sb.WriteString(n.LocalName())
	}
	if n.typeParam != nil {
		sb.WriteString(".<")
		sb.WriteString(n.typeParam.String())
		sb.WriteString(">")
	}
	return sb.String()
}
