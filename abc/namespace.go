package abc

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// NamespaceKind is the 8-bit kind tag of a namespace constant.
type NamespaceKind uint8

const (
	NamespaceKindPrivate         NamespaceKind = 0x05
	NamespaceKindNamespace       NamespaceKind = 0x08
	NamespaceKindPackage         NamespaceKind = 0x16
	NamespaceKindPackageInternal NamespaceKind = 0x17
	NamespaceKindProtected       NamespaceKind = 0x18
	NamespaceKindExplicit        NamespaceKind = 0x19
	NamespaceKindStaticProtected NamespaceKind = 0x1A
)

// PublicKey is the mangled key of the canonical public namespace.
const PublicKey = "$"

var kindLetters = map[NamespaceKind]byte{
	NamespaceKindPrivate:         'v',
	NamespaceKindNamespace:       'n',
	NamespaceKindPackage:         'k',
	NamespaceKindPackageInternal: 'i',
	NamespaceKindProtected:       'p',
	NamespaceKindExplicit:        'x',
	NamespaceKindStaticProtected: 's',
}

// Valid reports whether k is a namespace kind the format defines.
func (k NamespaceKind) Valid() bool {
	_, ok := kindLetters[k]
	return ok
}

func (k NamespaceKind) String() string {
	switch k {
	case NamespaceKindPrivate:
		return "private"
	case NamespaceKindNamespace:
		return "namespace"
	case NamespaceKindPackage:
		return "public"
	case NamespaceKindPackageInternal:
		return "internal"
	case NamespaceKindProtected:
		return "protected"
	case NamespaceKindExplicit:
		return "explicit"
	case NamespaceKindStaticProtected:
		return "static protected"
	}
	return "ns(0x" + strconv.FormatUint(uint64(k), 16) + ")"
}

// Namespace qualifies a local name. Instances are interned: two namespaces
// with the same (kind, uri) obtained from one Interner are the same pointer,
// and all trait maps compare namespaces by identity.
type Namespace struct {
	Kind   NamespaceKind
	URI    string
	Prefix string
	key    string
}

// MangledKey returns the short key used to index trait maps.
func (ns *Namespace) MangledKey() string { return ns.key }

// IsPublic reports whether this is the unnamed public namespace, the only
// namespace dynamic properties live in.
func (ns *Namespace) IsPublic() bool {
	return ns.URI == "" && (ns.Kind == NamespaceKindPackage || ns.Kind == NamespaceKindNamespace)
}

// IsProtected reports whether the namespace is a protected or static protected one.
func (ns *Namespace) IsProtected() bool {
	return ns.Kind == NamespaceKindProtected || ns.Kind == NamespaceKindStaticProtected
}

func (ns *Namespace) String() string {
	if ns.IsPublic() {
		return "public"
	}
	return ns.Kind.String() + " " + strconv.Quote(ns.URI)
}

// NamespaceSet is an ordered, deduplicated namespace list used by names that
// are unqualified at compile time.
type NamespaceSet struct {
	Namespaces []*Namespace
}

// NewNamespaceSet builds a set, dropping duplicates while keeping order.
func NewNamespaceSet(namespaces ...*Namespace) *NamespaceSet {
	out := make([]*Namespace, 0, len(namespaces))
	for _, ns := range namespaces {
		dup := false
		for _, seen := range out {
			if seen == ns {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ns)
		}
	}
	return &NamespaceSet{Namespaces: out}
}

// Contains reports whether ns is a member of the set.
func (s *NamespaceSet) Contains(ns *Namespace) bool {
	for _, n := range s.Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Interner: per-domain namespace and name identity
// ---------------------------------------------------------------------------

type nsKey struct {
	kind NamespaceKind
	uri  string
}

type qnameKey struct {
	ns    *Namespace
	local string
}

type specKey struct {
	id    int
	local string
}

// Interner owns namespace identity and name-id allocation for one security
// domain. Tables are populate-only and never cleared.
type Interner struct {
	mu          sync.RWMutex
	namespaces  map[nsKey]*Namespace
	qnames      map[qnameKey]*Name
	specialized map[specKey]*Name
	public      *Namespace
	nsSeq       int
	nameSeq     atomic.Int64
}

// NewInterner creates an interner holding only the public namespace.
func NewInterner() *Interner {
	in := &Interner{
		namespaces:  make(map[nsKey]*Namespace),
		qnames:      make(map[qnameKey]*Name),
		specialized: make(map[specKey]*Name),
	}
	in.public = &Namespace{Kind: NamespaceKindPackage, key: PublicKey}
	in.namespaces[nsKey{NamespaceKindPackage, ""}] = in.public
	return in
}

// Public returns the canonical public namespace.
func (in *Interner) Public() *Namespace { return in.public }

// Namespace returns the interned namespace for (kind, uri).
func (in *Interner) Namespace(kind NamespaceKind, uri string) *Namespace {
	return in.NamespaceWithPrefix(kind, uri, "")
}

// NamespaceWithPrefix is like Namespace but records a prefix on first
// creation. The prefix is not part of the namespace's identity.
func (in *Interner) NamespaceWithPrefix(kind NamespaceKind, uri, prefix string) *Namespace {
	if kind == NamespaceKindPrivate {
		return in.NewPrivate(uri)
	}
	k := nsKey{kind, uri}

	in.mu.RLock()
	ns, ok := in.namespaces[k]
	in.mu.RUnlock()
	if ok {
		return ns
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if ns, ok := in.namespaces[k]; ok {
		return ns
	}
	ns = &Namespace{Kind: kind, URI: uri, Prefix: prefix, key: in.nextKeyLocked(kind)}
	in.namespaces[k] = ns
	return ns
}

// NewPrivate creates a private namespace. Private namespaces are unique per
// declaration and are never merged by uri.
func (in *Interner) NewPrivate(uri string) *Namespace {
	in.mu.Lock()
	defer in.mu.Unlock()
	return &Namespace{Kind: NamespaceKindPrivate, URI: uri, key: in.nextKeyLocked(NamespaceKindPrivate)}
}

func (in *Interner) nextKeyLocked(kind NamespaceKind) string {
	in.nsSeq++
	letter, ok := kindLetters[kind]
	if !ok {
		letter = 'u'
	}
	return string(letter) + strconv.FormatInt(int64(in.nsSeq), 36)
}

func (in *Interner) nextNameID() int {
	return int(in.nameSeq.Add(1) - 1)
}

// NameCount returns the number of fixed-name ids allocated so far. Caches
// indexed by name id never need more entries than this.
func (in *Interner) NameCount() int {
	return int(in.nameSeq.Load())
}

// QName returns the fixed qualified name (ns, local). Equal pairs return the
// same instance.
func (in *Interner) QName(ns *Namespace, local string) *Name {
	k := qnameKey{ns, local}

	in.mu.RLock()
	n, ok := in.qnames[k]
	in.mu.RUnlock()
	if ok {
		return n
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if n, ok := in.qnames[k]; ok {
		return n
	}
	n = &Name{Kind: KindQName, namespaces: []*Namespace{ns}, local: local, id: in.nextNameID()}
	in.qnames[k] = n
	return n
}

// PublicName returns the public qualified name for local.
func (in *Interner) PublicName(local string) *Name {
	return in.QName(in.public, local)
}

// Multiname creates a fixed namespace-set-qualified name.
func (in *Interner) Multiname(set *NamespaceSet, local string) *Name {
	return &Name{Kind: KindMultiname, namespaces: set.Namespaces, local: local, id: in.nextNameID()}
}

// fixed assigns an id to a name decoded from a module.
func (in *Interner) fixed(n *Name) *Name {
	n.id = in.nextNameID()
	return n
}

// Specialize returns a name that shares n's namespaces and type parameter
// but has a different local name. Results are memoized per (n, local).
func (in *Interner) Specialize(n *Name, local string) *Name {
	if n.id < 0 {
		panic("abc: Specialize on a runtime name")
	}
	k := specKey{n.id, local}

	in.mu.RLock()
	s, ok := in.specialized[k]
	in.mu.RUnlock()
	if ok {
		return s
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.specialized[k]; ok {
		return s
	}
	s = &Name{
		Kind:         n.Kind.withoutRuntimeName(),
		namespaces:   n.namespaces,
		local:        local,
		anyNamespace: n.anyNamespace,
		typeParam:    n.typeParam,
		base:         n.base,
		id:           in.nextNameID(),
	}
	in.specialized[k] = s
	return s
}
