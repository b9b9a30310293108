package abc

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Version is the leading format version word of a module.
type Version struct {
	Major uint16
	Minor uint16
}

// MinVersion is the oldest module format Open accepts by default.
var MinVersion = Version{Major: 46, Minor: 16}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Option configures Open.
type Option func(*Module)

// WithMinVersion overrides the minimum accepted format version.
func WithMinVersion(v Version) Option {
	return func(m *Module) { m.minVersion = v }
}

// WithSource labels the module for diagnostics (usually a file name).
func WithSource(source string) Option {
	return func(m *Module) { m.Source = source }
}

// table records the byte offset of every entry found by the skip pass and
// holds one memo slot per entry. Slots are filled at most once.
type table[T any] struct {
	offsets []int
	slots   []atomic.Pointer[T]
}

func (t *table[T]) init(n int) {
	t.offsets = make([]int, n)
	t.slots = make([]atomic.Pointer[T], n)
}

func (t *table[T]) len() int { return len(t.offsets) }

// Module is a loaded binary module. Constant and signature tables are
// decoded on first access; instance, class and script descriptors are
// decoded eagerly because they only hold indices.
type Module struct {
	Source  string
	Version Version

	data       []byte
	interner   *Interner
	minVersion Version

	ints       table[int32]
	uints      table[uint32]
	doubles    table[float64]
	strings    table[string]
	namespaces table[Namespace]
	nsSets     table[NamespaceSet]
	names      table[Name]
	methods    table[MethodInfo]
	metadata   table[Metadata]
	bodies     table[MethodBody]

	// method index -> index into bodies
	bodyIndex map[int]int

	Instances []*InstanceInfo
	Classes   []*ClassInfo
	Scripts   []*ScriptInfo

	anyName  *Name
	emptySet *NamespaceSet

	decodes atomic.Int64
}

// Open validates the version word and runs the skip pass over every table.
// No constant is decoded until it is first requested.
func Open(data []byte, in *Interner, opts ...Option) (*Module, error) {
	m := &Module{
		data:       data,
		interner:   in,
		minVersion: MinVersion,
		bodyIndex:  make(map[int]int),
		anyName:    AnyName(),
		emptySet:   &NamespaceSet{},
	}
	for _, opt := range opts {
		opt(m)
	}

	c := NewCursor(data)
	minor, err := c.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("abc: reading version: %w", err)
	}
	major, err := c.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("abc: reading version: %w", err)
	}
	m.Version = Version{Major: major, Minor: minor}
	if m.Version.Less(m.minVersion) {
		return nil, fmt.Errorf("%w: %s is older than %s", ErrVersionTooOld, m.Version, m.minVersion)
	}

	steps := []struct {
		what string
		fn   func(*Cursor) error
	}{
		{"int", func(c *Cursor) error { return skipPool(c, &m.ints, (*Cursor).SkipU32) }},
		{"uint", func(c *Cursor) error { return skipPool(c, &m.uints, (*Cursor).SkipU32) }},
		{"double", func(c *Cursor) error { return skipPool(c, &m.doubles, func(c *Cursor) error { return c.Skip(8) }) }},
		{"string", func(c *Cursor) error { return skipPool(c, &m.strings, (*Cursor).SkipString) }},
		{"namespace", func(c *Cursor) error { return skipPool(c, &m.namespaces, skipNamespace) }},
		{"namespace set", func(c *Cursor) error { return skipPool(c, &m.nsSets, skipNamespaceSet) }},
		{"multiname", func(c *Cursor) error { return skipPool(c, &m.names, skipName) }},
		{"method", func(c *Cursor) error { return skipTable(c, &m.methods, skipMethod) }},
		{"metadata", func(c *Cursor) error { return skipTable(c, &m.metadata, skipMetadata) }},
		{"class", m.parseClasses},
		{"script", m.parseScripts},
		{"method body", m.skipBodies},
	}
	for _, step := range steps {
		if err := step.fn(c); err != nil {
			return nil, fmt.Errorf("abc: %s table: %w", step.what, err)
		}
	}
	return m, nil
}

// skipPool records offsets for a constant pool. The encoded count includes
// the implicit entry 0, so a count of 0 or 1 both yield a one-entry table.
func skipPool[T any](c *Cursor, t *table[T], skip func(*Cursor) error) error {
	count, err := c.ReadIndex()
	if err != nil {
		return err
	}
	t.init(max(count, 1))
	t.offsets[0] = -1
	for i := 1; i < count; i++ {
		t.offsets[i] = c.Pos()
		if err := skip(c); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// skipTable records offsets for a table without a reserved entry 0.
func skipTable[T any](c *Cursor, t *table[T], skip func(*Cursor) error) error {
	count, err := c.ReadIndex()
	if err != nil {
		return err
	}
	t.init(count)
	for i := 0; i < count; i++ {
		t.offsets[i] = c.Pos()
		if err := skip(c); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

func skipNamespace(c *Cursor) error {
	if err := c.Skip(1); err != nil {
		return err
	}
	return c.SkipU32()
}

func skipNamespaceSet(c *Cursor) error {
	n, err := c.ReadIndex()
	if err != nil {
		return err
	}
	return c.SkipU32s(n)
}

func skipName(c *Cursor) error {
	kind, err := c.ReadU8()
	if err != nil {
		return err
	}
	switch NameKind(kind) {
	case KindQName, KindQNameA, KindMultiname, KindMultinameA:
		return c.SkipU32s(2)
	case KindRTQName, KindRTQNameA, KindMultinameL, KindMultinameLA:
		return c.SkipU32()
	case KindRTQNameL, KindRTQNameLA:
		return nil
	case KindTypeName:
		if err := c.SkipU32(); err != nil {
			return err
		}
		n, err := c.ReadIndex()
		if err != nil {
			return err
		}
		return c.SkipU32s(n)
	}
	return fmt.Errorf("%w: 0x%02x", ErrBadNameKind, kind)
}

// load returns entry i of t, decoding and memoizing it on first use.
// Concurrent first accesses may both decode; the first stored value wins.
func load[T any](m *Module, t *table[T], what string, i int, sentinel *T, decode func(*Cursor) (*T, error)) (*T, error) {
	if i < 0 || i >= t.len() {
		return nil, fmt.Errorf("%w: %s %d (table has %d)", ErrIndexOutOfRange, what, i, t.len())
	}
	if i == 0 && sentinel != nil {
		return sentinel, nil
	}
	if v := t.slots[i].Load(); v != nil {
		return v, nil
	}
	c := NewCursor(m.data)
	if err := c.Seek(t.offsets[i]); err != nil {
		return nil, err
	}
	v, err := decode(c)
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", what, i, err)
	}
	m.decodes.Add(1)
	if t.slots[i].CompareAndSwap(nil, v) {
		return v, nil
	}
	return t.slots[i].Load(), nil
}

var (
	zeroInt    int32
	zeroUint   uint32
	nanDouble  = math.NaN()
	emptyValue = ""
)

// Interner returns the interner names of this module are allocated from.
func (m *Module) Interner() *Interner { return m.interner }

// Data returns the raw module bytes.
func (m *Module) Data() []byte { return m.data }

// StringCount returns the length of the string table, sentinel included.
func (m *Module) StringCount() int { return m.strings.len() }

// NameCount returns the length of the multiname table, sentinel included.
func (m *Module) NameCount() int { return m.names.len() }

// MethodCount returns the number of method signatures.
func (m *Module) MethodCount() int { return m.methods.len() }

// MetadataCount returns the number of metadata entries.
func (m *Module) MetadataCount() int { return m.metadata.len() }

// Int returns entry i of the signed integer pool.
func (m *Module) Int(i int) (int32, error) {
	v, err := load(m, &m.ints, "int", i, &zeroInt, func(c *Cursor) (*int32, error) {
		v, err := c.ReadS32()
		return &v, err
	})
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// Uint returns entry i of the unsigned integer pool.
func (m *Module) Uint(i int) (uint32, error) {
	v, err := load(m, &m.uints, "uint", i, &zeroUint, func(c *Cursor) (*uint32, error) {
		v, err := c.ReadU32()
		return &v, err
	})
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// Double returns entry i of the double pool. Entry 0 is NaN.
func (m *Module) Double(i int) (float64, error) {
	v, err := load(m, &m.doubles, "double", i, &nanDouble, func(c *Cursor) (*float64, error) {
		v, err := c.ReadD64()
		return &v, err
	})
	if err != nil {
		return 0, err
	}
	return *v, nil
}

// String returns entry i of the string pool. Entry 0 is the empty string.
func (m *Module) String(i int) (string, error) {
	v, err := load(m, &m.strings, "string", i, &emptyValue, func(c *Cursor) (*string, error) {
		v, err := c.ReadString()
		return &v, err
	})
	if err != nil {
		return "", err
	}
	return *v, nil
}

// Namespace returns entry i of the namespace pool. Entry 0 is the public
// namespace of the module's interner.
func (m *Module) Namespace(i int) (*Namespace, error) {
	return load(m, &m.namespaces, "namespace", i, m.interner.Public(), m.decodeNamespace)
}

func (m *Module) decodeNamespace(c *Cursor) (*Namespace, error) {
	kind, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	if !NamespaceKind(kind).Valid() {
		return nil, fmt.Errorf("%w: namespace kind 0x%02x", ErrMalformed, kind)
	}
	uriIndex, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	uri, err := m.String(uriIndex)
	if err != nil {
		return nil, err
	}
	return m.interner.Namespace(NamespaceKind(kind), uri), nil
}

// NamespaceSet returns entry i of the namespace set pool. Entry 0 is empty.
func (m *Module) NamespaceSet(i int) (*NamespaceSet, error) {
	return load(m, &m.nsSets, "namespace set", i, m.emptySet, m.decodeNamespaceSet)
}

func (m *Module) decodeNamespaceSet(c *Cursor) (*NamespaceSet, error) {
	n, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	list := make([]*Namespace, 0, n)
	for j := 0; j < n; j++ {
		idx, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		ns, err := m.Namespace(idx)
		if err != nil {
			return nil, err
		}
		list = append(list, ns)
	}
	return NewNamespaceSet(list...), nil
}

// Name returns entry i of the multiname pool. Entry 0 is the any-name
// wildcard, which also denotes the "*" type.
func (m *Module) Name(i int) (*Name, error) {
	return load(m, &m.names, "multiname", i, m.anyName, m.decodeName)
}

func (m *Module) decodeName(c *Cursor) (*Name, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	kind := NameKind(tag)
	n := &Name{Kind: kind}

	switch kind {
	case KindQName, KindQNameA:
		nsIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		localIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		if err := m.setLocal(n, localIndex); err != nil {
			return nil, err
		}
		if nsIndex == 0 {
			n.anyNamespace = true
			return m.interner.fixed(n), nil
		}
		ns, err := m.Namespace(nsIndex)
		if err != nil {
			return nil, err
		}
		if kind == KindQName && !n.anyName {
			return m.interner.QName(ns, n.local), nil
		}
		n.namespaces = []*Namespace{ns}

	case KindRTQName, KindRTQNameA:
		localIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		if err := m.setLocal(n, localIndex); err != nil {
			return nil, err
		}

	case KindRTQNameL, KindRTQNameLA:

	case KindMultiname, KindMultinameA:
		localIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		setIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		if err := m.setLocal(n, localIndex); err != nil {
			return nil, err
		}
		set, err := m.NamespaceSet(setIndex)
		if err != nil {
			return nil, err
		}
		n.namespaces = set.Namespaces

	case KindMultinameL, KindMultinameLA:
		setIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		set, err := m.NamespaceSet(setIndex)
		if err != nil {
			return nil, err
		}
		n.namespaces = set.Namespaces

	case KindTypeName:
		baseIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		count, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		if count != 1 {
			return nil, fmt.Errorf("%w: got %d", ErrTypeNameArity, count)
		}
		paramIndex, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		base, err := m.Name(baseIndex)
		if err != nil {
			return nil, err
		}
		param, err := m.Name(paramIndex)
		if err != nil {
			return nil, err
		}
		n.base = base
		n.typeParam = param
		n.namespaces = base.namespaces
		n.local = base.local

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadNameKind, tag)
	}
	return m.interner.fixed(n), nil
}

func (m *Module) setLocal(n *Name, index int) error {
	if index == 0 {
		n.anyName = true
		return nil
	}
	s, err := m.String(index)
	if err != nil {
		return err
	}
	n.local = s
	return nil
}

// Method returns method signature i. Unlike the constant pools, entry 0 is
// a real method.
func (m *Module) Method(i int) (*MethodInfo, error) {
	return load(m, &m.methods, "method", i, nil, func(c *Cursor) (*MethodInfo, error) {
		return m.decodeMethod(c, i)
	})
}

// Metadata returns metadata entry i. The table is zero-based, with no
// sentinel at index 0.
func (m *Module) Metadata(i int) (*Metadata, error) {
	return load(m, &m.metadata, "metadata", i, nil, m.decodeMetadata)
}

// Body returns the body of method methodIndex, or nil if the method has
// none (native, abstract and interface methods).
func (m *Module) Body(methodIndex int) (*MethodBody, error) {
	if methodIndex < 0 || methodIndex >= m.methods.len() {
		return nil, fmt.Errorf("%w: method %d (table has %d)", ErrIndexOutOfRange, methodIndex, m.methods.len())
	}
	bi, ok := m.bodyIndex[methodIndex]
	if !ok {
		return nil, nil
	}
	return load(m, &m.bodies, "method body", bi, nil, m.decodeBody)
}

// HasBody reports whether methodIndex has a body without decoding it.
func (m *Module) HasBody(methodIndex int) bool {
	_, ok := m.bodyIndex[methodIndex]
	return ok
}

// ---------------------------------------------------------------------------
// Constant values
// ---------------------------------------------------------------------------

// ValueKind tags a constant reference in optional parameters and slot
// defaults. Namespace constants use the NamespaceKind tags.
type ValueKind uint8

const (
	ValueUndefined ValueKind = 0x00
	ValueUtf8      ValueKind = 0x01
	ValueInt       ValueKind = 0x03
	ValueUint      ValueKind = 0x04
	ValueDouble    ValueKind = 0x06
	ValueFalse     ValueKind = 0x0A
	ValueTrue      ValueKind = 0x0B
	ValueNull      ValueKind = 0x0C
)

// Constant is a decoded default value. Exactly one payload field is
// meaningful, selected by Kind.
type Constant struct {
	Kind      ValueKind
	Int       int32
	Uint      uint32
	Double    float64
	String    string
	Namespace *Namespace
}

// Constant decodes a (kind, index) constant reference.
func (m *Module) Constant(kind ValueKind, index int) (Constant, error) {
	out := Constant{Kind: kind}
	var err error
	switch kind {
	case ValueUndefined, ValueNull, ValueTrue, ValueFalse:
	case ValueUtf8:
		out.String, err = m.String(index)
	case ValueInt:
		out.Int, err = m.Int(index)
	case ValueUint:
		out.Uint, err = m.Uint(index)
	case ValueDouble:
		out.Double, err = m.Double(index)
	default:
		if !NamespaceKind(kind).Valid() {
			return out, fmt.Errorf("%w: constant kind 0x%02x", ErrMalformed, kind)
		}
		out.Namespace, err = m.Namespace(index)
	}
	return out, err
}
