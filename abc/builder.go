package abc

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ---------------------------------------------------------------------------
// ModuleBuilder: assembles binary modules
// ---------------------------------------------------------------------------

// TraitDef describes a trait to be written by a ModuleBuilder.
type TraitDef struct {
	Name     int
	Kind     TraitKind
	Attrs    TraitAttr
	SlotID   int
	DispID   int
	Type     int
	Value    ValueRef
	Class    int
	Method   int
	Metadata []int
}

// SlotDef returns a slot trait. A zero slot id means "assign next".
func SlotDef(name, slotID, typ int) TraitDef {
	return TraitDef{Name: name, Kind: TraitSlot, SlotID: slotID, Type: typ}
}

// ConstDef returns a const trait with a default value.
func ConstDef(name, slotID, typ int, value ValueRef) TraitDef {
	return TraitDef{Name: name, Kind: TraitConst, SlotID: slotID, Type: typ, Value: value}
}

// MethodDef returns a method trait.
func MethodDef(name, method int) TraitDef {
	return TraitDef{Name: name, Kind: TraitMethod, Method: method}
}

// GetterDef returns a getter trait.
func GetterDef(name, method int) TraitDef {
	return TraitDef{Name: name, Kind: TraitGetter, Method: method}
}

// SetterDef returns a setter trait.
func SetterDef(name, method int) TraitDef {
	return TraitDef{Name: name, Kind: TraitSetter, Method: method}
}

// ClassTraitDef returns a class trait.
func ClassTraitDef(name, slotID, class int) TraitDef {
	return TraitDef{Name: name, Kind: TraitClass, SlotID: slotID, Class: class}
}

// FunctionDef returns a function trait.
func FunctionDef(name, slotID, method int) TraitDef {
	return TraitDef{Name: name, Kind: TraitFunction, SlotID: slotID, Method: method}
}

// MethodSig describes a method signature.
type MethodSig struct {
	Params     []int
	Return     int
	Name       string
	Flags      MethodFlags
	Optional   []ValueRef
	ParamNames []string
}

// ExceptionDef describes one exception table entry.
type ExceptionDef struct {
	From, To, Target int
	Type             int
	VarName          int
}

// BodyDef describes a method body.
type BodyDef struct {
	Method     int
	MaxStack   int
	Locals     int
	InitScope  int
	MaxScope   int
	Code       []byte
	Exceptions []ExceptionDef
	Traits     []TraitDef
}

// ClassDef describes an instance/class descriptor pair.
type ClassDef struct {
	Name           int
	Super          int
	Flags          InstanceFlags
	ProtectedNS    int
	Interfaces     []int
	IInit          int
	InstanceTraits []TraitDef
	CInit          int
	ClassTraits    []TraitDef
}

// ModuleBuilder assembles a module in memory. Constant pool indices start
// at 1; 0 is left to the reader's sentinel.
type ModuleBuilder struct {
	Version Version

	ints       [][]byte
	uints      [][]byte
	doubles    [][]byte
	strings    [][]byte
	namespaces [][]byte
	nsSets     [][]byte
	names      [][]byte
	methods    [][]byte
	metadata   [][]byte
	instances  [][]byte
	classes    [][]byte
	scripts    [][]byte
	bodies     [][]byte

	stringIdx map[string]int
	nsIdx     map[nsKey]int
	qnameIdx  map[qnameRef]int
}

type qnameRef struct {
	ns    int
	local string
}

// NewModuleBuilder creates a builder targeting the minimum version.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{
		Version:   MinVersion,
		stringIdx: make(map[string]int),
		nsIdx:     make(map[nsKey]int),
		qnameIdx:  make(map[qnameRef]int),
	}
}

func appendU30(b []byte, v int) []byte {
	return protowire.AppendVarint(b, uint64(uint32(v)))
}

func appendU30s(b []byte, vs ...int) []byte {
	for _, v := range vs {
		b = appendU30(b, v)
	}
	return b
}

func poolAdd(pool *[][]byte, entry []byte) int {
	*pool = append(*pool, entry)
	return len(*pool)
}

// Int adds a signed integer constant.
func (b *ModuleBuilder) Int(v int32) int {
	return poolAdd(&b.ints, protowire.AppendVarint(nil, uint64(uint32(v))))
}

// Uint adds an unsigned integer constant.
func (b *ModuleBuilder) Uint(v uint32) int {
	return poolAdd(&b.uints, protowire.AppendVarint(nil, uint64(v)))
}

// Double adds a double constant.
func (b *ModuleBuilder) Double(v float64) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return poolAdd(&b.doubles, buf[:])
}

// String adds (or reuses) a string constant.
func (b *ModuleBuilder) String(s string) int {
	if i, ok := b.stringIdx[s]; ok {
		return i
	}
	entry := appendU30(nil, len(s))
	entry = append(entry, s...)
	i := poolAdd(&b.strings, entry)
	b.stringIdx[s] = i
	return i
}

// Namespace adds (or reuses) a namespace constant. Private namespaces are
// never shared.
func (b *ModuleBuilder) Namespace(kind NamespaceKind, uri string) int {
	k := nsKey{kind, uri}
	if i, ok := b.nsIdx[k]; ok && kind != NamespaceKindPrivate {
		return i
	}
	entry := appendU30([]byte{byte(kind)}, b.String(uri))
	i := poolAdd(&b.namespaces, entry)
	b.nsIdx[k] = i
	return i
}

// PublicNamespace returns the package namespace with the empty uri.
func (b *ModuleBuilder) PublicNamespace() int {
	return b.Namespace(NamespaceKindPackage, "")
}

// NamespaceSet adds a namespace set constant.
func (b *ModuleBuilder) NamespaceSet(namespaces ...int) int {
	entry := appendU30(nil, len(namespaces))
	entry = appendU30s(entry, namespaces...)
	return poolAdd(&b.nsSets, entry)
}

// QName adds (or reuses) a qualified name.
func (b *ModuleBuilder) QName(ns int, local string) int {
	k := qnameRef{ns, local}
	if i, ok := b.qnameIdx[k]; ok {
		return i
	}
	i := b.RawName(KindQName, ns, b.String(local))
	b.qnameIdx[k] = i
	return i
}

// PublicName adds a public qualified name.
func (b *ModuleBuilder) PublicName(local string) int {
	return b.QName(b.PublicNamespace(), local)
}

// PackageName adds a name qualified by a package namespace.
func (b *ModuleBuilder) PackageName(pkg, local string) int {
	return b.QName(b.Namespace(NamespaceKindPackage, pkg), local)
}

// AttributeName adds an attribute-qualified name.
func (b *ModuleBuilder) AttributeName(ns int, local string) int {
	return b.RawName(KindQNameA, ns, b.String(local))
}

// RTQName adds a name whose namespace is supplied at runtime.
func (b *ModuleBuilder) RTQName(local string) int {
	return b.RawName(KindRTQName, b.String(local))
}

// RTQNameL adds a name whose namespace and local name are supplied at runtime.
func (b *ModuleBuilder) RTQNameL() int {
	return b.RawName(KindRTQNameL)
}

// Multiname adds a namespace-set qualified name.
func (b *ModuleBuilder) Multiname(local string, set int) int {
	return b.RawName(KindMultiname, b.String(local), set)
}

// MultinameL adds a namespace-set qualified name with a runtime local name.
func (b *ModuleBuilder) MultinameL(set int) int {
	return b.RawName(KindMultinameL, set)
}

// TypeName adds a parametrized name. Readers reject any parameter count
// other than one; the builder writes what it is given.
func (b *ModuleBuilder) TypeName(base int, params ...int) int {
	args := append([]int{base, len(params)}, params...)
	return b.RawName(KindTypeName, args...)
}

// RawName writes a multiname with an arbitrary kind tag and operands.
func (b *ModuleBuilder) RawName(kind NameKind, operands ...int) int {
	return poolAdd(&b.names, appendU30s([]byte{byte(kind)}, operands...))
}

// Method adds a method signature and returns its index.
func (b *ModuleBuilder) Method(sig MethodSig) int {
	entry := appendU30(nil, len(sig.Params))
	entry = appendU30(entry, sig.Return)
	entry = appendU30s(entry, sig.Params...)
	nameIdx := 0
	if sig.Name != "" {
		nameIdx = b.String(sig.Name)
	}
	entry = appendU30(entry, nameIdx)
	flags := sig.Flags
	if len(sig.Optional) > 0 {
		flags |= HasOptional
	}
	if len(sig.ParamNames) > 0 {
		flags |= HasParamNames
	}
	entry = append(entry, byte(flags))
	if flags&HasOptional != 0 {
		entry = appendU30(entry, len(sig.Optional))
		for _, o := range sig.Optional {
			entry = appendU30(entry, o.Index)
			entry = append(entry, byte(o.Kind))
		}
	}
	if flags&HasParamNames != 0 {
		for _, n := range sig.ParamNames {
			entry = appendU30(entry, b.String(n))
		}
	}
	b.methods = append(b.methods, entry)
	return len(b.methods) - 1
}

// Metadata adds a metadata entry from alternating keys and values.
func (b *ModuleBuilder) Metadata(name string, kv ...string) int {
	entry := appendU30(nil, b.String(name))
	n := len(kv) / 2
	entry = appendU30(entry, n)
	for i := 0; i < n; i++ {
		entry = appendU30(entry, b.String(kv[2*i]))
	}
	for i := 0; i < n; i++ {
		entry = appendU30(entry, b.String(kv[2*i+1]))
	}
	b.metadata = append(b.metadata, entry)
	return len(b.metadata) - 1
}

func appendTraits(b []byte, traits []TraitDef) []byte {
	b = appendU30(b, len(traits))
	for _, t := range traits {
		attrs := t.Attrs
		if len(t.Metadata) > 0 {
			attrs |= AttrMetadata
		}
		b = appendU30(b, t.Name)
		b = append(b, byte(t.Kind)|byte(attrs)<<4)
		switch t.Kind {
		case TraitSlot, TraitConst:
			b = appendU30s(b, t.SlotID, t.Type, t.Value.Index)
			if t.Value.Index != 0 {
				b = append(b, byte(t.Value.Kind))
			}
		case TraitClass:
			b = appendU30s(b, t.SlotID, t.Class)
		case TraitFunction:
			b = appendU30s(b, t.SlotID, t.Method)
		default:
			b = appendU30s(b, t.DispID, t.Method)
		}
		if attrs&AttrMetadata != 0 {
			b = appendU30(b, len(t.Metadata))
			b = appendU30s(b, t.Metadata...)
		}
	}
	return b
}

// Class adds an instance/class descriptor pair and returns the class index.
func (b *ModuleBuilder) Class(def ClassDef) int {
	inst := appendU30s(nil, def.Name, def.Super)
	flags := def.Flags
	if def.ProtectedNS != 0 {
		flags |= ClassProtectedNs
	}
	inst = append(inst, byte(flags))
	if flags&ClassProtectedNs != 0 {
		inst = appendU30(inst, def.ProtectedNS)
	}
	inst = appendU30(inst, len(def.Interfaces))
	inst = appendU30s(inst, def.Interfaces...)
	inst = appendU30(inst, def.IInit)
	inst = appendTraits(inst, def.InstanceTraits)
	b.instances = append(b.instances, inst)

	cls := appendU30(nil, def.CInit)
	cls = appendTraits(cls, def.ClassTraits)
	b.classes = append(b.classes, cls)
	return len(b.classes) - 1
}

// Script adds a script and returns its index.
func (b *ModuleBuilder) Script(init int, traits ...TraitDef) int {
	entry := appendU30(nil, init)
	entry = appendTraits(entry, traits)
	b.scripts = append(b.scripts, entry)
	return len(b.scripts) - 1
}

// Body adds a method body.
func (b *ModuleBuilder) Body(def BodyDef) {
	entry := appendU30s(nil, def.Method, def.MaxStack, def.Locals, def.InitScope, def.MaxScope)
	entry = appendU30(entry, len(def.Code))
	entry = append(entry, def.Code...)
	entry = appendU30(entry, len(def.Exceptions))
	for _, e := range def.Exceptions {
		entry = appendU30s(entry, e.From, e.To, e.Target, e.Type, e.VarName)
	}
	entry = appendTraits(entry, def.Traits)
	b.bodies = append(b.bodies, entry)
}

// Function adds a signature together with its body and returns the method
// index. Locals defaults to the parameter count plus the receiver.
func (b *ModuleBuilder) Function(sig MethodSig, def BodyDef) int {
	mi := b.Method(sig)
	def.Method = mi
	if def.Locals == 0 {
		def.Locals = len(sig.Params) + 1
	}
	b.Body(def)
	return mi
}

func appendPool(out []byte, pool [][]byte) []byte {
	if len(pool) == 0 {
		return appendU30(out, 0)
	}
	out = appendU30(out, len(pool)+1)
	for _, e := range pool {
		out = append(out, e...)
	}
	return out
}

func appendTable(out []byte, table [][]byte) []byte {
	out = appendU30(out, len(table))
	for _, e := range table {
		out = append(out, e...)
	}
	return out
}

// Bytes serializes the module.
func (b *ModuleBuilder) Bytes() []byte {
	out := binary.LittleEndian.AppendUint16(nil, b.Version.Minor)
	out = binary.LittleEndian.AppendUint16(out, b.Version.Major)
	for _, pool := range [][][]byte{b.ints, b.uints, b.doubles, b.strings, b.namespaces, b.nsSets, b.names} {
		out = appendPool(out, pool)
	}
	out = appendTable(out, b.methods)
	out = appendTable(out, b.metadata)
	out = appendU30(out, len(b.instances))
	for _, e := range b.instances {
		out = append(out, e...)
	}
	for _, e := range b.classes {
		out = append(out, e...)
	}
	out = appendTable(out, b.scripts)
	out = appendTable(out, b.bodies)
	return out
}

// ---------------------------------------------------------------------------
// CodeBuilder: assembles method bodies
// ---------------------------------------------------------------------------

// Label is a branch target that may be marked after it is referenced.
type Label struct {
	resolved bool
	position int
	refs     []labelRef
}

type labelRef struct {
	at   int // offset of the s24 operand
	base int // offsets are relative to this position
}

// CodeBuilder assembles bytecode.
type CodeBuilder struct {
	bytes []byte
}

// NewCodeBuilder creates an empty code builder.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the assembled code.
func (b *CodeBuilder) Bytes() []byte { return b.bytes }

// Len returns the current length.
func (b *CodeBuilder) Len() int { return len(b.bytes) }

// Emit appends an opcode without operands.
func (b *CodeBuilder) Emit(ops ...Opcode) *CodeBuilder {
	for _, op := range ops {
		b.bytes = append(b.bytes, byte(op))
	}
	return b
}

// EmitU8 appends an opcode with a one-byte operand.
func (b *CodeBuilder) EmitU8(op Opcode, v uint8) *CodeBuilder {
	b.bytes = append(b.bytes, byte(op), v)
	return b
}

// EmitU30 appends an opcode with variable-length operands.
func (b *CodeBuilder) EmitU30(op Opcode, vs ...int) *CodeBuilder {
	b.bytes = appendU30s(append(b.bytes, byte(op)), vs...)
	return b
}

// PushByte appends pushbyte.
func (b *CodeBuilder) PushByte(v int8) *CodeBuilder {
	return b.EmitU8(OpPushByte, uint8(v))
}

// PushShort appends pushshort.
func (b *CodeBuilder) PushShort(v int16) *CodeBuilder {
	return b.EmitU30(OpPushShort, int(uint16(v)))
}

// GetLocal appends the shortest getlocal form.
func (b *CodeBuilder) GetLocal(i int) *CodeBuilder {
	if i < 4 {
		return b.Emit(OpGetLocal0 + Opcode(i))
	}
	return b.EmitU30(OpGetLocal, i)
}

// SetLocal appends the shortest setlocal form.
func (b *CodeBuilder) SetLocal(i int) *CodeBuilder {
	if i < 4 {
		return b.Emit(OpSetLocal0 + Opcode(i))
	}
	return b.EmitU30(OpSetLocal, i)
}

// NewLabel creates an unresolved label.
func (b *CodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]labelRef, 0, 2)}
}

// Mark resolves a label to the current position and patches references.
func (b *CodeBuilder) Mark(l *Label) *CodeBuilder {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.position = len(b.bytes)
	for _, ref := range l.refs {
		b.putS24(ref.at, l.position-ref.base)
	}
	return b
}

func (b *CodeBuilder) putS24(at, v int) {
	b.bytes[at] = byte(v)
	b.bytes[at+1] = byte(v >> 8)
	b.bytes[at+2] = byte(v >> 16)
}

func (b *CodeBuilder) target(l *Label, base int) {
	at := len(b.bytes)
	b.bytes = append(b.bytes, 0, 0, 0)
	if l.resolved {
		b.putS24(at, l.position-base)
		return
	}
	l.refs = append(l.refs, labelRef{at: at, base: base})
}

// Jump appends a branch instruction to l. Offsets are relative to the end
// of the instruction.
func (b *CodeBuilder) Jump(op Opcode, l *Label) *CodeBuilder {
	b.bytes = append(b.bytes, byte(op))
	b.target(l, len(b.bytes)+3)
	return b
}

// LookupSwitch appends a lookupswitch. Offsets are relative to the start
// of the instruction.
func (b *CodeBuilder) LookupSwitch(def *Label, cases ...*Label) *CodeBuilder {
	start := len(b.bytes)
	b.bytes = append(b.bytes, byte(OpLookupSwitch))
	b.target(def, start)
	b.bytes = appendU30(b.bytes, len(cases)-1)
	for _, l := range cases {
		b.target(l, start)
	}
	return b
}
