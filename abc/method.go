package abc

import "fmt"

// MethodFlags are the method signature flag bits.
type MethodFlags uint8

const (
	NeedArguments  MethodFlags = 0x01
	NeedActivation MethodFlags = 0x02
	NeedRest       MethodFlags = 0x04
	HasOptional    MethodFlags = 0x08
	Native         MethodFlags = 0x20
	SetDXNS        MethodFlags = 0x40
	HasParamNames  MethodFlags = 0x80
)

// ValueRef is an undecoded (index, kind) constant reference.
type ValueRef struct {
	Index int
	Kind  ValueKind
}

// MethodInfo is a decoded method signature.
type MethodInfo struct {
	Index      int
	ParamTypes []int // multiname indices, 0 means "*"
	ReturnType int
	NameIndex  int
	Flags      MethodFlags
	Optional   []ValueRef
	ParamNames []int

	module *Module
}

func skipMethod(c *Cursor) error {
	params, err := c.ReadIndex()
	if err != nil {
		return err
	}
	// return type, param types, name
	if err := c.SkipU32s(params + 2); err != nil {
		return err
	}
	flags, err := c.ReadU8()
	if err != nil {
		return err
	}
	if MethodFlags(flags)&HasOptional != 0 {
		n, err := c.ReadIndex()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := c.SkipU32(); err != nil {
				return err
			}
			if err := c.Skip(1); err != nil {
				return err
			}
		}
	}
	if MethodFlags(flags)&HasParamNames != 0 {
		return c.SkipU32s(params)
	}
	return nil
}

func (m *Module) decodeMethod(c *Cursor, index int) (*MethodInfo, error) {
	mi := &MethodInfo{Index: index, module: m}
	params, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	if mi.ReturnType, err = c.ReadIndex(); err != nil {
		return nil, err
	}
	mi.ParamTypes = make([]int, params)
	for i := range mi.ParamTypes {
		if mi.ParamTypes[i], err = c.ReadIndex(); err != nil {
			return nil, err
		}
	}
	if mi.NameIndex, err = c.ReadIndex(); err != nil {
		return nil, err
	}
	flags, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	mi.Flags = MethodFlags(flags)
	if mi.Flags&HasOptional != 0 {
		n, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		if n > params {
			return nil, fmt.Errorf("%w: %d optional parameters of %d", ErrMalformed, n, params)
		}
		mi.Optional = make([]ValueRef, n)
		for i := range mi.Optional {
			if mi.Optional[i].Index, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			kind, err := c.ReadU8()
			if err != nil {
				return nil, err
			}
			mi.Optional[i].Kind = ValueKind(kind)
		}
	}
	if mi.Flags&HasParamNames != 0 {
		mi.ParamNames = make([]int, params)
		for i := range mi.ParamNames {
			if mi.ParamNames[i], err = c.ReadIndex(); err != nil {
				return nil, err
			}
		}
	}
	return mi, nil
}

// Module returns the module the signature belongs to.
func (mi *MethodInfo) Module() *Module { return mi.module }

// ParamCount returns the number of declared parameters.
func (mi *MethodInfo) ParamCount() int { return len(mi.ParamTypes) }

// RequiredCount returns the number of parameters without defaults.
func (mi *MethodInfo) RequiredCount() int { return len(mi.ParamTypes) - len(mi.Optional) }

// Has reports whether all of the given flags are set.
func (mi *MethodInfo) Has(f MethodFlags) bool { return mi.Flags&f == f }

// DebugName returns the method's debug name, or "" if it has none.
func (mi *MethodInfo) DebugName() string {
	s, err := mi.module.String(mi.NameIndex)
	if err != nil {
		return ""
	}
	return s
}

// ParamType resolves the declared type of parameter i.
func (mi *MethodInfo) ParamType(i int) (*Name, error) {
	return mi.module.Name(mi.ParamTypes[i])
}

// OptionalValue decodes the default value of optional parameter i, counted
// from the first optional parameter.
func (mi *MethodInfo) OptionalValue(i int) (Constant, error) {
	ref := mi.Optional[i]
	return mi.module.Constant(ref.Kind, ref.Index)
}

// Body returns the method's body, or nil if it has none.
func (mi *MethodInfo) Body() (*MethodBody, error) {
	return mi.module.Body(mi.Index)
}

func (mi *MethodInfo) String() string {
	name := mi.DebugName()
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("method#%d(%s)", mi.Index, name)
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

// Metadata is a decoded annotation: a name plus key/value pairs. Keys may be
// empty for positional values.
type Metadata struct {
	Name   string
	Keys   []string
	Values []string
}

func skipMetadata(c *Cursor) error {
	if err := c.SkipU32(); err != nil {
		return err
	}
	n, err := c.ReadIndex()
	if err != nil {
		return err
	}
	return c.SkipU32s(2 * n)
}

func (m *Module) decodeMetadata(c *Cursor) (*Metadata, error) {
	nameIndex, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	md := &Metadata{}
	if md.Name, err = m.String(nameIndex); err != nil {
		return nil, err
	}
	n, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	md.Keys = make([]string, n)
	md.Values = make([]string, n)
	for _, dst := range [][]string{md.Keys, md.Values} {
		for i := range dst {
			idx, err := c.ReadIndex()
			if err != nil {
				return nil, err
			}
			if dst[i], err = m.String(idx); err != nil {
				return nil, err
			}
		}
	}
	return md, nil
}

// Get returns the value for key and whether it was present.
func (md *Metadata) Get(key string) (string, bool) {
	for i, k := range md.Keys {
		if k == key {
			return md.Values[i], true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

// ExceptionInfo is one entry of a body's exception table. From, To and
// Target are byte offsets into Code.
type ExceptionInfo struct {
	From, To, Target int
	TypeIndex        int
	VarNameIndex     int

	module *Module
	traits []*TraitInfo
}

// TypeName resolves the caught type; "*" catches everything.
func (e *ExceptionInfo) TypeName() (*Name, error) { return e.module.Name(e.TypeIndex) }

// VarName resolves the catch variable name.
func (e *ExceptionInfo) VarName() (*Name, error) { return e.module.Name(e.VarNameIndex) }

// Traits returns the single-slot trait list of the catch scope object.
func (e *ExceptionInfo) Traits() []*TraitInfo { return e.traits }

// Covers reports whether pos lies in the protected range.
func (e *ExceptionInfo) Covers(pos int) bool { return pos >= e.From && pos < e.To }

// MethodBody holds the code and frame sizes of one method.
type MethodBody struct {
	Method         int
	MaxStack       int
	LocalCount     int
	InitScopeDepth int
	MaxScopeDepth  int
	Code           []byte
	Exceptions     []*ExceptionInfo
	Traits         []*TraitInfo

	module *Module
}

// Module returns the owning module.
func (b *MethodBody) Module() *Module { return b.module }

// Info returns the signature this body implements.
func (b *MethodBody) Info() (*MethodInfo, error) { return b.module.Method(b.Method) }

func (m *Module) skipBodies(c *Cursor) error {
	count, err := c.ReadIndex()
	if err != nil {
		return err
	}
	m.bodies.init(count)
	for i := 0; i < count; i++ {
		m.bodies.offsets[i] = c.Pos()
		method, err := c.ReadIndex()
		if err != nil {
			return err
		}
		if method >= m.methods.len() {
			return fmt.Errorf("%w: body %d for method %d", ErrIndexOutOfRange, i, method)
		}
		if _, dup := m.bodyIndex[method]; dup {
			return fmt.Errorf("%w: second body for method %d", ErrMalformed, method)
		}
		m.bodyIndex[method] = i
		if err := c.SkipU32s(4); err != nil {
			return err
		}
		codeLen, err := c.ReadIndex()
		if err != nil {
			return err
		}
		if err := c.Skip(codeLen); err != nil {
			return err
		}
		excCount, err := c.ReadIndex()
		if err != nil {
			return err
		}
		if err := c.SkipU32s(5 * excCount); err != nil {
			return err
		}
		if err := skipTraits(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) decodeBody(c *Cursor) (*MethodBody, error) {
	b := &MethodBody{module: m}
	fields := []*int{&b.Method, &b.MaxStack, &b.LocalCount, &b.InitScopeDepth, &b.MaxScopeDepth}
	for _, f := range fields {
		v, err := c.ReadIndex()
		if err != nil {
			return nil, err
		}
		*f = v
	}
	codeLen, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	if b.Code, err = c.ReadBytes(codeLen); err != nil {
		return nil, err
	}
	n, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	b.Exceptions = make([]*ExceptionInfo, n)
	for i := range b.Exceptions {
		e := &ExceptionInfo{module: m}
		for _, f := range []*int{&e.From, &e.To, &e.Target, &e.TypeIndex, &e.VarNameIndex} {
			v, err := c.ReadIndex()
			if err != nil {
				return nil, err
			}
			*f = v
		}
		if e.From > e.To || e.To > codeLen || e.Target >= codeLen {
			return nil, fmt.Errorf("%w: exception range [%d,%d)->%d in %d bytes", ErrMalformed, e.From, e.To, e.Target, codeLen)
		}
		if e.VarNameIndex != 0 {
			t := &TraitInfo{module: m, NameIndex: e.VarNameIndex, Kind: TraitSlot, TypeIndex: e.TypeIndex}
			t.SetHolder(e)
			e.traits = []*TraitInfo{t}
		}
		b.Exceptions[i] = e
	}
	if b.Traits, err = m.parseTraits(c, b); err != nil {
		return nil, err
	}
	return b, nil
}
