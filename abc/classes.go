package abc

import "fmt"

// InstanceFlags are the instance descriptor flag bits.
type InstanceFlags uint8

const (
	ClassSealed      InstanceFlags = 0x01
	ClassFinal       InstanceFlags = 0x02
	ClassInterface   InstanceFlags = 0x04
	ClassProtectedNs InstanceFlags = 0x08
)

// InstanceInfo describes the instance side of a class.
type InstanceInfo struct {
	Index          int
	NameIndex      int
	SuperNameIndex int // 0 for no superclass
	Flags          InstanceFlags
	ProtectedNS    int
	Interfaces     []int
	Init           int
	Traits         []*TraitInfo

	// Class is attached after the class table has been read.
	Class *ClassInfo

	module *Module
}

// Module returns the declaring module.
func (ii *InstanceInfo) Module() *Module { return ii.module }

// Name resolves the class name.
func (ii *InstanceInfo) Name() (*Name, error) { return ii.module.Name(ii.NameIndex) }

// SuperName resolves the superclass name, or nil when there is none.
func (ii *InstanceInfo) SuperName() (*Name, error) {
	if ii.SuperNameIndex == 0 {
		return nil, nil
	}
	return ii.module.Name(ii.SuperNameIndex)
}

// ProtectedNamespace resolves the class's protected namespace, or nil.
func (ii *InstanceInfo) ProtectedNamespace() (*Namespace, error) {
	if ii.Flags&ClassProtectedNs == 0 {
		return nil, nil
	}
	return ii.module.Namespace(ii.ProtectedNS)
}

// IsSealed reports whether instances reject dynamic properties.
func (ii *InstanceInfo) IsSealed() bool { return ii.Flags&ClassSealed != 0 }

// IsFinal reports whether the class may not be subclassed.
func (ii *InstanceInfo) IsFinal() bool { return ii.Flags&ClassFinal != 0 }

// IsInterface reports whether the descriptor is an interface.
func (ii *InstanceInfo) IsInterface() bool { return ii.Flags&ClassInterface != 0 }

// ClassInfo describes the static side of a class.
type ClassInfo struct {
	Index    int
	Init     int
	Traits   []*TraitInfo
	Instance *InstanceInfo

	module *Module
}

// Module returns the declaring module.
func (ci *ClassInfo) Module() *Module { return ci.module }

// Name resolves the class name through its instance descriptor.
func (ci *ClassInfo) Name() (*Name, error) { return ci.Instance.Name() }

// ScriptInfo is a module-level initializer and the globals it defines.
type ScriptInfo struct {
	Index  int
	Init   int
	Traits []*TraitInfo

	module *Module
}

// Module returns the declaring module.
func (si *ScriptInfo) Module() *Module { return si.module }

func (m *Module) parseClasses(c *Cursor) error {
	count, err := c.ReadIndex()
	if err != nil {
		return err
	}
	m.Instances = make([]*InstanceInfo, count)
	for i := range m.Instances {
		ii, err := m.parseInstance(c, i)
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		m.Instances[i] = ii
	}
	m.Classes = make([]*ClassInfo, count)
	for i := range m.Classes {
		ci := &ClassInfo{Index: i, module: m}
		if ci.Init, err = m.methodIndex(c); err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
		if ci.Traits, err = m.parseTraits(c, ci); err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
		m.Classes[i] = ci
	}
	for i, ii := range m.Instances {
		ii.Class = m.Classes[i]
		m.Classes[i].Instance = ii
	}
	for _, traits := range m.classTraitLists() {
		for _, t := range traits {
			if t.Kind == TraitClass && t.Class >= count {
				return fmt.Errorf("%w: class trait refers to class %d of %d", ErrIndexOutOfRange, t.Class, count)
			}
		}
	}
	return nil
}

func (m *Module) classTraitLists() [][]*TraitInfo {
	out := make([][]*TraitInfo, 0, 2*len(m.Instances))
	for i := range m.Instances {
		out = append(out, m.Instances[i].Traits, m.Classes[i].Traits)
	}
	return out
}

func (m *Module) parseInstance(c *Cursor, index int) (*InstanceInfo, error) {
	ii := &InstanceInfo{Index: index, module: m}
	var err error
	if ii.NameIndex, err = c.ReadIndex(); err != nil {
		return nil, err
	}
	if ii.SuperNameIndex, err = c.ReadIndex(); err != nil {
		return nil, err
	}
	flags, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	ii.Flags = InstanceFlags(flags)
	if ii.Flags&ClassProtectedNs != 0 {
		if ii.ProtectedNS, err = c.ReadIndex(); err != nil {
			return nil, err
		}
	}
	n, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	ii.Interfaces = make([]int, n)
	for i := range ii.Interfaces {
		if ii.Interfaces[i], err = c.ReadIndex(); err != nil {
			return nil, err
		}
	}
	if ii.Init, err = m.methodIndex(c); err != nil {
		return nil, err
	}
	if ii.Traits, err = m.parseTraits(c, ii); err != nil {
		return nil, err
	}
	return ii, nil
}

func (m *Module) parseScripts(c *Cursor) error {
	count, err := c.ReadIndex()
	if err != nil {
		return err
	}
	m.Scripts = make([]*ScriptInfo, count)
	for i := range m.Scripts {
		si := &ScriptInfo{Index: i, module: m}
		if si.Init, err = m.methodIndex(c); err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
		if si.Traits, err = m.parseTraits(c, si); err != nil {
			return fmt.Errorf("script %d: %w", i, err)
		}
		for _, t := range si.Traits {
			if t.Kind == TraitClass && t.Class >= len(m.Classes) {
				return fmt.Errorf("%w: class trait refers to class %d of %d", ErrIndexOutOfRange, t.Class, len(m.Classes))
			}
		}
		m.Scripts[i] = si
	}
	return nil
}

func (m *Module) methodIndex(c *Cursor) (int, error) {
	i, err := c.ReadIndex()
	if err != nil {
		return 0, err
	}
	if i >= m.methods.len() {
		return 0, fmt.Errorf("%w: method %d (table has %d)", ErrIndexOutOfRange, i, m.methods.len())
	}
	return i, nil
}
