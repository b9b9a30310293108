package abc

import (
	"fmt"
	"sync/atomic"
)

// TraitKind is the low nibble of a trait's kind byte.
type TraitKind uint8

const (
	TraitSlot     TraitKind = 0
	TraitMethod   TraitKind = 1
	TraitGetter   TraitKind = 2
	TraitSetter   TraitKind = 3
	TraitClass    TraitKind = 4
	TraitFunction TraitKind = 5
	TraitConst    TraitKind = 6
)

var traitKindNames = [...]string{"slot", "method", "getter", "setter", "class", "function", "const"}

func (k TraitKind) String() string {
	if int(k) < len(traitKindNames) {
		return traitKindNames[k]
	}
	return fmt.Sprintf("trait(%d)", uint8(k))
}

// IsSlotLike reports whether the trait occupies a numbered slot.
func (k TraitKind) IsSlotLike() bool {
	return k == TraitSlot || k == TraitConst || k == TraitClass || k == TraitFunction
}

// IsMethodLike reports whether the trait is dispatched through a method.
func (k TraitKind) IsMethodLike() bool {
	return k == TraitMethod || k == TraitGetter || k == TraitSetter
}

// TraitAttr is the high nibble of a trait's kind byte.
type TraitAttr uint8

const (
	AttrFinal    TraitAttr = 0x1
	AttrOverride TraitAttr = 0x2
	AttrMetadata TraitAttr = 0x4
)

// TraitInfo is a compile-time member declaration. Cross references are kept
// as indices and resolved against the owning module on first use.
type TraitInfo struct {
	NameIndex  int
	Kind       TraitKind
	Attrs      TraitAttr
	SlotID     int // slot-like traits, 0 means "assign next"
	DispID     int // method-like traits
	TypeIndex  int // slot and const
	ValueIndex int // slot and const, 0 means no default
	ValueKind  ValueKind
	Class      int // class traits
	Method     int // method-like and function traits
	Metadata   []int

	module *Module
	holder any
	name   atomic.Pointer[Name]
}

// Module returns the module that declared the trait.
func (t *TraitInfo) Module() *Module { return t.module }

// Name resolves and caches the trait's qualified name.
func (t *TraitInfo) Name() (*Name, error) {
	if n := t.name.Load(); n != nil {
		return n, nil
	}
	n, err := t.module.Name(t.NameIndex)
	if err != nil {
		return nil, err
	}
	if !n.IsQName() {
		return nil, fmt.Errorf("%w: trait name %s is not qualified", ErrMalformed, n)
	}
	t.name.CompareAndSwap(nil, n)
	return t.name.Load(), nil
}

// TypeName resolves the declared type of a slot or const trait.
func (t *TraitInfo) TypeName() (*Name, error) {
	return t.module.Name(t.TypeIndex)
}

// HasDefault reports whether a slot or const declares a default value.
func (t *TraitInfo) HasDefault() bool { return t.ValueIndex != 0 }

// DefaultValue decodes the declared default of a slot or const trait.
func (t *TraitInfo) DefaultValue() (Constant, error) {
	if t.ValueIndex == 0 {
		return Constant{Kind: ValueUndefined}, nil
	}
	return t.module.Constant(t.ValueKind, t.ValueIndex)
}

// Is reports whether the attribute bit is set.
func (t *TraitInfo) Is(a TraitAttr) bool { return t.Attrs&a != 0 }

// Holder returns the instance, class, script, body or exception entry that
// declared the trait.
func (t *TraitInfo) Holder() any { return t.holder }

// SetHolder records the declaring entity. A trait belongs to exactly one
// holder; reassignment panics.
func (t *TraitInfo) SetHolder(h any) {
	if t.holder != nil && t.holder != h {
		panic(fmt.Sprintf("abc: trait %d already held by %T", t.NameIndex, t.holder))
	}
	t.holder = h
}

func (t *TraitInfo) String() string {
	n, err := t.Name()
	if err != nil {
		return fmt.Sprintf("%s <bad name %d>", t.Kind, t.NameIndex)
	}
	return fmt.Sprintf("%s %s", t.Kind, n)
}

func skipTraits(c *Cursor) error {
	n, err := c.ReadIndex()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := c.SkipU32(); err != nil {
			return err
		}
		tag, err := c.ReadU8()
		if err != nil {
			return err
		}
		switch TraitKind(tag & 0x0f) {
		case TraitSlot, TraitConst:
			if err := c.SkipU32(); err != nil {
				return err
			}
			if err := c.SkipU32(); err != nil {
				return err
			}
			vindex, err := c.ReadIndex()
			if err != nil {
				return err
			}
			if vindex != 0 {
				if err := c.Skip(1); err != nil {
					return err
				}
			}
		case TraitClass, TraitFunction, TraitMethod, TraitGetter, TraitSetter:
			if err := c.SkipU32s(2); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: 0x%02x", ErrBadTraitKind, tag)
		}
		if TraitAttr(tag>>4)&AttrMetadata != 0 {
			mdCount, err := c.ReadIndex()
			if err != nil {
				return err
			}
			if err := c.SkipU32s(mdCount); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseTraits decodes a trait list and assigns each trait to holder.
func (m *Module) parseTraits(c *Cursor, holder any) ([]*TraitInfo, error) {
	n, err := c.ReadIndex()
	if err != nil {
		return nil, err
	}
	traits := make([]*TraitInfo, n)
	for i := range traits {
		t := &TraitInfo{module: m}
		if t.NameIndex, err = c.ReadIndex(); err != nil {
			return nil, err
		}
		if t.NameIndex == 0 || t.NameIndex >= m.names.len() {
			return nil, fmt.Errorf("%w: trait name %d", ErrIndexOutOfRange, t.NameIndex)
		}
		tag, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		t.Kind = TraitKind(tag & 0x0f)
		t.Attrs = TraitAttr(tag >> 4)

		switch t.Kind {
		case TraitSlot, TraitConst:
			if t.SlotID, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.TypeIndex, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.ValueIndex, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.ValueIndex != 0 {
				vk, err := c.ReadU8()
				if err != nil {
					return nil, err
				}
				t.ValueKind = ValueKind(vk)
			}
		case TraitClass:
			if t.SlotID, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.Class, err = c.ReadIndex(); err != nil {
				return nil, err
			}
		case TraitFunction:
			if t.SlotID, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.Method, err = c.ReadIndex(); err != nil {
				return nil, err
			}
		case TraitMethod, TraitGetter, TraitSetter:
			if t.DispID, err = c.ReadIndex(); err != nil {
				return nil, err
			}
			if t.Method, err = c.ReadIndex(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrBadTraitKind, tag)
		}
		if t.Kind == TraitFunction || t.Kind.IsMethodLike() {
			if t.Method >= m.methods.len() {
				return nil, fmt.Errorf("%w: trait method %d", ErrIndexOutOfRange, t.Method)
			}
		}

		if t.Attrs&AttrMetadata != 0 {
			mdCount, err := c.ReadIndex()
			if err != nil {
				return nil, err
			}
			t.Metadata = make([]int, mdCount)
			for j := range t.Metadata {
				if t.Metadata[j], err = c.ReadIndex(); err != nil {
					return nil, err
				}
			}
		}
		t.SetHolder(holder)
		traits[i] = t
	}
	return traits, nil
}
