package vm

import (
	"errors"
	"testing"

	"github.com/chazu/abcvm/abc"
)

func define(t *testing.T, r *ResolvedTraits, tr *Trait) *Trait {
	t.Helper()
	if err := r.Define(tr); err != nil {
		t.Fatalf("Define(%s) failed: %v", tr, err)
	}
	return tr
}

// ---------------------------------------------------------------------------
// Inheritance
// ---------------------------------------------------------------------------

func TestTraitFallthroughIdentity(t *testing.T) {
	in := abc.NewInterner()
	name := in.PublicName("m")
	base := NewTraits(nil, nil)
	tb := define(t, base, &Trait{Name: name, Kind: abc.TraitMethod})

	derived := NewTraits(base, nil)
	if got := derived.LookupName(name); got != tb {
		t.Errorf("derived.LookupName(m) = %v, want the base trait", got)
	}
	if got := derived.LookupName(name); got != tb {
		t.Errorf("cached derived.LookupName(m) = %v, want the base trait", got)
	}
	if tb.Owner != base {
		t.Errorf("Owner = %p, want base", tb.Owner)
	}
}

func TestTraitOverrideIsolation(t *testing.T) {
	in := abc.NewInterner()
	name := in.PublicName("m")
	base := NewTraits(nil, nil)
	tb := define(t, base, &Trait{Name: name, Kind: abc.TraitMethod})

	a := NewTraits(base, nil)
	b := NewTraits(base, nil)
	ta := define(t, a, &Trait{Name: name, Kind: abc.TraitMethod})

	if got := a.LookupName(name); got != ta {
		t.Errorf("a.LookupName(m) = %v, want the override", got)
	}
	if got := b.LookupName(name); got != tb {
		t.Errorf("sibling b.LookupName(m) = %v, want the base trait", got)
	}
	if got := base.LookupName(name); got != tb {
		t.Errorf("base.LookupName(m) = %v, want the base trait", got)
	}
}

func TestTraitCacheInvalidatedByDefine(t *testing.T) {
	in := abc.NewInterner()
	name := in.PublicName("late")
	r := NewTraits(nil, nil)
	if r.LookupName(name) != nil {
		t.Fatal("lookup before Define found a trait")
	}
	tr := define(t, r, &Trait{Name: name, Kind: abc.TraitSlot})
	if got := r.LookupName(name); got != tr {
		t.Errorf("LookupName after Define = %v, want %v", got, tr)
	}
}

func TestTraitLookupByNamespaceSet(t *testing.T) {
	in := abc.NewInterner()
	priv := in.NewPrivate("Foo")
	pub := in.Public()
	r := NewTraits(nil, nil)
	tp := define(t, r, &Trait{Name: in.QName(priv, "x"), Kind: abc.TraitSlot})
	tq := define(t, r, &Trait{Name: in.QName(pub, "x"), Kind: abc.TraitSlot})

	if got := r.LookupName(in.Multiname(abc.NewNamespaceSet(priv, pub), "x")); got != tp {
		t.Errorf("lookup {private, public}::x = %v, want the private trait", got)
	}
	if got := r.LookupName(in.Multiname(abc.NewNamespaceSet(pub, priv), "x")); got != tq {
		t.Errorf("lookup {public, private}::x = %v, want the public trait", got)
	}
	if got := r.LookupName(abc.NewRuntimeName([]*abc.Namespace{pub}, "x", true)); got != nil {
		t.Errorf("attribute lookup = %v, want nil", got)
	}
}

// ---------------------------------------------------------------------------
// Slots
// ---------------------------------------------------------------------------

func TestSlotNumbering(t *testing.T) {
	in := abc.NewInterner()
	r := NewTraits(nil, nil)
	define(t, r, &Trait{Name: in.PublicName("a"), Kind: abc.TraitSlot, Slot: 3})
	define(t, r, &Trait{Name: in.PublicName("b"), Kind: abc.TraitSlot, Slot: 1})
	c := define(t, r, &Trait{Name: in.PublicName("c"), Kind: abc.TraitSlot})
	d := define(t, r, &Trait{Name: in.PublicName("d"), Kind: abc.TraitConst})

	if c.Slot != 4 || d.Slot != 5 {
		t.Errorf("auto slots = %d, %d, want 4, 5", c.Slot, d.Slot)
	}
	if r.SlotCount() != 6 {
		t.Errorf("SlotCount = %d, want 6", r.SlotCount())
	}
	if r.SlotTrait(2) != nil {
		t.Errorf("SlotTrait(2) = %v, want a gap", r.SlotTrait(2))
	}
	if r.SlotTrait(5) != d {
		t.Errorf("SlotTrait(5) = %v, want d", r.SlotTrait(5))
	}
}

func TestSlotCollision(t *testing.T) {
	in := abc.NewInterner()
	base := NewTraits(nil, nil)
	define(t, base, &Trait{Name: in.PublicName("a"), Kind: abc.TraitSlot, Slot: 2})

	if err := base.Define(&Trait{Name: in.PublicName("b"), Kind: abc.TraitSlot, Slot: 2}); !errors.Is(err, ErrSlotCollision) {
		t.Errorf("same-level collision error = %v, want ErrSlotCollision", err)
	}

	derived := NewTraits(base, nil)
	if err := derived.Define(&Trait{Name: in.PublicName("c"), Kind: abc.TraitSlot, Slot: 2}); !errors.Is(err, ErrSlotCollision) {
		t.Errorf("inherited collision error = %v, want ErrSlotCollision", err)
	}
	c := define(t, derived, &Trait{Name: in.PublicName("d"), Kind: abc.TraitSlot})
	if c.Slot != 3 {
		t.Errorf("derived auto slot = %d, want 3", c.Slot)
	}
	if base.SlotCount() != 3 {
		t.Errorf("base SlotCount = %d after derived Define, want 3", base.SlotCount())
	}
}

// ---------------------------------------------------------------------------
// Accessors and protected names
// ---------------------------------------------------------------------------

func TestAccessorMerge(t *testing.T) {
	in := abc.NewInterner()
	name := in.PublicName("p")
	get := NewNativeMethod("get", nil)
	set := NewNativeMethod("set", nil)

	base := NewTraits(nil, nil)
	tb := define(t, base, &Trait{Name: name, Kind: abc.TraitGetter, Getter: get})

	derived := NewTraits(base, nil)
	define(t, derived, &Trait{Name: name, Kind: abc.TraitSetter, Setter: set})
	td := derived.LookupName(name)
	if td == tb {
		t.Fatal("derived setter did not create its own record")
	}
	if td.Getter != get || td.Setter != set {
		t.Errorf("derived accessor = (%v, %v), want inherited getter and own setter", td.Getter, td.Setter)
	}
	if tb.Setter != nil {
		t.Errorf("base setter = %v, want nil", tb.Setter)
	}

	same := NewTraits(nil, nil)
	first := define(t, same, &Trait{Name: name, Kind: abc.TraitGetter, Getter: get})
	define(t, same, &Trait{Name: name, Kind: abc.TraitSetter, Setter: set})
	if got := same.LookupName(name); got != first || got.Setter != set {
		t.Errorf("same-level pair = %v, want one merged record", got)
	}
	n := 0
	same.Each(func(*Trait) { n++ })
	if n != 1 {
		t.Errorf("same-level own traits = %d, want 1", n)
	}
}

func TestProtectedCanonicalization(t *testing.T) {
	in := abc.NewInterner()
	pa := in.Namespace(abc.NamespaceKindProtected, "A")
	pb := in.Namespace(abc.NamespaceKindProtected, "B")

	base := NewTraits(nil, pa)
	ta := define(t, base, &Trait{Name: in.QName(pa, "p"), Kind: abc.TraitMethod})
	derived := NewTraits(base, pb)
	tb := define(t, derived, &Trait{Name: in.QName(pb, "p"), Kind: abc.TraitMethod})

	if got := derived.Lookup([]*abc.Namespace{pa}, "p"); got != tb {
		t.Errorf("lookup through ancestor protected ns = %v, want the override", got)
	}
	if got := derived.Lookup([]*abc.Namespace{pb}, "p"); got != tb {
		t.Errorf("lookup through own protected ns = %v, want the override", got)
	}
	if got := base.Lookup([]*abc.Namespace{pa}, "p"); got != ta {
		t.Errorf("base lookup = %v, want the base trait", got)
	}
	other := in.Namespace(abc.NamespaceKindProtected, "D")
	if got := derived.Lookup([]*abc.Namespace{other}, "p"); got != nil {
		t.Errorf("lookup through unrelated protected ns = %v, want nil", got)
	}

	pc := in.Namespace(abc.NamespaceKindProtected, "C")
	third := NewTraits(derived, pc)
	tc := define(t, third, &Trait{Name: in.QName(pc, "p"), Kind: abc.TraitMethod})
	for _, ns := range []*abc.Namespace{pa, pb, pc} {
		if got := third.Lookup([]*abc.Namespace{ns}, "p"); got != tc {
			t.Errorf("third-level lookup through %s = %v, want the newest override", ns, got)
		}
	}
	if got := derived.Lookup([]*abc.Namespace{pa}, "p"); got != tb {
		t.Errorf("middle lookup after a deeper override = %v, want its own override", got)
	}
}

func TestAnyNamespaceLookupOrder(t *testing.T) {
	in := abc.NewInterner()
	b := abc.NewModuleBuilder()
	idx := b.RawName(abc.KindQName, 0, b.String("p"))
	mod, err := abc.Open(b.Bytes(), in)
	if err != nil {
		t.Fatal(err)
	}
	anyNS, err := mod.Name(idx)
	if err != nil || !anyNS.IsAnyNamespace() {
		t.Fatalf("Name(%d) = %v, %v", idx, anyNS, err)
	}

	r := NewTraits(nil, nil)
	var first *Trait
	for i, uri := range []string{"a", "b", "c", "d", "e", "f"} {
		tr := define(t, r, &Trait{Name: in.QName(in.Namespace(abc.NamespaceKindNamespace, uri), "p"), Kind: abc.TraitMethod})
		if i == 0 {
			first = tr
		}
	}
	for range 20 {
		if got := r.lookupAnyNamespace("p"); got != first {
			t.Fatalf("any-namespace lookup = %v, want the first declared", got)
		}
	}
	if got := r.LookupName(anyNS); got != first {
		t.Errorf("LookupName(*::p) = %v, want the first declared", got)
	}
}

func TestByDispID(t *testing.T) {
	in := abc.NewInterner()
	base := NewTraits(nil, nil)
	m := define(t, base, &Trait{Name: in.PublicName("m"), Kind: abc.TraitMethod, DispID: 7})
	derived := NewTraits(base, nil)
	if got := derived.ByDispID(7); got != m {
		t.Errorf("ByDispID(7) = %v, want %v", got, m)
	}
	if got := derived.ByDispID(8); got != nil {
		t.Errorf("ByDispID(8) = %v, want nil", got)
	}
}
