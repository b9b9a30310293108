package vm

import (
	"fmt"
	"sync"

	"github.com/chazu/abcvm/abc"
)

// Trait is the runtime record of one member. Accessors declared as a
// getter and a setter with one qualified name share a single record.
type Trait struct {
	Name     *abc.Name
	Kind     abc.TraitKind
	Info     *abc.TraitInfo // nil for host-defined members
	Slot     int
	Type     *abc.Name
	ReadOnly bool
	DispID   int

	// Default is the initial slot value for host-defined slots.
	Default Value

	Method *Method
	Getter *Method
	Setter *Method

	// Owner is the level that declared the trait.
	Owner *ResolvedTraits
}

// IsSlot reports whether the trait has storage.
func (t *Trait) IsSlot() bool { return t.Kind.IsSlotLike() }

// IsAccessor reports whether the trait is a getter/setter pair.
func (t *Trait) IsAccessor() bool { return t.Kind == abc.TraitGetter || t.Kind == abc.TraitSetter }

func (t *Trait) String() string { return fmt.Sprintf("%s %s", t.Kind, t.Name) }

// Binder materializes the callable behind a method-like trait. The
// runtime's binder selects between natives, compiled code and the
// interpreter; ResolveTraits only asks for a Method.
type Binder interface {
	Bind(desc *abc.TraitInfo, scope *Scope) (*Method, error)
}

// notFound marks a cached negative lookup.
var notFound = &Trait{}

// ResolvedTraits is the runtime view of one type level. Names missing at
// this level fall through to Super; nothing is copied from it except the
// slot table, which must see inherited slot numbers to detect collisions.
type ResolvedTraits struct {
	Super       *ResolvedTraits
	ProtectedNS *abc.Namespace

	byName    map[string]map[string]*Trait // local name -> namespace key -> trait
	protected map[string]*Trait            // bare local name -> protected trait
	own       []*Trait
	slots     []*Trait // indexed by slot id, inherited entries included
	nextSlot  int
	dispIDs   map[int]*Trait

	mu    sync.RWMutex
	cache []*Trait // fixed name id -> trait or notFound
}

// NewTraits creates an empty level on top of super.
func NewTraits(super *ResolvedTraits, protectedNS *abc.Namespace) *ResolvedTraits {
	r := &ResolvedTraits{
		Super:       super,
		ProtectedNS: protectedNS,
		byName:      make(map[string]map[string]*Trait),
		protected:   make(map[string]*Trait),
		dispIDs:     make(map[int]*Trait),
		nextSlot:    1,
		slots:       []*Trait{nil},
	}
	if super != nil {
		r.slots = append([]*Trait(nil), super.slots...)
		r.nextSlot = super.nextSlot
	}
	return r
}

// ResolveTraits builds the runtime view of descs on top of super. Methods
// are bound to scope through binder; a nil binder leaves them unbound.
func ResolveTraits(descs []*abc.TraitInfo, super *ResolvedTraits, protectedNS *abc.Namespace, scope *Scope, binder Binder) (*ResolvedTraits, error) {
	r := NewTraits(super, protectedNS)
	for _, d := range descs {
		name, err := d.Name()
		if err != nil {
			return nil, err
		}
		t := &Trait{
			Name:     name,
			Kind:     d.Kind,
			Info:     d,
			Slot:     d.SlotID,
			DispID:   d.DispID,
			ReadOnly: d.Kind == abc.TraitConst,
		}
		if d.Kind == abc.TraitSlot || d.Kind == abc.TraitConst {
			if t.Type, err = d.TypeName(); err != nil {
				return nil, err
			}
		}
		if binder != nil && (d.Kind == abc.TraitFunction || d.Kind.IsMethodLike()) {
			m, err := binder.Bind(d, scope)
			if err != nil {
				return nil, err
			}
			switch d.Kind {
			case abc.TraitGetter:
				t.Getter = m
			case abc.TraitSetter:
				t.Setter = m
			default:
				t.Method = m
			}
		}
		if err := r.Define(t); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return r, nil
}

// Define adds t to this level. A slot-like trait with Slot == 0 receives
// the next free slot number.
func (r *ResolvedTraits) Define(t *Trait) error {
	t.Owner = r
	ns := t.Name.Namespace()
	if ns == nil {
		return fmt.Errorf("vm: trait name %s is not qualified", t.Name)
	}
	local, key := t.Name.LocalName(), ns.MangledKey()

	if t.IsSlot() {
		if err := r.assignSlot(t); err != nil {
			return err
		}
	}

	if t.IsAccessor() {
		if prev := r.lookupKey(local, key); prev != nil && prev.IsAccessor() {
			if prev.Owner == r {
				if t.Getter != nil {
					prev.Getter = t.Getter
				}
				if t.Setter != nil {
					prev.Setter = t.Setter
				}
				return nil
			}
			if t.Getter == nil {
				t.Getter = prev.Getter
			}
			if t.Setter == nil {
				t.Setter = prev.Setter
			}
		}
	}

	r.put(local, key, t)
	r.own = append(r.own, t)

	if r.ProtectedNS != nil && ns == r.ProtectedNS {
		// Rekey under every ancestor's protected namespace, up to the
		// level that introduced the member.
		for l := r.Super; l != nil; l = l.Super {
			if anc := l.protected[local]; anc != nil {
				if ak := anc.Name.Namespace().MangledKey(); ak != key {
					r.put(local, ak, t)
				}
			}
		}
		r.protected[local] = t
	}
	if t.DispID != 0 {
		r.dispIDs[t.DispID] = t
	}

	r.mu.Lock()
	r.cache = nil
	r.mu.Unlock()
	return nil
}

func (r *ResolvedTraits) put(local, key string, t *Trait) {
	m := r.byName[local]
	if m == nil {
		m = make(map[string]*Trait, 1)
		r.byName[local] = m
	}
	m[key] = t
}

func (r *ResolvedTraits) assignSlot(t *Trait) error {
	id := t.Slot
	if id == 0 {
		id = r.nextSlot
	}
	if id < len(r.slots) && r.slots[id] != nil {
		return fmt.Errorf("%w: %d held by %s", ErrSlotCollision, id, r.slots[id].Name)
	}
	for len(r.slots) <= id {
		r.slots = append(r.slots, nil)
	}
	r.slots[id] = t
	t.Slot = id
	if id+1 > r.nextSlot {
		r.nextSlot = id + 1
	}
	return nil
}

func (r *ResolvedTraits) lookupKey(local, key string) *Trait {
	for l := r; l != nil; l = l.Super {
		if t := l.byName[local][key]; t != nil {
			return t
		}
	}
	return nil
}

func (r *ResolvedTraits) lookupProtected(local string) *Trait {
	for l := r; l != nil; l = l.Super {
		if t := l.protected[local]; t != nil {
			return t
		}
	}
	return nil
}

func (r *ResolvedTraits) ownsProtected(ns *abc.Namespace) bool {
	for l := r; l != nil; l = l.Super {
		if l.ProtectedNS == ns {
			return true
		}
	}
	return false
}

// Lookup searches for local in each candidate namespace in order. A
// protected namespace of any level in the chain also matches protected
// members by bare name, so overrides stay reachable from ancestor code.
func (r *ResolvedTraits) Lookup(namespaces []*abc.Namespace, local string) *Trait {
	if r == nil {
		return nil
	}
	for _, ns := range namespaces {
		if t := r.lookupKey(local, ns.MangledKey()); t != nil {
			return t
		}
		if ns.IsProtected() && r.ownsProtected(ns) {
			if t := r.lookupProtected(local); t != nil {
				return t
			}
		}
	}
	return nil
}

// lookupAnyNamespace returns the first trait named local in declaration
// order, most derived level first.
func (r *ResolvedTraits) lookupAnyNamespace(local string) *Trait {
	for l := r; l != nil; l = l.Super {
		for _, t := range l.own {
			if t.Name.LocalName() == local {
				return t
			}
		}
	}
	return nil
}

// LookupName resolves name. Results for fixed names are cached by name
// id; runtime names always search.
func (r *ResolvedTraits) LookupName(name *abc.Name) *Trait {
	if r == nil || name.IsAttribute() || name.IsAnyName() {
		return nil
	}
	fixed := name.IsFixed()
	id := name.ID()
	if fixed {
		r.mu.RLock()
		if id < len(r.cache) {
			if t := r.cache[id]; t != nil {
				r.mu.RUnlock()
				if t == notFound {
					return nil
				}
				return t
			}
		}
		r.mu.RUnlock()
	}

	var t *Trait
	if name.IsAnyNamespace() {
		t = r.lookupAnyNamespace(name.LocalName())
	} else {
		t = r.Lookup(name.Namespaces(), name.LocalName())
	}

	if fixed {
		r.mu.Lock()
		for len(r.cache) <= id {
			r.cache = append(r.cache, nil)
		}
		if t == nil {
			r.cache[id] = notFound
		} else {
			r.cache[id] = t
		}
		r.mu.Unlock()
	}
	return t
}

// SlotTrait returns the trait occupying slot id, or nil.
func (r *ResolvedTraits) SlotTrait(id int) *Trait {
	if id <= 0 || id >= len(r.slots) {
		return nil
	}
	return r.slots[id]
}

// SlotCount returns one past the highest slot id in use (slot 0 is never
// used).
func (r *ResolvedTraits) SlotCount() int { return len(r.slots) }

// ByDispID returns the method with the given dispatch id.
func (r *ResolvedTraits) ByDispID(id int) *Trait {
	for l := r; l != nil; l = l.Super {
		if t := l.dispIDs[id]; t != nil {
			return t
		}
	}
	return nil
}

// Each calls fn for the traits declared at this level in declaration order.
func (r *ResolvedTraits) Each(fn func(*Trait)) {
	for _, t := range r.own {
		fn(t)
	}
}

// Slots returns the slot table including inherited slots. Entry 0 and
// gaps are nil.
func (r *ResolvedTraits) Slots() []*Trait { return r.slots }
