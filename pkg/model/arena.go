package model

import (
	"fmt"

	errs "github.com/vhavlena/schemagraph/pkg/err"
)

// ID addresses a slot of an Arena.
type ID int

type slotState uint8

const (
	slotPending slotState = iota
	slotFilled
	slotAliased
	slotReleased
)

type slot struct {
	state slotState
	prop  *Property
	alias ID
}

// Arena owns every property of one compilation run. Properties are addressed
// by stable IDs; a slot may be reserved before its property exists so
// recursive references can be handed out while the target is being built.
// Callbacks deferred on a pending slot run once it is bound.
type Arena struct {
	slots    []slot
	deferred map[ID][]func(*Property)
}

// NewArena creates an empty Arena.
func NewArena() *Arena {
	return &Arena{deferred: make(map[ID][]func(*Property))}
}

// Reserve allocates a pending slot.
func (a *Arena) Reserve() ID {
	a.slots = append(a.slots, slot{state: slotPending})
	return ID(len(a.slots) - 1)
}

// Add stores a concrete property in a new slot and returns a handle to it
// under the property's own name.
func (a *Arena) Add(p *Property) Ref {
	id := a.Reserve()
	a.slots[id] = slot{state: slotFilled, prop: p}
	p.id = id
	return Ref{name: p.Name(), id: id, arena: a}
}

// Bind points a pending slot at the property target refers to and runs the
// callbacks deferred on the slot. Binding a slot to itself, directly or
// through other aliases, is a circular reference.
func (a *Arena) Bind(id ID, target Ref) error {
	if target.arena != a {
		return fmt.Errorf("bind %d: handle belongs to another arena", id)
	}
	if a.slots[id].state != slotPending {
		return fmt.Errorf("bind %d: slot is not pending", id)
	}
	if a.canonical(target.id) == id {
		return errs.ErrCircular(fmt.Sprintf("slot %d", id))
	}
	a.slots[id] = slot{state: slotAliased, alias: target.id}

	callbacks := a.deferred[id]
	delete(a.deferred, id)
	for _, fn := range callbacks {
		a.Defer(target.id, fn)
	}
	return nil
}

// Release abandons a pending slot after its construction failed. Callbacks
// deferred on it are dropped.
func (a *Arena) Release(id ID) {
	a.slots[id] = slot{state: slotReleased}
	delete(a.deferred, id)
}

// Defer runs fn with the property of id once id is bound, immediately if it
// already is.
func (a *Arena) Defer(id ID, fn func(*Property)) {
	c := a.canonical(id)
	if p := a.get(c); p != nil {
		fn(p)
		return
	}
	a.deferred[c] = append(a.deferred[c], fn)
}

// Get returns the property bound to id, nil while pending.
func (a *Arena) Get(id ID) *Property {
	return a.get(a.canonical(id))
}

// Ref returns a handle to id used under name.
func (a *Arena) Ref(id ID, name string) Ref {
	return Ref{name: name, id: id, arena: a}
}

// Pending returns the IDs of slots which were reserved but never bound.
func (a *Arena) Pending() []ID {
	var pending []ID
	for i := range a.slots {
		if a.slots[i].state == slotPending {
			pending = append(pending, ID(i))
		}
	}
	return pending
}

// Len returns the number of slots.
func (a *Arena) Len() int {
	return len(a.slots)
}

func (a *Arena) get(id ID) *Property {
	if id < 0 || int(id) >= len(a.slots) || a.slots[id].state != slotFilled {
		return nil
	}
	return a.slots[id].prop
}

// canonical follows aliases to the slot holding the property.
func (a *Arena) canonical(id ID) ID {
	seen := 0
	for int(id) < len(a.slots) && a.slots[id].state == slotAliased {
		id = a.slots[id].alias
		seen++
		if seen > len(a.slots) {
			break
		}
	}
	return id
}

// Ref is a handle to a property as used at one site under one name. While
// the target is still being built the handle is pending; it resolves to the
// concrete property as soon as the target's slot is bound. Handles to the
// same definition compare equal with Same.
type Ref struct {
	name  string
	id    ID
	arena *Arena
}

// Name returns the name the property is used under at this site.
func (r Ref) Name() string {
	return r.name
}

// ID returns the slot the handle points at.
func (r Ref) ID() ID {
	return r.id
}

// IsZero reports whether r is the zero handle.
func (r Ref) IsZero() bool {
	return r.arena == nil
}

// Resolved reports whether the target property exists.
func (r Ref) Resolved() bool {
	return r.arena != nil && r.arena.Get(r.id) != nil
}

// Property returns the target property, nil while pending.
func (r Ref) Property() *Property {
	if r.arena == nil {
		return nil
	}
	return r.arena.Get(r.id)
}

// Same reports whether both handles lead to the same property.
func (r Ref) Same(other Ref) bool {
	if r.arena == nil || r.arena != other.arena {
		return false
	}
	return r.arena.canonical(r.id) == r.arena.canonical(other.id)
}

// WithName returns a handle to the same target used under another name.
func (r Ref) WithName(name string) Ref {
	r.name = name
	return r
}
