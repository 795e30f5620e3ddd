package ecs

import "fmt"

// Table is a dense arena of T keyed by EntityID. Lookup is O(1) through an
// id->slot map; removal swaps the last element into the hole. Pointers from
// Get are only valid until the next Insert or Remove.
type Table[T any] struct {
	ids          []EntityID
	items        []T
	slots        map[EntityID]int
	counter      idCounter
	destroyQueue []EntityID
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{
		ids:          make([]EntityID, 0, 64),
		items:        make([]T, 0, 64),
		slots:        make(map[EntityID]int, 64),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

// Insert stores v under a fresh id.
func (t *Table[T]) Insert(v T) EntityID {
	id := t.counter.take()
	t.put(id, v)
	return id
}

// InsertWithID stores v under an id chosen by the caller. A duplicate id is
// an invariant violation and panics.
func (t *Table[T]) InsertWithID(id EntityID, v T) {
	if id.IsZero() {
		panic("ecs: InsertWithID with zero id")
	}
	if _, ok := t.slots[id]; ok {
		panic(fmt.Sprintf("ecs: duplicate entity id %d", id))
	}
	t.counter.observe(id)
	t.put(id, v)
}

func (t *Table[T]) put(id EntityID, v T) {
	t.slots[id] = len(t.items)
	t.ids = append(t.ids, id)
	t.items = append(t.items, v)
}

func (t *Table[T]) Get(id EntityID) (*T, bool) {
	slot, ok := t.slots[id]
	if !ok {
		return nil, false
	}
	return &t.items[slot], true
}

func (t *Table[T]) Has(id EntityID) bool {
	_, ok := t.slots[id]
	return ok
}

// Remove deletes id immediately and reports whether it was present.
func (t *Table[T]) Remove(id EntityID) bool {
	slot, ok := t.slots[id]
	if !ok {
		return false
	}
	last := len(t.items) - 1
	if slot != last {
		t.items[slot] = t.items[last]
		t.ids[slot] = t.ids[last]
		t.slots[t.ids[slot]] = slot
	}
	var zero T
	t.items[last] = zero
	t.items = t.items[:last]
	t.ids = t.ids[:last]
	delete(t.slots, id)
	return true
}

func (t *Table[T]) Len() int { return len(t.items) }

// Each visits every entry in slot order. fn must not insert or remove.
func (t *Table[T]) Each(fn func(EntityID, *T)) {
	for i := range t.items {
		fn(t.ids[i], &t.items[i])
	}
}

// IDs returns a copy of the live ids in slot order.
func (t *Table[T]) IDs() []EntityID {
	out := make([]EntityID, len(t.ids))
	copy(out, t.ids)
	return out
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (t *Table[T]) MarkForDestruction(id EntityID) {
	t.destroyQueue = append(t.destroyQueue, id)
}

// FlushDestroyQueue removes every queued entity and returns the ids that
// were actually live. Called by the cleanup phase once per tick.
func (t *Table[T]) FlushDestroyQueue() []EntityID {
	if len(t.destroyQueue) == 0 {
		return nil
	}
	removed := make([]EntityID, 0, len(t.destroyQueue))
	for _, id := range t.destroyQueue {
		if t.Remove(id) {
			removed = append(removed, id)
		}
	}
	t.destroyQueue = t.destroyQueue[:0]
	return removed
}
