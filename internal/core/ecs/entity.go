package ecs

// EntityID is an opaque handle drawn from a per-table counter. Ids are never
// reused while the table lives, so a stale id simply stops resolving.
type EntityID uint32

// NoEntity is never handed out.
const NoEntity EntityID = 0

func (id EntityID) IsZero() bool { return id == NoEntity }

// idCounter hands out monotonically increasing ids.
type idCounter struct {
	next EntityID
}

func (c *idCounter) take() EntityID {
	c.next++
	if c.next == NoEntity {
		panic("ecs: entity id space exhausted")
	}
	return c.next
}

// observe moves the counter past an id that was assigned elsewhere
// (a mirrored table copying ids from its authority).
func (c *idCounter) observe(id EntityID) {
	if id > c.next {
		c.next = id
	}
}
