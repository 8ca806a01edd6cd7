package arena

import "errors"

// ErrSlotUnavailable means every slot of a template is currently reserved.
var ErrSlotUnavailable = errors.New("arena: no free map slot")

func (s *MapSlot) IsReserved() bool { return s.reserved }

// Release clears the reservation. Releasing a free slot is a no-op.
func (s *MapSlot) Release() { s.reserved = false }

// ReserveSlot reserves the first free slot in declaration order.
func (t *Template) ReserveSlot() (*MapSlot, error) {
	for _, s := range t.Slots {
		if !s.reserved {
			s.reserved = true
			return s, nil
		}
	}
	return nil, ErrSlotUnavailable
}

func (t *Template) Slot(mapID string) (*MapSlot, bool) {
	for _, s := range t.Slots {
		if s.MapID == mapID {
			return s, true
		}
	}
	return nil, false
}

// FreeSlots counts slots that can still be reserved.
func (t *Template) FreeSlots() int {
	n := 0
	for _, s := range t.Slots {
		if !s.reserved {
			n++
		}
	}
	return n
}

// Release frees the slot identified by template and map. It reports false if
// either no longer exists in the catalog.
func (c *Catalog) Release(id TemplateID, mapID string) bool {
	t, ok := c.templates[id]
	if !ok {
		return false
	}
	s, ok := t.Slot(mapID)
	if !ok {
		return false
	}
	s.Release()
	return true
}

// Adopt carries reservations from prev into c for every template and map that
// exists in both, so slots held by running matches stay held across a reload.
func (c *Catalog) Adopt(prev *Catalog) {
	if prev == nil {
		return
	}
	for id, old := range prev.templates {
		t, ok := c.templates[id]
		if !ok {
			continue
		}
		for _, s := range old.Slots {
			if !s.reserved {
				continue
			}
			if ns, ok := t.Slot(s.MapID); ok {
				ns.reserved = true
			}
		}
	}
}
