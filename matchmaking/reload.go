package matchmaking

import (
	"battleground-matchmaker/arena"
	"battleground-matchmaker/metrics"

	"github.com/rs/zerolog/log"
)

// Reload swaps in a new template catalog. Reservations carry over by map id.
// Queues of removed templates are evicted; surviving queues are checked
// against their new quorum.
func (e *Engine) Reload(next *arena.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next.Adopt(e.catalog)
	prev := e.catalog
	e.catalog = next

	for id, q := range e.queues {
		t, err := next.Template(id)
		if err != nil {
			e.evict(id, q)
			continue
		}
		e.revalidate(id, q, t)
	}
	log.Info().Int("before", prev.Len()).Int("after", next.Len()).Msg("engine: templates reloaded")
}

func (e *Engine) evict(id arena.TemplateID, q *queueState) {
	members := q.everyone()
	e.resetToFilling(q)
	for _, p := range members {
		if c, ok := e.players[p]; ok {
			c.ticket = nil
		}
		e.notifier.Notify(p, EventQueueClosed, Payload{TemplateID: id, Template: q.template.Name})
		e.forgetIfIdle(p)
	}
	metrics.QueuedPlayers.DeleteLabelValues(q.template.Name)
	delete(e.queues, id)
	log.Warn().Uint32("template", uint32(id)).Int("dropped", len(members)).Msg("engine: template removed; queue evicted")
}

func (e *Engine) revalidate(id arena.TemplateID, q *queueState, t *arena.Template) {
	q.template = t
	slotGone := false
	if q.slot != nil {
		if s, ok := t.Slot(q.slot.MapID); ok {
			q.slot = s
		} else {
			slotGone = true
		}
	}

	req := t.RequiredPlayers()
	sizes := q.sizes()
	if q.state != Filling && (sizes[SideA] != req || sizes[SideB] != req || slotGone) {
		e.voidReadyCheck(id, q, "")
	}

	for _, side := range [2]Side{SideA, SideB} {
		for q.size(side) > req {
			last := q.teams[side][len(q.teams[side])-1]
			q.dropTicket(last)
			for _, p := range last.members {
				if c, ok := e.players[p]; ok {
					c.ticket = nil
					c.accepted = false
				}
				e.notifier.Notify(p, EventRemovedFromQueue, Payload{TemplateID: id, Template: t.Name})
				e.forgetIfIdle(p)
			}
			metrics.QueuedPlayers.WithLabelValues(t.Name).Sub(float64(len(last.members)))
		}
	}
	e.evaluateQuorum(id, q)
}
