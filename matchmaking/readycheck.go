package matchmaking

import (
	"battleground-matchmaker/arena"
	"battleground-matchmaker/metrics"

	"github.com/rs/zerolog/log"
)

// reserveOrRequeue tries to reserve a slot for a queue in ReadyCheck. With no
// slot free it arms the requeue timer and stays silent towards players.
func (e *Engine) reserveOrRequeue(id arena.TemplateID, q *queueState) {
	slot, err := q.template.ReserveSlot()
	if err != nil {
		gen := q.generation
		q.requeue = e.sched.After(e.timings.RequeueDelay, func() { e.onRequeue(id, gen) })
		metrics.SlotRetries.WithLabelValues(q.template.Name).Inc()
		log.Debug().Str("template", q.template.Name).Dur("retryIn", e.timings.RequeueDelay).Msg("engine: no free map slot; requeued")
		return
	}
	q.slot = slot
	for _, p := range q.everyone() {
		e.notifier.Notify(p, EventReadyCheckStarted, Payload{
			TemplateID: id,
			Template:   q.template.Name,
			MapID:      slot.MapID,
			Timeout:    e.timings.ReadyTimeout,
		})
	}
	gen := q.generation
	q.expire = e.sched.After(e.timings.ReadyTimeout, func() { e.onExpire(id, gen) })
	metrics.ReadyChecks.WithLabelValues(q.template.Name, "reserved").Inc()
	log.Info().Str("template", q.template.Name).Str("map", slot.MapID).Msg("engine: ready-check started")
}

// current returns the queue for a timer firing, or nil if the firing is stale.
func (e *Engine) current(id arena.TemplateID, gen uint64, want ReadyState) *queueState {
	q, ok := e.queues[id]
	if !ok || q.generation != gen || q.state != want {
		log.Debug().Uint32("template", uint32(id)).Uint64("generation", gen).Msg("engine: discarding stale timer")
		return nil
	}
	return q
}

func (e *Engine) onRequeue(id arena.TemplateID, gen uint64) {
	q := e.current(id, gen, ReadyCheck)
	if q == nil {
		return
	}
	q.requeue = 0
	e.reserveOrRequeue(id, q)
}

// onExpire ends a ready-check that did not collect every accept. Nobody is
// removed from the roster and every participant gets the same notice.
func (e *Engine) onExpire(id arena.TemplateID, gen uint64) {
	q := e.current(id, gen, ReadyCheck)
	if q == nil {
		return
	}
	q.expire = 0
	mapID := ""
	if q.slot != nil {
		mapID = q.slot.MapID
	}
	e.resetToFilling(q)
	for _, p := range q.everyone() {
		e.notifier.Notify(p, EventReadyCheckExpired, Payload{TemplateID: id, Template: q.template.Name, MapID: mapID})
	}
	metrics.ReadyChecks.WithLabelValues(q.template.Name, "expired").Inc()
	log.Info().Str("template", q.template.Name).Msg("engine: ready-check expired")

	// Rosters are still full; offer a fresh ready-check after the requeue delay.
	next := q.generation
	q.requeue = e.sched.After(e.timings.RequeueDelay, func() { e.onRecheck(id, next) })
}

func (e *Engine) onRecheck(id arena.TemplateID, gen uint64) {
	q := e.current(id, gen, Filling)
	if q == nil {
		return
	}
	q.requeue = 0
	e.evaluateQuorum(id, q)
}

// AcceptReady records a player's accept. Repeated accepts and accepts outside
// a presented ready-check return ErrNoOp.
func (e *Engine) AcceptReady(p PlayerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.players[p]
	if !ok || c.ticket == nil {
		return ErrNoOp
	}
	id := c.ticket.template
	q, ok := e.queues[id]
	if !ok || q.state != ReadyCheck || q.slot == nil || c.accepted {
		return ErrNoOp
	}
	c.accepted = true
	q.accepted++
	log.Debug().Str("player", string(p)).Int("accepted", q.accepted).Str("template", q.template.Name).Msg("engine: ready-check accept")

	if q.accepted < q.template.RequiredPlayers()*2 {
		return nil
	}
	e.sched.Cancel(q.expire)
	q.expire = 0
	q.state = Starting
	gen := q.generation
	delay := q.template.StartDelay
	q.start = e.sched.After(delay, func() { e.onStart(id, gen) })
	for _, m := range q.everyone() {
		e.notifier.Notify(m, EventMatchStarting, Payload{TemplateID: id, Template: q.template.Name, MapID: q.slot.MapID, Timeout: delay})
	}
	metrics.ReadyChecks.WithLabelValues(q.template.Name, "starting").Inc()
	log.Info().Str("template", q.template.Name).Dur("startIn", delay).Msg("engine: all players accepted")
	return nil
}

// voidReadyCheck cancels an in-progress ready-check after a roster change.
// Players only hear about it if a slot had been reserved, since before that
// the ready-check was never shown to them.
func (e *Engine) voidReadyCheck(id arena.TemplateID, q *queueState, cause PlayerID) {
	presented := q.slot != nil
	mapID := ""
	if presented {
		mapID = q.slot.MapID
	}
	e.resetToFilling(q)
	if presented {
		for _, p := range q.everyone() {
			e.notifier.Notify(p, EventReadyCheckCancelled, Payload{TemplateID: id, Template: q.template.Name, MapID: mapID})
		}
	}
	metrics.ReadyChecks.WithLabelValues(q.template.Name, "cancelled").Inc()
	log.Info().Str("template", q.template.Name).Str("cause", string(cause)).Bool("presented", presented).Msg("engine: ready-check voided")
}

// resetToFilling cancels every queue timer, frees the reserved slot, clears
// accepts and bumps the generation so in-flight firings are discarded.
func (e *Engine) resetToFilling(q *queueState) {
	e.sched.Cancel(q.requeue)
	e.sched.Cancel(q.expire)
	e.sched.Cancel(q.start)
	q.requeue, q.expire, q.start = 0, 0, 0
	if q.slot != nil {
		q.slot.Release()
		q.slot = nil
	}
	q.accepted = 0
	for _, p := range q.everyone() {
		if c, ok := e.players[p]; ok {
			c.accepted = false
		}
	}
	q.state = Filling
	q.generation++
}

// onStart launches the match if both rosters are still exactly full.
func (e *Engine) onStart(id arena.TemplateID, gen uint64) {
	q := e.current(id, gen, Starting)
	if q == nil {
		return
	}
	q.start = 0
	req := q.template.RequiredPlayers()
	sizes := q.sizes()
	if sizes[SideA] != req || sizes[SideB] != req || q.slot == nil {
		for _, p := range q.everyone() {
			e.notifier.Notify(p, EventStartAborted, Payload{TemplateID: id, Template: q.template.Name})
		}
		e.resetToFilling(q)
		metrics.ReadyChecks.WithLabelValues(q.template.Name, "aborted").Inc()
		log.Warn().Str("template", q.template.Name).Ints("sizes", sizes[:]).Msg("engine: start aborted; rosters below quorum")
		return
	}
	e.startMatch(id, q)
}

func (e *Engine) startMatch(id arena.TemplateID, q *queueState) {
	slot := q.slot
	key := slotKey{template: id, mapID: slot.MapID}
	start := MatchStart{TemplateID: id, Template: q.template.Name, MapID: slot.MapID}
	queued := 0

	for _, side := range [2]Side{SideA, SideB} {
		m := e.matches.create(q.template, slot, side, key)
		start.Matches[side] = m.ID
		for _, p := range q.roster(side) {
			queued++
			c := e.player(p)
			c.ticket = nil
			c.accepted = false
			if err := e.joinLocked(m, p, true); err != nil {
				log.Error().Err(err).Str("player", string(p)).Uint32("match", uint32(m.ID)).Msg("engine: could not place player in started match")
				e.notifier.Notify(p, EventRemovedFromQueue, Payload{TemplateID: id, Template: q.template.Name})
				continue
			}
			start.Teams[side] = append(start.Teams[side], p)
			e.notifier.Notify(p, EventMatchStarted, Payload{
				TemplateID: id,
				Template:   q.template.Name,
				Side:       side.String(),
				MapID:      slot.MapID,
				MatchID:    m.ID,
			})
		}
	}
	e.holds[key] += 2
	metrics.ActiveMatches.Add(2)
	metrics.QueuedPlayers.WithLabelValues(q.template.Name).Sub(float64(queued))

	// The slot now belongs to the matches; detach it before resetting the queue.
	q.slot = nil
	q.teams = [2][]*ticket{}
	e.resetToFilling(q)

	if slot.StartHook != "" {
		e.hooks.RunHook(slot.StartHook)
	}
	e.host.MatchStarted(start)
	metrics.ReadyChecks.WithLabelValues(q.template.Name, "started").Inc()
	log.Info().Str("template", q.template.Name).Str("map", slot.MapID).
		Uint32("matchA", uint32(start.Matches[SideA])).Uint32("matchB", uint32(start.Matches[SideB])).
		Msg("engine: match started")
}
