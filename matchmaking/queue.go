package matchmaking

import (

	"battleground-matchmaker/arena"
	"battleground-matchmaker/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EnqueueSolo queues a single player for a template and returns the side the
// player was placed on.
func (e *Engine) EnqueueSolo(p PlayerID, id arena.TemplateID) (Side, error) {
	return e.EnqueueGroup(p, id, nil)
}

// EnqueueGroup queues leader and members as one ticket on a single side.
// Either every member is queued or none is. The leader is always part of the
// ticket and duplicate ids are collapsed.
func (e *Engine) EnqueueGroup(leader PlayerID, id arena.TemplateID, members []PlayerID) (Side, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enqueueLocked(leader, id, members)
}

// EnqueueParty snapshots the online members of groupID once and queues them
// with the leader.
func (e *Engine) EnqueueParty(leader PlayerID, groupID string, id arena.TemplateID) (Side, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enqueueLocked(leader, id, e.groups.OnlineMembers(groupID))
}

// unknownTemplate labels admissions for ids missing from the catalog. Ids come
// from clients, so they never become label values.
const unknownTemplate = "unknown"

func (e *Engine) enqueueLocked(leader PlayerID, id arena.TemplateID, members []PlayerID) (Side, error) {
	q, err := e.queue(id)
	if err != nil {
		metrics.Admissions.WithLabelValues(unknownTemplate, ReasonCode(ErrInvalidTemplate)).Inc()
		return 0, refuse(leader, ErrInvalidTemplate)
	}
	label := q.template.Name

	roster := dedupe(leader, members)
	for _, m := range roster {
		if err := e.checkAdmission(m, q.template); err != nil {
			metrics.Admissions.WithLabelValues(label, ReasonCode(err)).Inc()
			log.Debug().Err(err).Str("leader", string(leader)).Str("template", label).Msg("engine: admission refused")
			return 0, err
		}
	}

	side, ok := chooseSide(q.sizes(), q.template.RequiredPlayers(), len(roster), e.rng.IntN(2) == 0)
	if !ok {
		metrics.Admissions.WithLabelValues(label, ReasonCode(ErrInsufficientRoom)).Inc()
		return 0, refuse(leader, ErrInsufficientRoom)
	}

	t := &ticket{
		id:       uuid.NewString(),
		leader:   leader,
		members:  roster,
		template: id,
		side:     side,
		joinedAt: e.now(),
	}
	q.teams[side] = append(q.teams[side], t)
	for _, m := range roster {
		c := e.player(m)
		c.ticket = t
		c.accepted = false
		e.notifier.Notify(m, EventQueued, Payload{TemplateID: id, Template: q.template.Name, Side: side.String()})
	}
	metrics.Admissions.WithLabelValues(label, "queued").Add(float64(len(roster)))
	metrics.QueuedPlayers.WithLabelValues(label).Add(float64(len(roster)))
	log.Info().Str("ticket", t.id).Str("leader", string(leader)).Int("members", len(roster)).
		Str("template", label).Str("side", side.String()).Msg("engine: ticket queued")

	e.evaluateQuorum(id, q)
	return side, nil
}

func dedupe(leader PlayerID, members []PlayerID) []PlayerID {
	out := []PlayerID{leader}
	seen := map[PlayerID]bool{leader: true}
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// checkAdmission runs the per-player gates. It has no side effects.
func (e *Engine) checkAdmission(p PlayerID, t *arena.Template) error {
	now := e.now()
	c, known := e.players[p]
	if known {
		if c.ticket != nil || c.match != 0 {
			return refuse(p, ErrNotJoinable)
		}
		if now.Before(c.deserterUntil) {
			return &AdmissionError{Reason: ErrDeserterCooldown, Player: p, Remaining: c.deserterUntil.Sub(now)}
		}
		if now.Before(c.cooldownUntil) {
			return &AdmissionError{Reason: ErrQueueCooldown, Player: p, Remaining: c.cooldownUntil.Sub(now)}
		}
	}
	if e.profiles == nil {
		return nil
	}
	if e.profiles.InBattlegroundMap(p) {
		return refuse(p, ErrAlreadyInBattleground)
	}
	level, ok := e.profiles.Level(p)
	if !ok {
		return refuse(p, ErrNotJoinable)
	}
	if !t.LevelAllowed(level) {
		return refuse(p, ErrLevelOutOfRange)
	}
	return nil
}

// LeaveQueue removes a player from whatever queue holds them. It never fails:
// a player without a ticket is a no-op. Leaving while a ready-check is in
// progress voids that ready-check for everyone.
func (e *Engine) LeaveQueue(p PlayerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveQueueLocked(p)
	return nil
}

// DeclineReady is a refusal of the ready-check; it leaves the queue.
func (e *Engine) DeclineReady(p PlayerID) error {
	return e.LeaveQueue(p)
}

func (e *Engine) leaveQueueLocked(p PlayerID) bool {
	c, ok := e.players[p]
	if !ok || c.ticket == nil {
		return false
	}
	t := c.ticket
	q, ok := e.queues[t.template]
	c.ticket = nil
	c.accepted = false
	if ok {
		t.remove(p)
		if len(t.members) == 0 {
			q.dropTicket(t)
		}
		metrics.QueuedPlayers.WithLabelValues(q.template.Name).Dec()
		if q.state != Filling {
			e.voidReadyCheck(t.template, q, p)
		}
	}
	e.notifier.Notify(p, EventLeftQueue, Payload{TemplateID: t.template})
	e.armQueueCooldown(p, c)
	log.Info().Str("player", string(p)).Uint32("template", uint32(t.template)).Msg("engine: player left queue")
	return true
}

// evaluateQuorum moves a Filling queue into ReadyCheck when both rosters are
// full. Any other state is left alone.
func (e *Engine) evaluateQuorum(id arena.TemplateID, q *queueState) {
	if q.state != Filling {
		return
	}
	req := q.template.RequiredPlayers()
	sizes := q.sizes()
	if sizes[SideA] != req || sizes[SideB] != req {
		return
	}
	q.state = ReadyCheck
	q.generation++
	log.Info().Str("template", q.template.Name).Int("required", req).Msg("engine: quorum reached")
	e.reserveOrRequeue(id, q)
}
