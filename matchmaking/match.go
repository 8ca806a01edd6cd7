package matchmaking

import (
	"fmt"
	"sort"
	"time"

	"battleground-matchmaker/arena"
	"battleground-matchmaker/metrics"

	"github.com/rs/zerolog/log"
)

type MatchID uint32

type slotKey struct {
	template arena.TemplateID
	mapID    string
}

// Match is one started team. The two teams of a battleground are separate
// matches that share a map slot.
type Match struct {
	ID               MatchID
	TemplateID       arena.TemplateID
	Side             Side
	MapID            string
	Spawn            arena.Point
	Cemetery         *arena.Point
	QuitHook         string
	DeathHook        string
	Capacity         int
	DeserterDuration time.Duration

	members []*member
	slot    slotKey
}

type member struct {
	player PlayerID
	// back is where the player returns on a voluntary leave; only set for
	// players who came in through the queue.
	back     *Location
	position arena.Point
}

func (m *Match) find(p PlayerID) int {
	for i, x := range m.members {
		if x.player == p {
			return i
		}
	}
	return -1
}

// MatchInfo is a read-only view of a match.
type MatchInfo struct {
	ID         MatchID
	TemplateID arena.TemplateID
	Side       Side
	MapID      string
	Members    []PlayerID
	Capacity   int
}

type registry struct {
	matches map[MatchID]*Match
	free    []MatchID
	next    MatchID
}

func newRegistry() *registry {
	return &registry{matches: make(map[MatchID]*Match)}
}

// create allocates the lowest free id, reusing ids of destroyed matches.
func (r *registry) create(t *arena.Template, slot *arena.MapSlot, side Side, key slotKey) *Match {
	var id MatchID
	if len(r.free) > 0 {
		id = r.free[0]
		r.free = r.free[1:]
	} else {
		r.next++
		id = r.next
	}
	cfg := slot.Sides[side]
	m := &Match{
		ID:               id,
		TemplateID:       t.ID,
		Side:             side,
		MapID:            slot.MapID,
		Spawn:            cfg.Spawn,
		Cemetery:         cfg.Cemetery,
		QuitHook:         cfg.QuitHook,
		DeathHook:        cfg.DeathHook,
		Capacity:         t.Capacity(),
		DeserterDuration: t.DeserterDuration,
		slot:             key,
	}
	r.matches[id] = m
	return m
}

func (r *registry) release(id MatchID) {
	if _, ok := r.matches[id]; !ok {
		return
	}
	delete(r.matches, id)
	r.free = append(r.free, id)
	sort.Slice(r.free, func(i, j int) bool { return r.free[i] < r.free[j] })
}

func (r *registry) get(id MatchID) (*Match, bool) {
	m, ok := r.matches[id]
	return m, ok
}

// JoinMatch adds a player to a running match outside the queue, for example a
// late rejoin. Such players get no return point.
func (e *Engine) JoinMatch(id MatchID, p PlayerID, fromQueue bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches.get(id)
	if !ok {
		return ErrNoOp
	}
	if c, ok := e.players[p]; ok {
		if c.match != 0 {
			return ErrNoOp
		}
		if c.ticket != nil {
			return refuse(p, ErrNotJoinable)
		}
	}
	return e.joinLocked(m, p, fromQueue)
}

func (e *Engine) joinLocked(m *Match, p PlayerID, fromQueue bool) error {
	if len(m.members) >= m.Capacity {
		return ErrMatchFull
	}
	mem := &member{player: p, position: m.Spawn}
	if fromQueue && e.profiles != nil {
		if loc, ok := e.profiles.Location(p); ok {
			mem.back = &loc
		}
	}
	m.members = append(m.members, mem)
	e.player(p).match = m.ID
	e.world.MovePlayer(p, m.MapID, m.Spawn.X, m.Spawn.Y)
	return nil
}

// LeaveMatch removes a player from their match. It reports false when the
// player was not in one. A disconnect runs the side's quit hook; applyDeserter
// arms the deserter penalty with the template's duration.
func (e *Engine) LeaveMatch(p PlayerID, isDisconnect, applyDeserter bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaveMatchLocked(p, isDisconnect, applyDeserter)
}

func (e *Engine) leaveMatchLocked(p PlayerID, isDisconnect, applyDeserter bool) bool {
	c, ok := e.players[p]
	if !ok || c.match == 0 {
		return false
	}
	m, ok := e.matches.get(c.match)
	c.match = 0
	if !ok {
		e.forgetIfIdle(p)
		return false
	}
	i := m.find(p)
	if i < 0 {
		e.forgetIfIdle(p)
		return false
	}
	mem := m.members[i]
	m.members = append(m.members[:i], m.members[i+1:]...)

	e.notifier.BroadcastToMatch(m.ID, fmt.Sprintf("%s has left the battlefield.", p))
	if isDisconnect && m.QuitHook != "" {
		e.hooks.RunHook(m.QuitHook)
	}
	if !isDisconnect && mem.back != nil {
		e.world.MovePlayer(p, mem.back.MapID, mem.back.X, mem.back.Y)
	}
	if applyDeserter {
		e.armDeserter(p, c, m.DeserterDuration)
	}
	log.Info().Str("player", string(p)).Uint32("match", uint32(m.ID)).Bool("disconnect", isDisconnect).
		Bool("deserter", applyDeserter).Msg("engine: player left match")

	if len(m.members) == 0 {
		e.destroyMatch(m)
	}
	e.forgetIfIdle(p)
	return true
}

// Disband force-removes every member without penalty and frees the match.
// Unknown ids are ignored.
func (e *Engine) Disband(id MatchID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches.get(id)
	if !ok {
		return
	}
	for len(m.members) > 0 {
		if !e.leaveMatchLocked(m.members[0].player, false, false) {
			// Context already gone; drop the stale member directly.
			m.members = m.members[1:]
		}
	}
	if _, still := e.matches.get(id); still {
		e.destroyMatch(m)
	}
}

func (e *Engine) destroyMatch(m *Match) {
	e.matches.release(m.ID)
	metrics.ActiveMatches.Dec()
	e.holds[m.slot]--
	if e.holds[m.slot] <= 0 {
		delete(e.holds, m.slot)
		if !e.catalog.Release(m.slot.template, m.slot.mapID) {
			log.Debug().Str("map", m.slot.mapID).Msg("engine: slot no longer in catalog")
		}
	}
	e.host.MatchEnded(m.ID)
	log.Info().Uint32("match", uint32(m.ID)).Str("map", m.MapID).Msg("engine: match destroyed")
}

// Respawn sends a player to their side's cemetery with full health. It
// returns ErrNoOp when the player is not in a match or the side has no
// cemetery.
func (e *Engine) Respawn(p PlayerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, mem := e.memberOf(p)
	if m == nil || m.Cemetery == nil {
		return ErrNoOp
	}
	mem.position = *m.Cemetery
	e.world.MovePlayer(p, m.MapID, m.Cemetery.X, m.Cemetery.Y)
	e.world.HealFull(p)
	return nil
}

// PlayerDied runs the side death hook of the player's match.
func (e *Engine) PlayerDied(p PlayerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, _ := e.memberOf(p)
	if m == nil {
		return false
	}
	if m.DeathHook != "" {
		e.hooks.RunHook(m.DeathHook)
	}
	return true
}

func (e *Engine) memberOf(p PlayerID) (*Match, *member) {
	c, ok := e.players[p]
	if !ok || c.match == 0 {
		return nil, nil
	}
	m, ok := e.matches.get(c.match)
	if !ok {
		return nil, nil
	}
	i := m.find(p)
	if i < 0 {
		return nil, nil
	}
	return m, m.members[i]
}

// MatchStatus returns a snapshot of a match.
func (e *Engine) MatchStatus(id MatchID) (MatchInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches.get(id)
	if !ok {
		return MatchInfo{}, false
	}
	info := MatchInfo{ID: m.ID, TemplateID: m.TemplateID, Side: m.Side, MapID: m.MapID, Capacity: m.Capacity}
	for _, mem := range m.members {
		info.Members = append(info.Members, mem.player)
	}
	return info, true
}

// PlayerMatch returns the match a player is in.
func (e *Engine) PlayerMatch(p PlayerID) (MatchID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.players[p]
	if !ok || c.match == 0 {
		return 0, false
	}
	return c.match, true
}

// ActiveMatches lists the ids of live matches in ascending order.
func (e *Engine) ActiveMatches() []MatchID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]MatchID, 0, len(e.matches.matches))
	for id := range e.matches.matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
