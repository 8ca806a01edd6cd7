package matchmaking

import (
	"time"

	"battleground-matchmaker/arena"
	"battleground-matchmaker/scheduler"
)

type PlayerID string

type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) Other() Side { return 1 - s }

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

type ReadyState int

const (
	Filling ReadyState = iota
	ReadyCheck
	Starting
)

func (s ReadyState) String() string {
	switch s {
	case ReadyCheck:
		return "ReadyCheck"
	case Starting:
		return "Starting"
	default:
		return "Filling"
	}
}

// ticket is one admission unit. Every member of a ticket sits on the same side.
type ticket struct {
	id       string
	leader   PlayerID
	members  []PlayerID
	template arena.TemplateID
	side     Side
	joinedAt time.Time
}

func (t *ticket) remove(p PlayerID) bool {
	for i, m := range t.members {
		if m == p {
			t.members = append(t.members[:i], t.members[i+1:]...)
			return true
		}
	}
	return false
}

// queueState is the per-template roster pair and ready-check state machine.
// Timer callbacks refer to it only through (template id, generation).
type queueState struct {
	template   *arena.Template
	teams      [2][]*ticket
	state      ReadyState
	accepted   int
	slot       *arena.MapSlot
	requeue    scheduler.Handle
	expire     scheduler.Handle
	start      scheduler.Handle
	generation uint64
}

func (q *queueState) size(s Side) int {
	n := 0
	for _, t := range q.teams[s] {
		n += len(t.members)
	}
	return n
}

func (q *queueState) sizes() [2]int {
	return [2]int{q.size(SideA), q.size(SideB)}
}

func (q *queueState) roster(s Side) []PlayerID {
	out := make([]PlayerID, 0, q.size(s))
	for _, t := range q.teams[s] {
		out = append(out, t.members...)
	}
	return out
}

func (q *queueState) everyone() []PlayerID {
	return append(q.roster(SideA), q.roster(SideB)...)
}

func (q *queueState) dropTicket(t *ticket) {
	side := q.teams[t.side]
	for i, x := range side {
		if x == t {
			q.teams[t.side] = append(side[:i], side[i+1:]...)
			return
		}
	}
}

// playerContext is the per-player queue bookkeeping. It is dropped once the
// player holds nothing (no ticket, match or running penalty).
type playerContext struct {
	ticket        *ticket
	accepted      bool
	match         MatchID
	deserterUntil time.Time
	deserterTimer scheduler.Handle
	cooldownUntil time.Time
	cooldownTimer scheduler.Handle
}

func (c *playerContext) idle() bool {
	return c.ticket == nil && c.match == 0 && c.deserterUntil.IsZero() && c.cooldownUntil.IsZero()
}

// QueueStatus is a read-only view of one template queue.
type QueueStatus struct {
	TemplateID arena.TemplateID
	Name       string
	State      ReadyState
	TeamA      []PlayerID
	TeamB      []PlayerID
	Required   int
	Accepted   int
	// ReservedMap is empty while no slot is held.
	ReservedMap string
}

// Location is where a player stands in the world.
type Location struct {
	MapID string
	X, Y  int
}
