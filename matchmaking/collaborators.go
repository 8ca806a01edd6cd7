package matchmaking

import (
	"time"

	"battleground-matchmaker/arena"
)

// Every collaborator call is made while the engine holds its lock, so
// implementations must return promptly and never call back into the Engine.

// Players answers admission questions about a character.
type Players interface {
	// Level returns false when the player is unknown.
	Level(p PlayerID) (int, bool)
	InBattlegroundMap(p PlayerID) bool
	Location(p PlayerID) (Location, bool)
}

// Groups resolves party or guild membership at enqueue time.
type Groups interface {
	OnlineMembers(groupID string) []PlayerID
}

type World interface {
	MovePlayer(p PlayerID, mapID string, x, y int)
	HealFull(p PlayerID)
}

type EventKind string

const (
	EventQueued              EventKind = "queued"
	EventLeftQueue           EventKind = "left-queue"
	EventReadyCheckStarted   EventKind = "ready-check-started"
	EventReadyCheckExpired   EventKind = "ready-check-expired"
	EventReadyCheckCancelled EventKind = "ready-check-cancelled"
	EventMatchStarting       EventKind = "match-starting"
	EventMatchStarted        EventKind = "match-started"
	EventStartAborted        EventKind = "start-aborted"
	EventQueueClosed         EventKind = "queue-closed"
	EventRemovedFromQueue    EventKind = "removed-from-queue"
	EventDeserterExpired     EventKind = "deserter-expired"
)

// Payload carries the details of a player notification. Unused fields stay zero.
type Payload struct {
	TemplateID arena.TemplateID `json:"templateId,omitempty"`
	Template   string           `json:"template,omitempty"`
	Side       string           `json:"side,omitempty"`
	MapID      string           `json:"mapId,omitempty"`
	MatchID    MatchID          `json:"matchId,omitempty"`
	Timeout    time.Duration    `json:"timeout,omitempty"`
}

type Notifier interface {
	Notify(p PlayerID, kind EventKind, payload Payload)
	BroadcastToMatch(m MatchID, message string)
}

type Hooks interface {
	RunHook(name string)
}

type StatusKind string

const (
	StatusDeserter      StatusKind = "deserter"
	StatusQueueCooldown StatusKind = "queue-cooldown"
)

// StatusEffects makes penalties visible to the rest of the game.
type StatusEffects interface {
	ApplyTimedStatus(p PlayerID, kind StatusKind, d time.Duration)
}

// MatchStart describes a freshly started battleground.
type MatchStart struct {
	TemplateID arena.TemplateID
	Template   string
	MapID      string
	Matches    [2]MatchID
	Teams      [2][]PlayerID
}

// ArenaHost is told about match lifecycle so it can provision the map server.
type ArenaHost interface {
	MatchStarted(start MatchStart)
	MatchEnded(id MatchID)
}

type nopGroups struct{}

func (nopGroups) OnlineMembers(string) []PlayerID { return nil }

type nopWorld struct{}

func (nopWorld) MovePlayer(PlayerID, string, int, int) {}
func (nopWorld) HealFull(PlayerID)                     {}

type nopNotifier struct{}

func (nopNotifier) Notify(PlayerID, EventKind, Payload) {}
func (nopNotifier) BroadcastToMatch(MatchID, string)    {}

type nopHooks struct{}

func (nopHooks) RunHook(string) {}

type nopStatus struct{}

func (nopStatus) ApplyTimedStatus(PlayerID, StatusKind, time.Duration) {}

type nopHost struct{}

func (nopHost) MatchStarted(MatchStart) {}
func (nopHost) MatchEnded(MatchID)      {}
