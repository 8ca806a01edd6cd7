package queues

import (
	"context"
	"errors"
	"time"
)

const EnvelopeVersion = "1.0"

type CommandType string

const (
	CommandEnqueue      CommandType = "enqueue"
	CommandEnqueueParty CommandType = "enqueue-party"
	CommandLeaveQueue   CommandType = "leave-queue"
	CommandAcceptReady  CommandType = "accept-ready"
	CommandDeclineReady CommandType = "decline-ready"
	CommandJoinMatch    CommandType = "join-match"
	CommandLeaveMatch   CommandType = "leave-match"
	CommandRespawn      CommandType = "respawn"
	CommandUnitDied     CommandType = "unit-died"
	CommandDisband      CommandType = "disband"

	// Snapshot commands keep the coordinator's view of the game world current.
	CommandProfile CommandType = "profile"
	CommandGroup   CommandType = "group"
	CommandLogout  CommandType = "logout"
)

// Command is one request from the game world.
type Command struct {
	EnvelopeVersion string      `json:"envelopeVersion"`
	Type            CommandType `json:"type"`
	RequestID       string      `json:"requestId"`
	PlayerID        string      `json:"playerId,omitempty"`
	TemplateID      uint32      `json:"templateId,omitempty"`
	GroupID         string      `json:"groupId,omitempty"`
	Members         []string    `json:"members,omitempty"`
	MatchID         uint32      `json:"matchId,omitempty"`
	Disconnect      bool        `json:"disconnect,omitempty"`
	Deserter        bool        `json:"deserter,omitempty"`
	Unit            *Unit       `json:"unit,omitempty"`
	Profile         *Profile    `json:"profile,omitempty"`
}

// Unit identifies an entity that died inside a match.
type Unit struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Owner string `json:"owner,omitempty"`
}

// Profile is a player snapshot pushed by the game world.
type Profile struct {
	Level             int    `json:"level"`
	InBattlegroundMap bool   `json:"inBattlegroundMap,omitempty"`
	MapID             string `json:"mapId"`
	X                 int    `json:"x"`
	Y                 int    `json:"y"`
}

var ErrInvalidCommand = errors.New("queues: invalid command")

// Validate rejects commands that can never succeed. Such messages are dropped
// rather than retried.
func (c *Command) Validate() error {
	if c.RequestID == "" || c.Type == "" {
		return ErrInvalidCommand
	}
	switch c.Type {
	case CommandDisband:
		if c.MatchID == 0 {
			return ErrInvalidCommand
		}
	case CommandGroup:
		if c.GroupID == "" {
			return ErrInvalidCommand
		}
	case CommandUnitDied:
		if c.Unit == nil {
			return ErrInvalidCommand
		}
	default:
		if c.PlayerID == "" {
			return ErrInvalidCommand
		}
	}
	return nil
}

type ResultStatus string

const (
	StatusSuccess ResultStatus = "Success"
	StatusFailure ResultStatus = "Failure"
)

// CommandResult answers a Command.
type CommandResult struct {
	EnvelopeVersion string       `json:"envelopeVersion"`
	Type            string       `json:"type"`
	RequestID       string       `json:"requestId"`
	Command         CommandType  `json:"command"`
	PlayerID        string       `json:"playerId,omitempty"`
	Status          ResultStatus `json:"status"`
	Side            string       `json:"side,omitempty"`
	Reason          *string      `json:"reason,omitempty"`
	ErrorMessage    *string      `json:"errorMessage,omitempty"`
	RetryAfter      *string      `json:"retryAfter,omitempty"`
}

type EventType string

const (
	EventPlayer     EventType = "player-event"
	EventBroadcast  EventType = "match-broadcast"
	EventMove       EventType = "move-player"
	EventHeal       EventType = "heal-player"
	EventHook       EventType = "run-hook"
	EventStatus     EventType = "apply-status"
	EventMatchStart EventType = "match-started"
	EventMatchEnd   EventType = "match-ended"
)

// Event is an instruction or notice for the game world.
type Event struct {
	EnvelopeVersion string     `json:"envelopeVersion"`
	Type            EventType  `json:"type"`
	Kind            string     `json:"kind,omitempty"`
	PlayerID        string     `json:"playerId,omitempty"`
	TemplateID      uint32     `json:"templateId,omitempty"`
	Template        string     `json:"template,omitempty"`
	Side            string     `json:"side,omitempty"`
	MapID           string     `json:"mapId,omitempty"`
	MatchID         uint32     `json:"matchId,omitempty"`
	MatchIDs        []uint32   `json:"matchIds,omitempty"`
	Teams           [][]string `json:"teams,omitempty"`
	X               int        `json:"x,omitempty"`
	Y               int        `json:"y,omitempty"`
	Message         string     `json:"message,omitempty"`
	Hook            string     `json:"hook,omitempty"`
	Status          string     `json:"status,omitempty"`
	Duration        string     `json:"duration,omitempty"`
	GameServer      string     `json:"gameServer,omitempty"`
	Token           string     `json:"token,omitempty"`
	At              time.Time  `json:"at"`
}

type Subscriber interface {
	Start(ctx context.Context, handler func(context.Context, *Command) error) error
}

type Publisher interface {
	PublishResult(ctx context.Context, res *CommandResult) error
	PublishEvent(ctx context.Context, ev *Event) error
}
