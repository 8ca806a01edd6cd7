package matchmaking

import (
	"errors"
	"fmt"
	"time"

	"battleground-matchmaker/arena"
)

// Admission reasons. Every admission failure wraps exactly one of these.
var (
	ErrNotJoinable           = errors.New("not joinable")
	ErrInsufficientRoom      = errors.New("insufficient room")
	ErrDeserterCooldown      = errors.New("deserter cooldown")
	ErrQueueCooldown         = errors.New("queue cooldown")
	ErrLevelOutOfRange       = errors.New("level out of range")
	ErrAlreadyInBattleground = errors.New("already in battleground")
	ErrInvalidTemplate       = errors.New("invalid template")
)

// Lifecycle errors.
var (
	// ErrSlotUnavailable never reaches players; the ready-check retries.
	ErrSlotUnavailable = arena.ErrSlotUnavailable
	ErrMatchFull       = errors.New("match full")
	ErrNoOp            = errors.New("no-op")
)

// AdmissionError reports why a player could not be queued.
type AdmissionError struct {
	Reason error
	Player PlayerID
	// Remaining is set for cooldown reasons.
	Remaining time.Duration
}

func (e *AdmissionError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("admission of %s refused: %v (%s remaining)", e.Player, e.Reason, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("admission of %s refused: %v", e.Player, e.Reason)
}

func (e *AdmissionError) Unwrap() error { return e.Reason }

func refuse(p PlayerID, reason error) *AdmissionError {
	return &AdmissionError{Reason: reason, Player: p}
}

var userMessages = map[error]string{
	ErrNotJoinable:           "You cannot join this battleground right now.",
	ErrInsufficientRoom:      "There is not enough room for your whole party on either side.",
	ErrDeserterCooldown:      "You recently deserted a battleground and cannot queue yet.",
	ErrQueueCooldown:         "You left a queue recently. Please wait before queueing again.",
	ErrLevelOutOfRange:       "Your level does not meet this battleground's requirements.",
	ErrAlreadyInBattleground: "You cannot queue while inside a battleground.",
	ErrInvalidTemplate:       "This battleground does not exist.",
}

// UserMessage maps an admission error to its fixed player-facing text.
func UserMessage(err error) string {
	for reason, msg := range userMessages {
		if errors.Is(err, reason) {
			return msg
		}
	}
	return "Battleground request failed."
}

// ReasonCode is a stable machine-readable name for an admission reason.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotJoinable):
		return "not_joinable"
	case errors.Is(err, ErrInsufficientRoom):
		return "insufficient_room"
	case errors.Is(err, ErrDeserterCooldown):
		return "deserter_cooldown"
	case errors.Is(err, ErrQueueCooldown):
		return "queue_cooldown"
	case errors.Is(err, ErrLevelOutOfRange):
		return "level_out_of_range"
	case errors.Is(err, ErrAlreadyInBattleground):
		return "already_in_battleground"
	case errors.Is(err, ErrInvalidTemplate):
		return "invalid_template"
	case errors.Is(err, ErrMatchFull):
		return "match_full"
	case errors.Is(err, ErrNoOp):
		return "noop"
	default:
		return "internal"
	}
}
