package allocator

import "time"

// Status is the outcome of provisioning a game server for a started match.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailure Status = "Failure"
)

// Result records one provisioning attempt.
type Result struct {
	Fleet      string
	GameServer string
	Token      string
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}
