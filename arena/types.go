package arena

import (
	"time"
)

type TemplateID uint32

const (
	DefaultStartDelay       = 30 * time.Second
	DefaultDeserterDuration = 10 * time.Minute
)

// Point is a cell on a map.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SideConfig is what one team gets on a slot's map.
type SideConfig struct {
	Spawn     Point  `json:"spawn"`
	Cemetery  *Point `json:"cemetery,omitempty"`
	QuitHook  string `json:"quitHook,omitempty"`
	DeathHook string `json:"deathHook,omitempty"`
}

// MapSlot is one concrete map a template can run on. Slots are owned by their
// template and reserved by at most one match formation at a time.
type MapSlot struct {
	MapID     string
	StartHook string
	Sides     [2]SideConfig

	reserved bool
}

// Template is the static definition of one battleground type.
type Template struct {
	ID                TemplateID
	Name              string
	MinPlayersPerSide int
	MaxPlayersPerSide int
	MinLevel          int
	// MaxLevel of 0 means no upper bound.
	MaxLevel         int
	DeserterDuration time.Duration
	StartDelay       time.Duration
	Slots            []*MapSlot
}

// RequiredPlayers is the per-side roster size that triggers a ready-check.
func (t *Template) RequiredPlayers() int { return t.MinPlayersPerSide }

// Capacity is the most members a started team can hold.
func (t *Template) Capacity() int { return t.MaxPlayersPerSide }

func (t *Template) LevelAllowed(level int) bool {
	if level < t.MinLevel {
		return false
	}
	return t.MaxLevel == 0 || level <= t.MaxLevel
}
