package intake

import (
	"sync"

	"battleground-matchmaker/matchmaking"
	"battleground-matchmaker/queues"
)

// Profiles caches the player and group snapshots pushed by the game world and
// serves them to the engine's admission checks. A player with a profile is
// considered online.
type Profiles struct {
	mu      sync.RWMutex
	players map[matchmaking.PlayerID]queues.Profile
	groups  map[string][]matchmaking.PlayerID
}

func NewProfiles() *Profiles {
	return &Profiles{
		players: make(map[matchmaking.PlayerID]queues.Profile),
		groups:  make(map[string][]matchmaking.PlayerID),
	}
}

func (c *Profiles) Update(p matchmaking.PlayerID, prof queues.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players[p] = prof
}

// Forget drops a player that went offline.
func (c *Profiles) Forget(p matchmaking.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.players, p)
}

// SetGroup replaces a group roster. An empty roster removes the group.
func (c *Profiles) SetGroup(id string, members []matchmaking.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(members) == 0 {
		delete(c.groups, id)
		return
	}
	c.groups[id] = append([]matchmaking.PlayerID(nil), members...)
}

func (c *Profiles) Level(p matchmaking.PlayerID) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prof, ok := c.players[p]
	return prof.Level, ok
}

func (c *Profiles) InBattlegroundMap(p matchmaking.PlayerID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.players[p].InBattlegroundMap
}

func (c *Profiles) Location(p matchmaking.PlayerID) (matchmaking.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prof, ok := c.players[p]
	if !ok || prof.MapID == "" {
		return matchmaking.Location{}, false
	}
	return matchmaking.Location{MapID: prof.MapID, X: prof.X, Y: prof.Y}, true
}

// OnlineMembers returns the roster members that currently have a profile.
func (c *Profiles) OnlineMembers(groupID string) []matchmaking.PlayerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []matchmaking.PlayerID
	for _, p := range c.groups[groupID] {
		if _, ok := c.players[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
