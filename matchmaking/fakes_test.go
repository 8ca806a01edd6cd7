package matchmaking

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"battleground-matchmaker/arena"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type notice struct {
	player  PlayerID
	kind    EventKind
	payload Payload
}

type move struct {
	player PlayerID
	mapID  string
	x, y   int
}

type status struct {
	player PlayerID
	kind   StatusKind
	d      time.Duration
}

// world records every collaborator call the engine makes.
type world struct {
	mu         sync.Mutex
	levels     map[PlayerID]int
	inBG       map[PlayerID]bool
	locations  map[PlayerID]Location
	groups     map[string][]PlayerID
	notices    []notice
	broadcasts []string
	moves      []move
	heals      []PlayerID
	hooks      []string
	statuses   []status
	started    []MatchStart
	ended      []MatchID
}

func newWorld() *world {
	return &world{
		levels:    map[PlayerID]int{},
		inBG:      map[PlayerID]bool{},
		locations: map[PlayerID]Location{},
		groups:    map[string][]PlayerID{},
	}
}

func (w *world) Level(p PlayerID) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.levels[p]; ok {
		return l, true
	}
	// Unlisted players are a valid mid-level character unless marked otherwise.
	if p == "ghost" {
		return 0, false
	}
	return 50, true
}

func (w *world) InBattlegroundMap(p PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inBG[p]
}

func (w *world) Location(p PlayerID) (Location, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.locations[p]; ok {
		return l, true
	}
	return Location{MapID: "prontera", X: 150, Y: 150}, true
}

func (w *world) OnlineMembers(g string) []PlayerID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]PlayerID(nil), w.groups[g]...)
}

func (w *world) Notify(p PlayerID, kind EventKind, payload Payload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, notice{p, kind, payload})
}

func (w *world) BroadcastToMatch(m MatchID, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.broadcasts = append(w.broadcasts, msg)
}

func (w *world) MovePlayer(p PlayerID, mapID string, x, y int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.moves = append(w.moves, move{p, mapID, x, y})
}

func (w *world) HealFull(p PlayerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heals = append(w.heals, p)
}

func (w *world) RunHook(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, name)
}

func (w *world) ApplyTimedStatus(p PlayerID, kind StatusKind, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses = append(w.statuses, status{p, kind, d})
}

func (w *world) MatchStarted(s MatchStart) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = append(w.started, s)
}

func (w *world) MatchEnded(id MatchID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ended = append(w.ended, id)
}

func (w *world) count(kind EventKind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, x := range w.notices {
		if x.kind == kind {
			n++
		}
	}
	return n
}

func (w *world) noticesFor(kind EventKind) []PlayerID {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []PlayerID
	for _, x := range w.notices {
		if x.kind == kind {
			out = append(out, x.player)
		}
	}
	return out
}

func (w *world) lastMove(p PlayerID) (move, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.moves) - 1; i >= 0; i-- {
		if w.moves[i].player == p {
			return w.moves[i], true
		}
	}
	return move{}, false
}

const tierra arena.TemplateID = 1

func tierraTemplate() *arena.Template {
	return &arena.Template{
		ID:                tierra,
		Name:              "Tierra",
		MinPlayersPerSide: 2,
		MaxPlayersPerSide: 3,
		MinLevel:          10,
		MaxLevel:          99,
		DeserterDuration:  5 * time.Minute,
		StartDelay:        30 * time.Second,
		Slots: []*arena.MapSlot{{
			MapID:     "bat_a01",
			StartHook: "tierra_start",
			Sides: [2]arena.SideConfig{
				{Spawn: arena.Point{X: 50, Y: 374}, Cemetery: &arena.Point{X: 45, Y: 370}, QuitHook: "quit_a", DeathHook: "death_a"},
				{Spawn: arena.Point{X: 42, Y: 16}, QuitHook: "quit_b"},
			},
		}},
	}
}

type harness struct {
	engine  *Engine
	clock   *testingclock.FakeClock
	world   *world
	catalog *arena.Catalog
}

func newHarness(t *testing.T, templates ...*arena.Template) *harness {
	t.Helper()
	if len(templates) == 0 {
		templates = []*arena.Template{tierraTemplate()}
	}
	c, err := arena.NewCatalog(templates...)
	require.NoError(t, err)
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	w := newWorld()
	e := NewEngine(c,
		WithClock(clk),
		WithRand(rand.New(rand.NewPCG(7, 11))),
		WithPlayers(w),
		WithGroups(w),
		WithWorld(w),
		WithNotifier(w),
		WithHooks(w),
		WithStatusEffects(w),
		WithArenaHost(w),
	)
	return &harness{engine: e, clock: clk, world: w, catalog: c}
}

func (h *harness) advance(d time.Duration) {
	h.clock.Step(d)
	h.engine.Tick()
}

func (h *harness) status(t *testing.T, id arena.TemplateID) QueueStatus {
	t.Helper()
	st, err := h.engine.QueueStatus(id)
	require.NoError(t, err)
	return st
}

func (h *harness) enqueueAll(t *testing.T, id arena.TemplateID, players ...PlayerID) {
	t.Helper()
	for _, p := range players {
		_, err := h.engine.EnqueueSolo(p, id)
		require.NoError(t, err, "enqueue %s", p)
	}
}

func (h *harness) acceptAll(t *testing.T, players ...PlayerID) {
	t.Helper()
	for _, p := range players {
		require.NoError(t, h.engine.AcceptReady(p), "accept %s", p)
	}
}

// startMatch fills, accepts and launches a 2v2 on the default template.
func (h *harness) startMatch(t *testing.T, players ...PlayerID) {
	t.Helper()
	h.enqueueAll(t, tierra, players...)
	h.acceptAll(t, players...)
	h.advance(30 * time.Second)
	require.Len(t, h.engine.ActiveMatches(), 2)
}
