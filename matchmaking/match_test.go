package matchmaking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaveMatch_DisconnectAppliesDeserter(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)
	id, ok := h.engine.PlayerMatch("p1")
	require.True(t, ok)
	info, _ := h.engine.MatchStatus(id)

	require.True(t, h.engine.LeaveMatch("p1", true, true))
	assert.False(t, h.engine.LeaveMatch("p1", true, true), "second leave is a no-op")

	require.NotEmpty(t, h.world.statuses)
	last := h.world.statuses[len(h.world.statuses)-1]
	assert.Equal(t, status{"p1", StatusDeserter, 5 * time.Minute}, last)
	assert.Contains(t, h.world.broadcasts, "p1 has left the battlefield.")

	quit := "quit_a"
	if info.Side == SideB {
		quit = "quit_b"
	}
	assert.Contains(t, h.world.hooks, quit)

	_, err := h.engine.EnqueueSolo("p1", tierra)
	var adm *AdmissionError
	require.ErrorAs(t, err, &adm)
	assert.ErrorIs(t, err, ErrDeserterCooldown)
	assert.Equal(t, 5*time.Minute, adm.Remaining)
	assert.Equal(t, 5*time.Minute, h.engine.DeserterRemaining("p1"))

	h.advance(5*time.Minute - time.Second)
	_, err = h.engine.EnqueueSolo("p1", tierra)
	require.ErrorIs(t, err, ErrDeserterCooldown)

	h.advance(time.Second)
	assert.Equal(t, 1, h.world.count(EventDeserterExpired))
	assert.Zero(t, h.engine.DeserterRemaining("p1"))
	_, err = h.engine.EnqueueSolo("p1", tierra)
	require.NoError(t, err)
}

func TestLeaveMatch_VoluntaryReturnsHome(t *testing.T) {
	h := newHarness(t)
	h.world.locations["p2"] = Location{MapID: "geffen", X: 120, Y: 60}
	h.startMatch(t, fourPlayers...)

	require.True(t, h.engine.LeaveMatch("p2", false, false))
	mv, ok := h.world.lastMove("p2")
	require.True(t, ok)
	assert.Equal(t, move{"p2", "geffen", 120, 60}, mv)
	assert.Zero(t, h.engine.DeserterRemaining("p2"))
	for _, s := range h.world.statuses {
		assert.NotEqual(t, StatusDeserter, s.kind)
	}
}

func TestLeaveMatch_LastMemberFreesSlot(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)
	tmpl, _ := h.catalog.Template(tierra)

	a, _ := h.engine.PlayerMatch("p1")
	info, _ := h.engine.MatchStatus(a)
	for _, p := range info.Members {
		h.engine.LeaveMatch(p, false, false)
	}
	assert.Len(t, h.engine.ActiveMatches(), 1)
	assert.True(t, tmpl.Slots[0].IsReserved(), "the other team still holds the map")

	for _, id := range h.engine.ActiveMatches() {
		h.engine.Disband(id)
	}
	assert.Empty(t, h.engine.ActiveMatches())
	assert.False(t, tmpl.Slots[0].IsReserved())
	assert.ElementsMatch(t, []MatchID{1, 2}, h.world.ended)
}

func TestDisband_NoPenaltyAndReturnsPlayers(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)
	statuses := len(h.world.statuses)

	h.engine.Disband(1)
	h.engine.Disband(1)
	h.engine.Disband(99)

	_, ok := h.engine.MatchStatus(1)
	assert.False(t, ok)
	assert.Equal(t, []MatchID{2}, h.engine.ActiveMatches())
	assert.Len(t, h.world.statuses, statuses, "no deserter for a disband")
	for _, p := range fourPlayers {
		if _, in := h.engine.PlayerMatch(p); in {
			continue
		}
		mv, _ := h.world.lastMove(p)
		assert.Equal(t, "prontera", mv.mapID)
	}
}

func TestMatchIDs_AreReused(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)
	h.engine.Disband(1)
	h.engine.Disband(2)

	h.startMatch(t, "q1", "q2", "q3", "q4")
	assert.Equal(t, []MatchID{1, 2}, h.engine.ActiveMatches())
}

func TestJoinMatch(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)

	assert.ErrorIs(t, h.engine.JoinMatch(77, "late", false), ErrNoOp)
	assert.ErrorIs(t, h.engine.JoinMatch(1, "p1", false), ErrNoOp, "already in a match")
	h.enqueueAll(t, tierra, "queued")
	assert.ErrorIs(t, h.engine.JoinMatch(1, "queued", false), ErrNotJoinable)

	require.NoError(t, h.engine.JoinMatch(1, "late", false))
	id, ok := h.engine.PlayerMatch("late")
	require.True(t, ok)
	assert.Equal(t, MatchID(1), id)
	assert.ErrorIs(t, h.engine.JoinMatch(1, "later", false), ErrMatchFull, "capacity is three per side")

	// Late joiners have no return point and stay where they are.
	require.True(t, h.engine.LeaveMatch("late", false, false))
	mv, _ := h.world.lastMove("late")
	assert.Equal(t, "bat_a01", mv.mapID)
}

func TestRespawn(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.engine.Respawn("p1"), ErrNoOp)

	h.startMatch(t, fourPlayers...)
	start := h.world.started[0]
	a, b := start.Teams[SideA][0], start.Teams[SideB][0]

	require.NoError(t, h.engine.Respawn(a))
	mv, _ := h.world.lastMove(a)
	assert.Equal(t, move{a, "bat_a01", 45, 370}, mv)
	assert.Contains(t, h.world.heals, a)

	assert.ErrorIs(t, h.engine.Respawn(b), ErrNoOp, "side B has no cemetery")
}

func TestUnitDied(t *testing.T) {
	h := newHarness(t)
	h.startMatch(t, fourPlayers...)
	start := h.world.started[0]
	a, b := start.Teams[SideA][0], start.Teams[SideB][0]

	tests := []struct {
		name      string
		unit      Unit
		inMatch   bool
		wantHooks []string
	}{
		{name: "player side A", unit: Unit{OwnerKind: OwnerPlayer, ID: string(a)}, inMatch: true, wantHooks: []string{"death_a"}},
		{name: "player side B without hook", unit: Unit{OwnerKind: OwnerPlayer, ID: string(b)}, inMatch: true},
		{name: "summon of side A", unit: Unit{OwnerKind: OwnerSummon, ID: "homun-1", Owner: a}, inMatch: true, wantHooks: []string{"death_a"}},
		{name: "mercenary of side A", unit: Unit{OwnerKind: OwnerMercenary, ID: "merc-2", Owner: a}, inMatch: true, wantHooks: []string{"death_a"}},
		{name: "summon without owner", unit: Unit{OwnerKind: OwnerSummon, ID: "homun-2"}},
		{name: "mercenary of outsider", unit: Unit{OwnerKind: OwnerMercenary, ID: "merc-1", Owner: "outsider"}},
		{name: "unowned", unit: Unit{OwnerKind: OwnerNone, ID: "poring"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := len(h.world.hooks)
			_, in := h.engine.MatchOf(tt.unit)
			assert.Equal(t, tt.inMatch, in)
			assert.Equal(t, tt.inMatch, h.engine.UnitDied(tt.unit))
			got := append([]string(nil), h.world.hooks[hooks:]...)
			if len(tt.wantHooks) == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.wantHooks, got)
			}
		})
	}
}
