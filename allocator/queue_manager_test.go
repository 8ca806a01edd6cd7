package allocator

import (
	"testing"

	"battleground-matchmaker/matchmaking"
)

func start(a, b matchmaking.MatchID, mapID string) matchmaking.MatchStart {
	return matchmaking.MatchStart{MapID: mapID, Matches: [2]matchmaking.MatchID{a, b}}
}

func TestQueueManager_EnqueueDequeue(t *testing.T) {
	qm := NewQueueManager()
	fleet := "bat_a01"

	for i, s := range []matchmaking.MatchStart{start(1, 2, fleet), start(3, 4, fleet), start(5, 6, fleet)} {
		if pos := qm.Enqueue(fleet, uint64(i), s); pos != i+1 {
			t.Errorf("Enqueue() position = %d, want %d", pos, i+1)
		}
	}
	if n := qm.Len(fleet); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}

	entry := qm.Dequeue(fleet)
	if entry == nil || entry.Start.Matches[0] != 1 {
		t.Fatalf("Dequeue() = %#v, want the first start", entry)
	}
	if pos, ok := qm.Position(fleet, 6); !ok || pos != 2 {
		t.Errorf("Position(6) = %d, %v, want 2, true", pos, ok)
	}
}

func TestQueueManager_DequeueEmpty(t *testing.T) {
	qm := NewQueueManager()
	if entry := qm.Dequeue("nothing"); entry != nil {
		t.Errorf("Dequeue() on empty fleet = %#v, want nil", entry)
	}
	qm.Enqueue("bat_a01", 0, start(1, 2, "bat_a01"))
	qm.Dequeue("bat_a01")
	if snap := qm.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot() = %#v, want empty after draining", snap)
	}
}

func TestQueueManager_Remove(t *testing.T) {
	tests := []struct {
		name     string
		remove   matchmaking.MatchID
		want     bool
		wantLen  int
		checkID  matchmaking.MatchID
		checkPos int
	}{
		{name: "first by side B id", remove: 2, want: true, wantLen: 1, checkID: 3, checkPos: 1},
		{name: "last by side A id", remove: 3, want: true, wantLen: 1, checkID: 1, checkPos: 1},
		{name: "unknown", remove: 9, want: false, wantLen: 2, checkID: 4, checkPos: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm := NewQueueManager()
			qm.Enqueue("f", 0, start(1, 2, "f"))
			qm.Enqueue("f", 0, start(3, 4, "f"))

			if got := qm.Remove("f", tt.remove); got != tt.want {
				t.Errorf("Remove(%d) = %v, want %v", tt.remove, got, tt.want)
			}
			if n := qm.Len("f"); n != tt.wantLen {
				t.Errorf("Len() = %d, want %d", n, tt.wantLen)
			}
			if pos, _ := qm.Position("f", tt.checkID); pos != tt.checkPos {
				t.Errorf("Position(%d) = %d, want %d", tt.checkID, pos, tt.checkPos)
			}
		})
	}
}

func TestQueueManager_Snapshot(t *testing.T) {
	qm := NewQueueManager()
	qm.Enqueue("a", 0, start(1, 2, "a"))
	qm.Enqueue("a", 0, start(3, 4, "a"))
	qm.Enqueue("b", 0, start(5, 6, "b"))

	snap := qm.Snapshot()
	if snap["a"] != 2 || snap["b"] != 1 || len(snap) != 2 {
		t.Errorf("Snapshot() = %#v", snap)
	}
}
