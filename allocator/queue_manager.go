package allocator

import (
	"sync"
	"time"

	"battleground-matchmaker/matchmaking"
)

// QueueEntry is a started battleground waiting for a game server.
type QueueEntry struct {
	Seq       uint64
	Start     matchmaking.MatchStart
	Timestamp time.Time
	Position  int
}

// QueueManager keeps a FIFO of pending starts per fleet. The matchmaker runs
// as a single replica, so the queues live in memory.
type QueueManager struct {
	mu     sync.RWMutex
	queues map[string][]*QueueEntry // key: fleet name
}

func NewQueueManager() *QueueManager {
	return &QueueManager{
		queues: make(map[string][]*QueueEntry),
	}
}

// Enqueue appends a start to a fleet's queue and returns its position.
func (qm *QueueManager) Enqueue(fleet string, seq uint64, start matchmaking.MatchStart) int {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	entry := &QueueEntry{
		Seq:       seq,
		Start:     start,
		Timestamp: time.Now(),
	}
	qm.queues[fleet] = append(qm.queues[fleet], entry)
	renumber(qm.queues[fleet])
	return entry.Position
}

// Dequeue removes and returns the oldest start for a fleet.
func (qm *QueueManager) Dequeue(fleet string) *QueueEntry {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	queue := qm.queues[fleet]
	if len(queue) == 0 {
		return nil
	}
	entry := queue[0]
	if len(queue) == 1 {
		delete(qm.queues, fleet)
	} else {
		qm.queues[fleet] = queue[1:]
		renumber(qm.queues[fleet])
	}
	return entry
}

// Position returns where the start containing match id waits in its fleet.
func (qm *QueueManager) Position(fleet string, id matchmaking.MatchID) (int, bool) {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	for _, entry := range qm.queues[fleet] {
		if holds(entry, id) {
			return entry.Position, true
		}
	}
	return 0, false
}

// Remove drops the pending start containing match id, for example when the
// match ended before a server was found.
func (qm *QueueManager) Remove(fleet string, id matchmaking.MatchID) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	queue := qm.queues[fleet]
	for i, entry := range queue {
		if !holds(entry, id) {
			continue
		}
		queue = append(queue[:i], queue[i+1:]...)
		if len(queue) == 0 {
			delete(qm.queues, fleet)
		} else {
			qm.queues[fleet] = queue
			renumber(queue)
		}
		return true
	}
	return false
}

func (qm *QueueManager) Len(fleet string) int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return len(qm.queues[fleet])
}

// Snapshot returns queue lengths per fleet (for monitoring/debugging).
func (qm *QueueManager) Snapshot() map[string]int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	snapshot := make(map[string]int, len(qm.queues))
	for fleet, queue := range qm.queues {
		snapshot[fleet] = len(queue)
	}
	return snapshot
}

func renumber(queue []*QueueEntry) {
	for i, e := range queue {
		e.Position = i + 1
	}
}

func holds(e *QueueEntry, id matchmaking.MatchID) bool {
	return e.Start.Matches[matchmaking.SideA] == id || e.Start.Matches[matchmaking.SideB] == id
}
