package scheduler

import (
	"container/heap"
	"time"

	"k8s.io/utils/clock"
)

// Handle identifies a scheduled timer. The zero Handle never refers to a timer,
// so it can be used as "not armed".
type Handle uint64

// Scheduler is a cancellable timer queue ordered by deadline. It is not safe
// for concurrent use; the owner serializes access (the matchmaking engine holds
// its mutex around every call).
type Scheduler struct {
	clock   clock.PassiveClock
	entries timerHeap
	byID    map[Handle]*entry
	next    Handle
	seq     uint64
	wake    chan struct{}
}

type entry struct {
	handle   Handle
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
}

// New builds a scheduler reading deadlines from c; nil means the real clock.
func New(c clock.PassiveClock) *Scheduler {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Scheduler{
		clock: c,
		byID:  make(map[Handle]*entry),
		wake:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Clock() clock.PassiveClock { return s.clock }

// After arms fn to run once d has elapsed. Timers with equal deadlines fire in
// the order they were armed.
func (s *Scheduler) After(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	s.next++
	s.seq++
	e := &entry{handle: s.next, deadline: s.clock.Now().Add(d), seq: s.seq, fn: fn}
	heap.Push(&s.entries, e)
	s.byID[e.handle] = e
	if s.entries[0] == e {
		s.signal()
	}
	return e.handle
}

// Cancel disarms h. Unknown, zero, or already-fired handles are ignored.
func (s *Scheduler) Cancel(h Handle) bool {
	e, ok := s.byID[h]
	if !ok {
		return false
	}
	heap.Remove(&s.entries, e.index)
	delete(s.byID, h)
	return true
}

// Pending reports whether h is still armed.
func (s *Scheduler) Pending(h Handle) bool {
	_, ok := s.byID[h]
	return ok
}

func (s *Scheduler) Len() int { return len(s.entries) }

// Next returns the earliest deadline, if any timer is armed.
func (s *Scheduler) Next() (time.Time, bool) {
	if len(s.entries) == 0 {
		return time.Time{}, false
	}
	return s.entries[0].deadline, true
}

// PopDue removes and returns the callback of the earliest timer whose deadline
// is not after now. Callers loop until ok is false so that timers armed by a
// callback with a zero delay still fire in the same pass.
func (s *Scheduler) PopDue(now time.Time) (fn func(), ok bool) {
	if len(s.entries) == 0 || s.entries[0].deadline.After(now) {
		return nil, false
	}
	e := heap.Pop(&s.entries).(*entry)
	delete(s.byID, e.handle)
	return e.fn, true
}

// Wake is signalled whenever a new timer becomes the earliest deadline.
func (s *Scheduler) Wake() <-chan struct{} { return s.wake }

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

type timerHeap []*entry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
