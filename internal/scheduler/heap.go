package scheduler

import (
	"container/heap"
	"time"

	"worldevents/internal/event"
)

// transition is one pending time-driven state change.
type transition struct {
	at time.Time
	id string
	to event.State
}

// transitionQueue is a min-heap ordered by transition time. One heap
// serves every live event, so the driver scales without a timer handle
// per event.
type transitionQueue []transition

func (q transitionQueue) Len() int { return len(q) }

func (q transitionQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].id < q[j].id
}

func (q transitionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *transitionQueue) Push(x any) { *q = append(*q, x.(transition)) }

func (q *transitionQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func (s *Service) pushTransitionLocked(t transition) {
	heap.Push(&s.pending, t)
}

// popDueLocked removes and returns the earliest transition if it is due
// at now.
func (s *Service) popDueLocked(now time.Time) (transition, bool) {
	if len(s.pending) == 0 || s.pending[0].at.After(now) {
		return transition{}, false
	}
	return heap.Pop(&s.pending).(transition), true
}
