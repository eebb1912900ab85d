package scope

import "sync/atomic"

// DefaultDrainInterval is the number of Specialize calls between two drains
// of the notification queue.
const DefaultDrainInterval = 64

var (
	// pending is a lock-free stack of tokens whose Scope was reclaimed.
	pending atomic.Pointer[node]

	drainInterval atomic.Int64
	specializeOps atomic.Uint64

	createdTotal atomic.Uint64
	closedTotal  atomic.Uint64
)

type node struct {
	token *token
	next  *node
}

func init() {
	drainInterval.Store(DefaultDrainInterval)
}

// enqueue is the cleanup registered for every Scope. It runs on the
// runtime's cleanup goroutine and must not block.
func enqueue(t *token) {
	n := &node{token: t}
	for {
		head := pending.Load()
		n.next = head
		if pending.CompareAndSwap(head, n) {
			return
		}
	}
}

// Drain closes every scope reclaimed by the garbage collector since the last
// drain and returns how many were closed.
func Drain() int {
	n := pending.Swap(nil)
	count := 0
	for ; n != nil; n = n.next {
		if n.token.close() {
			count++
		}
	}
	return count
}

// SetDrainInterval sets how many Specialize calls happen between two drains.
// Values below 1 restore DefaultDrainInterval.
func SetDrainInterval(n int) {
	if n < 1 {
		n = DefaultDrainInterval
	}
	drainInterval.Store(int64(n))
}

func maybeDrain() {
	if pending.Load() == nil {
		return
	}
	every := uint64(drainInterval.Load())
	if specializeOps.Add(1)%every == 0 {
		Drain()
	}
}

// Stats reports scope lifecycle counters.
type Stats struct {
	Created uint64
	Closed  uint64
}

// Open returns the number of scopes created but not yet closed.
func (s Stats) Open() uint64 {
	if s.Closed > s.Created {
		return 0
	}
	return s.Created - s.Closed
}

// LoadStats returns the current scope lifecycle counters.
func LoadStats() Stats {
	return Stats{Created: createdTotal.Load(), Closed: closedTotal.Load()}
}
