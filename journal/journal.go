// Package journal records pool lifecycle events for diagnostics. The pool
// only ever appends; nothing here is read back to rebuild pool state.
package journal

import "context"

// Event kinds written by the pool.
const (
	KindCheckout       = "checkout"
	KindCheckin        = "checkin"
	KindWaiterQueued   = "waiter_queued"
	KindWaiterServed   = "waiter_served"
	KindOverflowGrow   = "overflow_grow"
	KindOverflowShrink = "overflow_shrink"
	KindWorkerCrash    = "worker_crash"
	KindClientDown     = "client_down"
	KindPoolStopped    = "pool_stopped"
	KindPoolBroken     = "pool_broken"
)

// Snapshot is the pool's accounting at the moment an event was recorded.
type Snapshot struct {
	Idle     int `msgpack:"idle"`
	InUse    int `msgpack:"in_use"`
	Overflow int `msgpack:"overflow"`
	Waiting  int `msgpack:"waiting"`
}

// Event is one pool occurrence. Worker is empty for events that concern no
// particular worker (a queued waiter, a stop).
type Event struct {
	Pool     string
	Kind     string
	Worker   string
	Snapshot Snapshot
}

// Journal is an append-only sink for pool events.
type Journal interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, Event) error { return nil }
func (nopJournal) Close() error                        { return nil }

// Nop returns a journal that discards everything.
func Nop() Journal {
	return nopJournal{}
}
