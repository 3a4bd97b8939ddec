package leasepool

import "github.com/oklog/ulid/v2"

// monitor represents one "tell me when this client dies" registration.
// The token ties an asynchronous client-down notification back to the
// binding or waiting entry it was registered for.
type monitor struct {
	token    string
	release  chan struct{}
	released bool
}

func newMonitor() *monitor {
	return &monitor{
		token:   ulid.Make().String(),
		release: make(chan struct{}),
	}
}

// stop ends the watcher for this monitor. Only the coordination loop calls
// this, so the released flag needs no locking.
func (m *monitor) stop() {
	if m.released {
		return
	}
	m.released = true
	close(m.release)
}

// watchClient waits for the client's done signal and converts it into a
// clientDown op, unless the monitor is released or the pool exits first.
// A nil done channel blocks forever, which is exactly right for callers
// that cannot be cancelled.
func (p *Pool) watchClient(m *monitor, done <-chan struct{}) {
	go func() {
		select {
		case <-done:
			select {
			case p.ops <- clientDownOp{token: m.token}:
			case <-p.done:
			}
		case <-m.release:
		case <-p.done:
		}
	}()
}
