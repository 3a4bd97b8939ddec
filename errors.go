package leasepool

import "errors"

var (
	// ErrPoolExhausted is returned by a non-blocking Checkout when no idle
	// worker exists and the pool has no overflow room left. It is an expected
	// outcome, not a pool failure.
	ErrPoolExhausted = errors.New("pool is exhausted")

	// ErrPoolClosed is returned once Stop has been called. Waiters that were
	// still queued when the pool stopped are failed with this error.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolBroken is returned after the worker factory failed to provision
	// a worker. A broken pool cannot maintain its capacity invariants and
	// stops serving; it must be rebuilt by whatever owns its lifecycle.
	ErrPoolBroken = errors.New("pool is broken")
)
