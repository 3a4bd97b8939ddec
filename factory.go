package leasepool

import "context"

// WorkerHandle is an opaque identifier for a worker instance. Handles are
// minted and destroyed only by a WorkerFactory; the pool never looks inside
// one, it only tracks where the handle currently lives.
type WorkerHandle string

// WorkerFactory is the component that physically owns worker instances.
// The pool calls it to grow and shrink, and listens on Terminated for
// workers that die while checked out.
type WorkerFactory interface {
	// CreateWorker synchronously provisions one new worker. A failure here
	// is fatal to the pool that asked: it cannot maintain its capacity
	// invariants and stops serving.
	CreateWorker(ctx context.Context) (WorkerHandle, error)

	// DismissWorker terminates a worker. Fire-and-forget; dismissing a
	// handle twice must be safe.
	DismissWorker(worker WorkerHandle)

	// Terminated delivers the handles of workers that died abnormally.
	// May return nil if the factory's workers never fail on their own.
	Terminated() <-chan WorkerHandle
}
