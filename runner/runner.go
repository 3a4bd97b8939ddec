// Package runner is a goroutine-backed WorkerFactory for leasepool. Each
// worker is a goroutine consuming tasks from its own channel and dispatching
// them through a Mux; a panicking handler kills its worker, and the runner
// reports the death on the Terminated channel so the pool can replace it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jirevwe/leasepool"
	"github.com/oklog/ulid/v2"
)

var ErrUnknownWorker = errors.New("runner does not own this worker")

type Runner struct {
	logger *slog.Logger
	mux    *Mux

	mu      sync.Mutex
	workers map[leasepool.WorkerHandle]*worker
	stopped bool

	terminated chan leasepool.WorkerHandle
	done       chan struct{}
	wg         sync.WaitGroup

	// ensure the runner can only be stopped once
	stop sync.Once
}

func New(mux *Mux, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if mux == nil {
		mux = NewMux()
	}

	return &Runner{
		logger:     logger,
		mux:        mux,
		workers:    make(map[leasepool.WorkerHandle]*worker),
		terminated: make(chan leasepool.WorkerHandle, 32),
		done:       make(chan struct{}),
	}
}

// CreateWorker spawns one worker goroutine and returns its handle.
func (r *Runner) CreateWorker(ctx context.Context) (leasepool.WorkerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return "", errors.New("runner is stopped")
	}

	id := leasepool.WorkerHandle("worker_" + ulid.Make().String())
	w := &worker{
		id:     id,
		tasks:  make(chan *Task, 16),
		quit:   make(chan struct{}),
		runner: r,
		log:    r.logger,
	}
	r.workers[id] = w

	r.wg.Add(1)
	go w.start()

	return id, nil
}

// DismissWorker stops a worker. Dismissing a handle the runner no longer
// owns is a no-op.
func (r *Runner) DismissWorker(h leasepool.WorkerHandle) {
	r.mu.Lock()
	w, ok := r.workers[h]
	if ok {
		delete(r.workers, h)
	}
	r.mu.Unlock()

	if ok {
		close(w.quit)
	}
}

// Terminated delivers the handles of workers that died from a panicking
// handler.
func (r *Runner) Terminated() <-chan leasepool.WorkerHandle {
	return r.terminated
}

// Submit hands a task to a specific worker, normally one the caller has
// checked out. It blocks while the worker's task buffer is full.
func (r *Runner) Submit(h leasepool.WorkerHandle, t *Task) error {
	r.mu.Lock()
	w, ok := r.workers[h]
	r.mu.Unlock()

	if !ok {
		return ErrUnknownWorker
	}

	select {
	case w.tasks <- t:
		return nil
	case <-w.quit:
		return ErrUnknownWorker
	}
}

// Stop dismisses every worker and waits for their goroutines to return.
func (r *Runner) Stop() {
	r.stop.Do(func() {
		r.mu.Lock()
		r.stopped = true
		workers := make([]*worker, 0, len(r.workers))
		for h, w := range r.workers {
			workers = append(workers, w)
			delete(r.workers, h)
		}
		r.mu.Unlock()

		for _, w := range workers {
			close(w.quit)
		}

		close(r.done)
		r.wg.Wait()
	})
}

// crashed removes a dead worker from the books and reports its handle.
// Closing quit here releases any Submit still parked on the dead worker's
// full task buffer; whichever of crashed and DismissWorker removes the
// handle from the map is the one that closes quit.
func (r *Runner) crashed(h leasepool.WorkerHandle) {
	r.mu.Lock()
	w, ok := r.workers[h]
	if ok {
		delete(r.workers, h)
	}
	r.mu.Unlock()

	if ok {
		close(w.quit)
	}

	select {
	case r.terminated <- h:
	case <-r.done:
	}
}

type worker struct {
	// the worker id, also its pool handle
	id leasepool.WorkerHandle

	// channel from which the worker consumes work
	tasks chan *Task

	// channel to signal the worker to stop working
	quit chan struct{}

	runner *Runner
	log    *slog.Logger
}

func (w *worker) start() {
	w.log.Info(fmt.Sprintf("starting worker %s", w.id))

	defer func() {
		w.runner.wg.Done()
		w.log.Info(fmt.Sprintf("worker %s has been stopped", w.id))
	}()

	for {
		select {
		case task := <-w.tasks:
			if !w.process(task) {
				// the handler panicked: this worker is dead, tell the pool
				w.runner.crashed(w.id)
				return
			}
		case <-w.quit:
			return
		}
	}
}

// process runs one task through the mux. It returns false if the handler
// panicked.
func (w *worker) process(task *Task) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error(fmt.Sprintf("worker %s died processing task: %v", w.id, rec), "task", task.Type())
			ok = false
		}
	}()

	err := w.runner.mux.ProcessTask(context.Background(), task)
	if err != nil {
		w.log.Error(fmt.Sprintf("worker %s failed to execute task: %s", w.id, err.Error()))
	}

	return true
}
