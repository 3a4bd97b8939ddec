// Package leasepool implements a bounded pool of reusable worker handles.
//
// Clients check a worker out, use it, and check it back in. The pool keeps
// Size workers alive, grows by up to MaxOverflow under load, queues blocked
// checkouts FIFO, and recovers when a checked-out worker dies or when a
// client dies while holding or waiting for one.
//
// All pool accounting lives on a single coordination goroutine; checkouts,
// checkins, worker deaths and client deaths are serialized through one ops
// channel and processed strictly in arrival order, so the state itself
// needs no locks.
package leasepool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jirevwe/leasepool/journal"
)

// ops processed by the coordination loop, one kind per message.
type poolOp interface{ poolOp() }

type checkoutOp struct {
	// done is the requesting client's liveness signal; the pool treats it
	// closing as the client having died.
	done  <-chan struct{}
	block bool
	reply chan checkoutReply
}

type checkinOp struct {
	worker WorkerHandle
}

type workerDownOp struct {
	worker WorkerHandle
}

type clientDownOp struct {
	token string
}

type statusOp struct {
	reply chan Status
}

type stopOp struct {
	stopped chan struct{}
}

func (checkoutOp) poolOp()   {}
func (checkinOp) poolOp()    {}
func (workerDownOp) poolOp() {}
func (clientDownOp) poolOp() {}
func (statusOp) poolOp()     {}
func (stopOp) poolOp()       {}

type checkoutReply struct {
	worker WorkerHandle
	err    error
}

// waiter is one blocked checkout parked in the FIFO queue.
type waiter struct {
	reply chan checkoutReply
	mon   *monitor
}

// poolState is owned exclusively by the coordination loop.
type poolState struct {
	// idle is a stack: the most recently returned worker is handed out
	// first.
	idle     []WorkerHandle
	overflow int
	waiting  []*waiter

	// bindings maps each checked-out worker to its holder's monitor;
	// held is the reverse index from monitor token to worker.
	bindings map[WorkerHandle]*monitor
	held     map[string]WorkerHandle
}

func (st *poolState) bind(worker WorkerHandle, m *monitor) {
	st.bindings[worker] = m
	st.held[m.token] = worker
}

func (st *poolState) unbind(worker WorkerHandle, m *monitor) {
	m.stop()
	delete(st.bindings, worker)
	delete(st.held, m.token)
}

// Pool manages a bounded set of worker handles. Construct with New; all
// methods are safe for concurrent use.
type Pool struct {
	name        string
	size        int
	maxOverflow int

	factory WorkerFactory
	logger  *slog.Logger
	journal journal.Journal

	ops    chan poolOp
	events chan journal.Event

	// done is closed when the coordination loop exits, for any reason.
	done        chan struct{}
	journalDone chan struct{}
	broken      atomic.Bool
	stopOnce    sync.Once
}

// New builds a pool and pre-populates it with cfg.Size workers from the
// factory. The returned pool is serving immediately and owns cfg.Journal
// until Stop. On error any workers already provisioned are dismissed and
// the journal is left untouched for the caller to close.
func New(cfg *Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		name:        cfg.Name,
		size:        cfg.Size,
		maxOverflow: cfg.MaxOverflow,
		factory:     cfg.Factory,
		logger:      cfg.Logger,
		journal:     cfg.Journal,
		ops:         make(chan poolOp),
		events:      make(chan journal.Event, 64),
		done:        make(chan struct{}),
		journalDone: make(chan struct{}),
	}

	st := &poolState{
		bindings: make(map[WorkerHandle]*monitor),
		held:     make(map[string]WorkerHandle),
	}

	for i := 0; i < p.size; i++ {
		w, err := p.factory.CreateWorker(context.Background())
		if err != nil {
			for _, h := range st.idle {
				p.factory.DismissWorker(h)
			}
			return nil, fmt.Errorf("provision base worker %d of %d: %w", i+1, p.size, err)
		}
		st.idle = append(st.idle, w)
	}

	go p.run(st)
	go p.pumpTerminations()
	go p.writeEvents()

	p.logger.Info("pool started", "pool", p.name, "size", p.size, "max_overflow", p.maxOverflow)

	return p, nil
}

// Checkout requests one worker. With block set it suspends until a worker
// is available; otherwise an exhausted pool returns ErrPoolExhausted
// immediately. Cancelling ctx counts as the client dying: a queued request
// is removed, and a worker already handed out on its behalf is reclaimed.
func (p *Pool) Checkout(ctx context.Context, block bool) (WorkerHandle, error) {
	op := checkoutOp{
		done:  ctx.Done(),
		block: block,
		reply: make(chan checkoutReply, 1),
	}

	select {
	case p.ops <- op:
	case <-p.done:
		return "", p.closedErr()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-op.reply:
		return r.worker, r.err
	case <-ctx.Done():
		// a late reply may still land on the buffered channel; the client
		// monitor reclaims that worker
		return "", ctx.Err()
	}
}

// Checkin returns a worker to the pool. Fire-and-forget; returning a handle
// the pool no longer tracks is a no-op.
func (p *Pool) Checkin(worker WorkerHandle) {
	select {
	case p.ops <- checkinOp{worker: worker}:
	case <-p.done:
	}
}

// Status reports the pool's coarse state label and its idle and in-use
// worker counts.
func (p *Pool) Status() (Status, error) {
	op := statusOp{reply: make(chan Status, 1)}

	select {
	case p.ops <- op:
	case <-p.done:
		return Status{}, p.closedErr()
	}

	select {
	case s := <-op.reply:
		return s, nil
	case <-p.done:
		return Status{}, p.closedErr()
	}
}

// Stop shuts the pool down: queued waiters fail with ErrPoolClosed, idle
// workers are dismissed, and the journal is flushed and closed. Safe to
// call more than once.
func (p *Pool) Stop() error {
	p.stopOnce.Do(func() {
		op := stopOp{stopped: make(chan struct{})}
		select {
		case p.ops <- op:
			<-op.stopped
		case <-p.done:
		}
	})

	// wait for the journal writer to flush
	<-p.journalDone
	return nil
}

func (p *Pool) closedErr() error {
	if p.broken.Load() {
		return ErrPoolBroken
	}
	return ErrPoolClosed
}

// run is the coordination loop: the only goroutine that touches st.
func (p *Pool) run(st *poolState) {
	for {
		switch op := (<-p.ops).(type) {
		case checkoutOp:
			if err := p.handleCheckout(st, op); err != nil {
				p.fail(st, err)
				return
			}
		case checkinOp:
			p.handleCheckin(st, op)
		case workerDownOp:
			if err := p.handleWorkerDown(st, op); err != nil {
				p.fail(st, err)
				return
			}
		case clientDownOp:
			p.handleClientDown(st, op)
		case statusOp:
			op.reply <- p.currentStatus(st)
		case stopOp:
			p.record(st, journal.KindPoolStopped, "")
			p.teardown(st, ErrPoolClosed)
			p.logger.Info("pool stopped", "pool", p.name)
			close(op.stopped)
			return
		}
	}
}

// handleCheckout admits one checkout request: idle worker first, then
// overflow growth, then queue (blocking) or reject (non-blocking).
func (p *Pool) handleCheckout(st *poolState, op checkoutOp) error {
	if n := len(st.idle); n > 0 {
		w := st.idle[n-1]
		st.idle = st.idle[:n-1]

		m := newMonitor()
		p.watchClient(m, op.done)
		st.bind(w, m)

		op.reply <- checkoutReply{worker: w}
		p.record(st, journal.KindCheckout, string(w))
		return nil
	}

	if st.overflow < p.maxOverflow {
		w, err := p.factory.CreateWorker(context.Background())
		if err != nil {
			op.reply <- checkoutReply{err: ErrPoolBroken}
			return fmt.Errorf("provision overflow worker: %w", err)
		}
		st.overflow++

		m := newMonitor()
		p.watchClient(m, op.done)
		st.bind(w, m)

		op.reply <- checkoutReply{worker: w}
		p.record(st, journal.KindOverflowGrow, string(w))
		return nil
	}

	if op.block {
		m := newMonitor()
		p.watchClient(m, op.done)
		st.waiting = append(st.waiting, &waiter{reply: op.reply, mon: m})
		p.record(st, journal.KindWaiterQueued, "")
		return nil
	}

	op.reply <- checkoutReply{err: ErrPoolExhausted}
	return nil
}

// handleCheckin processes a voluntary return. Waiters are served before any
// overflow shrink or idle push; the returned worker itself is transferred,
// never a freshly created one.
func (p *Pool) handleCheckin(st *poolState, op checkinOp) {
	m, ok := st.bindings[op.worker]
	if !ok {
		// duplicate or late checkin, the handle was already reclaimed
		return
	}
	st.unbind(op.worker, m)

	if len(st.waiting) > 0 {
		wt := st.waiting[0]
		st.waiting = st.waiting[1:]

		st.bind(op.worker, wt.mon)
		wt.reply <- checkoutReply{worker: op.worker}
		p.record(st, journal.KindWaiterServed, string(op.worker))
		return
	}

	if st.overflow > 0 {
		p.factory.DismissWorker(op.worker)
		st.overflow--
		p.record(st, journal.KindOverflowShrink, string(op.worker))
		return
	}

	st.idle = append(st.idle, op.worker)
	p.record(st, journal.KindCheckin, string(op.worker))
}

// handleWorkerDown reconciles the death of a checked-out worker. Unlike
// checkin it must create a replacement, unless the dead worker was overflow
// capacity being vacated.
func (p *Pool) handleWorkerDown(st *poolState, op workerDownOp) error {
	m, ok := st.bindings[op.worker]
	if !ok {
		// not checked out: either already dismissed, or an idle death the
		// factory chose to report anyway
		return nil
	}
	st.unbind(op.worker, m)
	p.record(st, journal.KindWorkerCrash, string(op.worker))

	if len(st.waiting) > 0 {
		w, err := p.factory.CreateWorker(context.Background())
		if err != nil {
			return fmt.Errorf("provision replacement worker: %w", err)
		}

		wt := st.waiting[0]
		st.waiting = st.waiting[1:]

		st.bind(w, wt.mon)
		wt.reply <- checkoutReply{worker: w}
		p.record(st, journal.KindWaiterServed, string(w))
		return nil
	}

	if st.overflow > 0 {
		st.overflow--
		p.record(st, journal.KindOverflowShrink, string(op.worker))
		return nil
	}

	w, err := p.factory.CreateWorker(context.Background())
	if err != nil {
		return fmt.Errorf("provision replacement worker: %w", err)
	}
	st.idle = append(st.idle, w)
	return nil
}

// handleClientDown resolves a client-death notification back to whatever
// the token was registered for.
func (p *Pool) handleClientDown(st *poolState, op clientDownOp) {
	if w, ok := st.held[op.token]; ok {
		// the holder died, the worker is presumed healthy: reclaim it
		// straight to idle without offering it to a waiter
		st.unbind(w, st.bindings[w])
		st.idle = append(st.idle, w)
		p.record(st, journal.KindClientDown, string(w))
		return
	}

	for i, wt := range st.waiting {
		if wt.mon.token == op.token {
			wt.mon.stop()
			st.waiting = append(st.waiting[:i], st.waiting[i+1:]...)
			p.record(st, journal.KindClientDown, "")
			return
		}
	}

	// already cleaned up
}

func (p *Pool) currentStatus(st *poolState) Status {
	s := Status{
		Idle:    len(st.idle),
		InUse:   len(st.bindings),
		Waiting: len(st.waiting),
	}

	switch {
	case st.overflow >= p.maxOverflow && (p.maxOverflow > 0 || len(st.idle) == 0):
		s.State = StatusFull
	case len(st.idle) > 0:
		// idle workers mean the next checkout is served immediately, even
		// while some overflow workers are still alive
		s.State = StatusReady
	default:
		s.State = StatusOverflow
	}

	return s
}

// fail stops a pool whose factory could not provision a worker.
func (p *Pool) fail(st *poolState, err error) {
	p.logger.Error("worker provisioning failed, stopping pool", "pool", p.name, "error", err)
	p.broken.Store(true)
	p.record(st, journal.KindPoolBroken, "")
	p.teardown(st, ErrPoolBroken)
}

// teardown fails every waiter, releases every monitor, dismisses the idle
// workers and ends the loop's side channels. Runs once, on loop exit.
func (p *Pool) teardown(st *poolState, reason error) {
	for _, wt := range st.waiting {
		wt.mon.stop()
		wt.reply <- checkoutReply{err: reason}
	}
	st.waiting = nil

	for w, m := range st.bindings {
		st.unbind(w, m)
	}

	for _, w := range st.idle {
		p.factory.DismissWorker(w)
	}
	st.idle = nil

	close(p.done)
	close(p.events)
}

// pumpTerminations forwards the factory's death notifications into the ops
// channel so they are serialized with everything else.
func (p *Pool) pumpTerminations() {
	term := p.factory.Terminated()
	if term == nil {
		return
	}

	for {
		select {
		case w, ok := <-term:
			if !ok {
				return
			}
			select {
			case p.ops <- workerDownOp{worker: w}:
			case <-p.done:
				return
			}
		case <-p.done:
			return
		}
	}
}

// record snapshots the accounting and queues a journal event. The loop
// never blocks on the journal: if the buffer is full the event is dropped.
func (p *Pool) record(st *poolState, kind, worker string) {
	e := journal.Event{
		Pool:   p.name,
		Kind:   kind,
		Worker: worker,
		Snapshot: journal.Snapshot{
			Idle:     len(st.idle),
			InUse:    len(st.bindings),
			Overflow: st.overflow,
			Waiting:  len(st.waiting),
		},
	}

	select {
	case p.events <- e:
	default:
		p.logger.Debug("journal buffer full, dropping event", "pool", p.name, "kind", kind)
	}
}

// writeEvents drains the event buffer into the journal and closes it when
// the loop ends. Journal failures are logged, never propagated to callers.
func (p *Pool) writeEvents() {
	for e := range p.events {
		if err := p.journal.Record(context.Background(), e); err != nil {
			p.logger.Error("failed to record pool event", "pool", p.name, "kind", e.Kind, "error", err)
		}
	}

	if err := p.journal.Close(); err != nil {
		p.logger.Error("failed to close journal", "pool", p.name, "error", err)
	}
	close(p.journalDone)
}
