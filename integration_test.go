package leasepool_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)
import "github.com/stretchr/testify/require"

import (
	"github.com/jirevwe/leasepool"
	"github.com/jirevwe/leasepool/journal"
	"github.com/jirevwe/leasepool/runner"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Drives the whole stack: a pool of runner-backed goroutine workers with a
// sqlite journal, through checkout, task execution, a crash and a checkin.
func TestPoolWithRunnerAndJournal(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "pool.db")

	store, err := journal.NewSqlite(dbPath, slogger)
	require.NoError(t, err)

	processed := make(chan string, 8)
	mux := runner.NewMux()
	mux.HandleFunc("work", func(ctx context.Context, task *runner.Task) error {
		processed <- string(task.Payload())
		return nil
	})
	mux.HandleFunc("explode", func(ctx context.Context, task *runner.Task) error {
		panic("handler blew up")
	})

	factory := runner.New(mux, slogger)
	defer factory.Stop()

	pool, err := leasepool.New(&leasepool.Config{
		Name:        "integration",
		Factory:     factory,
		Size:        2,
		MaxOverflow: 1,
		Logger:      slogger,
		Journal:     store,
	})
	require.NoError(t, err)

	// checkout, run a task on the worker, checkin
	w, err := pool.Checkout(ctx, true)
	require.NoError(t, err)
	require.NoError(t, factory.Submit(w, runner.NewTask([]byte("job-1"), "work")))

	select {
	case payload := <-processed:
		require.Equal(t, "job-1", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("task was never processed")
	}
	pool.Checkin(w)

	// crash a checked-out worker and watch the pool restore base capacity
	victim, err := pool.Checkout(ctx, true)
	require.NoError(t, err)
	require.NoError(t, factory.Submit(victim, runner.NewTask(nil, "explode")))

	require.Eventually(t, func() bool {
		s, serr := pool.Status()
		return serr == nil && s.Idle == 2 && s.InUse == 0
	}, 5*time.Second, 10*time.Millisecond)

	// the replacement worker is live and serves tasks
	w, err = pool.Checkout(ctx, true)
	require.NoError(t, err)
	require.NotEqual(t, victim, w)
	require.NoError(t, factory.Submit(w, runner.NewTask([]byte("job-2"), "work")))

	select {
	case payload := <-processed:
		require.Equal(t, "job-2", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("task was never processed after the crash")
	}
	pool.Checkin(w)

	// Stop flushes and closes the journal
	require.NoError(t, pool.Stop())

	reader, err := journal.NewSqlite(dbPath, slogger)
	require.NoError(t, err)
	defer func() { require.NoError(t, reader.Close()) }()

	events, err := reader.Events(ctx, "integration")
	require.NoError(t, err)

	kinds := make(map[string]int)
	for _, e := range events {
		kinds[e.Kind]++
	}
	require.GreaterOrEqual(t, kinds[journal.KindCheckout], 2)
	require.GreaterOrEqual(t, kinds[journal.KindCheckin], 2)
	require.Equal(t, 1, kinds[journal.KindWorkerCrash])
	require.Equal(t, 1, kinds[journal.KindPoolStopped])
}
