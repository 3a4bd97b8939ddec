package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jirevwe/leasepool"
	"github.com/jirevwe/leasepool/journal"
	"github.com/jirevwe/leasepool/runner"
)

func main() {
	ctx := context.Background()
	slogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dir, err := os.Getwd()
	if err != nil {
		slogger.Error(err.Error())
		return
	}

	store, err := journal.NewSqlite(filepath.Join(dir, "leasepool.db"), slogger)
	if err != nil {
		slogger.Error(err.Error())
		return
	}

	mux := runner.NewMux()
	mux.HandleFunc("greet", func(ctx context.Context, task *runner.Task) error {
		slogger.Info("[inside task]:", "payload", string(task.Payload()))
		return nil
	})

	factory := runner.New(mux, slogger)
	defer factory.Stop()

	pool, err := leasepool.New(&leasepool.Config{
		Name:        "demo",
		Factory:     factory,
		Size:        2,
		MaxOverflow: 2,
		Logger:      slogger,
		Journal:     store,
	})
	if err != nil {
		slogger.Error(err.Error())
		return
	}

	for i := 0; i < 5; i++ {
		worker, err := pool.Checkout(ctx, true)
		if err != nil {
			slogger.Error(err.Error())
			return
		}

		err = factory.Submit(worker, runner.NewTask([]byte("hello world!"), "greet"))
		if err != nil {
			slogger.Error(err.Error())
		}

		status, err := pool.Status()
		if err != nil {
			slogger.Error(err.Error())
			return
		}
		slogger.Info("pool status", "state", status.State.String(), "idle", status.Idle, "in_use", status.InUse)

		pool.Checkin(worker)
		time.Sleep(100 * time.Millisecond)
	}

	if err = pool.Stop(); err != nil {
		slogger.Error(err.Error())
	}
}
