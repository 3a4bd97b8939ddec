package leasepool

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jirevwe/leasepool/journal"
)

// Config carries everything needed to construct a Pool.
type Config struct {
	// Name identifies the pool in logs and journal records.
	Name string

	// Factory provisions and dismisses the pool's workers. Required.
	Factory WorkerFactory

	// Size is the base capacity: the number of workers kept alive even when
	// the pool is idle. Must be at least 1.
	Size int

	// MaxOverflow is how many workers the pool may create beyond Size under
	// load. Overflow workers are dismissed again as demand drops.
	MaxOverflow int

	// Logger defaults to a text handler on stdout.
	Logger *slog.Logger

	// Journal receives pool events for diagnostics. Defaults to a no-op
	// journal; it is never read back by the pool. A running pool owns the
	// journal and closes it on Stop; if New returns an error the journal
	// was never used and remains the caller's to close.
	Journal journal.Journal
}

func (c *Config) validate() error {
	if c.Factory == nil {
		return errors.New("leasepool: config requires a worker factory")
	}
	if c.Size < 1 {
		return errors.New("leasepool: pool size must be at least 1")
	}
	if c.MaxOverflow < 0 {
		return errors.New("leasepool: max overflow cannot be negative")
	}

	if c.Name == "" {
		c.Name = "leasepool"
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	if c.Journal == nil {
		c.Journal = journal.Nop()
	}

	return nil
}
