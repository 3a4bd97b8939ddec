package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
)

var createPoolEvents = `CREATE TABLE IF NOT EXISTS pool_events (
		id TEXT NOT NULL PRIMARY KEY,
		pool TEXT NOT NULL,
		kind TEXT NOT NULL,
		worker_id TEXT NOT NULL default '',
		snapshot BLOB,
		created_at TEXT NOT NULL default (strftime('%Y-%m-%dT%H:%M:%fZ'))
	) strict;`

// StoredEvent is a journal row as read back by diagnostics tooling.
type StoredEvent struct {
	Id        string `db:"id"`
	Pool      string `db:"pool"`
	Kind      string `db:"kind"`
	WorkerId  string `db:"worker_id"`
	Snapshot  []byte `db:"snapshot"`
	CreatedAt string `db:"created_at"`
}

// Decode unpacks the msgpack snapshot blob.
func (e *StoredEvent) Decode() (Snapshot, error) {
	var s Snapshot
	if len(e.Snapshot) == 0 {
		return s, nil
	}
	err := msgpack.Unmarshal(e.Snapshot, &s)
	return s, err
}

type Sqlite struct {
	logger *slog.Logger
	db     *sqlx.DB
	retry  *retry
}

// NewSqlite opens (creating if needed) a sqlite-backed journal at dbPath.
func NewSqlite(dbPath string, logger *slog.Logger) (*Sqlite, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA journal_size_limit = 67108864;")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA mmap_size = 134217728;")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA cache_size = 2000;")
	if err != nil {
		return nil, err
	}

	s := &Sqlite{
		db:     db,
		logger: logger,
		retry:  newRetry(3, 50*time.Millisecond),
	}

	ctx := context.Background()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err = tx.ExecContext(ctx, createPoolEvents)
		return err
	})

	return s, err
}

// Record appends one event. Busy writes are retried a few times before the
// error is surfaced to the caller.
func (s *Sqlite) Record(ctx context.Context, event Event) error {
	raw, err := msgpack.Marshal(event.Snapshot)
	if err != nil {
		return err
	}

	return s.retry.do(func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			insertEvent := `insert into pool_events (id, pool, kind, worker_id, snapshot) values ($1, $2, $3, $4, $5)`
			_, innerErr := tx.ExecContext(ctx, insertEvent, ulid.Make().String(), event.Pool, event.Kind, event.Worker, raw)
			return innerErr
		})
	})
}

// Events returns the recorded events for a pool, oldest first.
func (s *Sqlite) Events(ctx context.Context, pool string) ([]StoredEvent, error) {
	var events []StoredEvent
	query := `select id, pool, kind, worker_id, snapshot, created_at from pool_events where pool = $1 order by id asc`
	err := s.db.SelectContext(ctx, &events, query, pool)
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err = fn(tx); err != nil {
		return rollback(tx, err)
	}

	if err = tx.Commit(); err != nil {
		return rollback(tx, err)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}
