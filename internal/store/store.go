// Package store keeps finished runs in PostgreSQL.
//
// A run is written once, after the engine has finished, as one row in
// ledger_runs and one row per account in ledger_accounts. Accounts are read
// back in the order the engine created them. Stored runs are an export: they
// are never replayed into an engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/payments/internal/config"
	"github.com/JonMunkholm/payments/internal/ledger"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS ledger_runs (
	id          UUID PRIMARY KEY,
	source      TEXT        NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	events      BIGINT      NOT NULL,
	applied     BIGINT      NOT NULL,
	failed      BIGINT      NOT NULL,
	bytes_read  BIGINT      NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_accounts (
	run_id    UUID    NOT NULL REFERENCES ledger_runs (id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	client    INTEGER NOT NULL,
	available NUMERIC NOT NULL,
	held      NUMERIC NOT NULL,
	total     NUMERIC NOT NULL,
	locked    BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, client)
);

CREATE INDEX IF NOT EXISTS ledger_accounts_position ON ledger_accounts (run_id, position);
`

var accountColumns = []string{"run_id", "position", "client", "available", "held", "total", "locked"}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Run is one stored run.
type Run struct {
	ID         uuid.UUID
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Events     int64
	Applied    int64
	Failed     int64
	BytesRead  int64
	Accounts   []ledger.Account
}

// Store reads and writes runs.
type Store struct {
	db DB
}

// New returns a Store backed by db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool configured from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// DatabaseName returns the database named in a connection URL, for logging.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun writes run and its accounts in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_runs (id, source, started_at, finished_at, events, applied, failed, bytes_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pgUUID(run.ID), run.Source, run.StartedAt, run.FinishedAt,
		run.Events, run.Applied, run.Failed, run.BytesRead,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	rows := make([][]any, len(run.Accounts))
	for i, acct := range run.Accounts {
		rows[i] = []any{
			pgUUID(run.ID),
			int32(i),
			int32(acct.Client),
			toNumeric(acct.Available),
			toNumeric(acct.Held),
			toNumeric(acct.Total),
			acct.Locked,
		}
	}
	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"ledger_accounts"}, accountColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy accounts for run %s: %w", run.ID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns the run row without its accounts.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source, started_at, finished_at, events, applied, failed, bytes_read
		FROM ledger_runs WHERE id = $1`, pgUUID(id))

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without accounts.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, source, started_at, finished_at, events, applied, failed, bytes_read
		FROM ledger_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadAccounts returns the accounts of a run in creation order.
func (s *Store) LoadAccounts(ctx context.Context, id uuid.UUID) ([]ledger.Account, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT client, available, held, total, locked
		FROM ledger_accounts WHERE run_id = $1 ORDER BY position`, pgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("load accounts for run %s: %w", id, err)
	}
	defer rows.Close()

	accounts := []ledger.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load accounts for run %s: %w", id, err)
	}
	return accounts, nil
}

// DeleteRun removes a run and, through the foreign key, its accounts.
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM ledger_runs WHERE id = $1`, pgUUID(id))
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// PurgeRuns removes every run started before the cutoff and returns how many
// were deleted.
func (s *Store) PurgeRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM ledger_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge runs before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
