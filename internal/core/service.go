package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/payments/internal/config"
	"github.com/JonMunkholm/payments/internal/csv"
	"github.com/JonMunkholm/payments/internal/ledger"
	"github.com/JonMunkholm/payments/internal/logging"
	"github.com/JonMunkholm/payments/internal/store"
)

// ErrStoreDisabled is returned by store-backed queries when no database is
// configured.
var ErrStoreDisabled = errors.New("run store disabled")

// RunStore persists finished runs. *store.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run store.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	LoadAccounts(ctx context.Context, id uuid.UUID) ([]ledger.Account, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	PurgeRuns(ctx context.Context, before time.Time) (int64, error)
}

// PurgeTimeout bounds store deletions.
const PurgeTimeout = 30 * time.Second

// Options tune a Service.
type Options struct {
	Shards        int
	CheckInterval int
	AmountPlaces  int32
	Timeout       time.Duration // zero means no limit
	MaxFailedRows int
	MaxConcurrent int
	MaxWait       time.Duration
}

// OptionsFromConfig derives Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Shards:        cfg.Ledger.Shards,
		CheckInterval: cfg.Ledger.CheckInterval,
		AmountPlaces:  int32(cfg.Ledger.AmountPlaces),
		Timeout:       cfg.Upload.Timeout,
		MaxFailedRows: DefaultMaxFailedRows,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	}
}

// Service runs event files through the ledger.
type Service struct {
	opts    Options
	store   RunStore
	limiter *RunLimiter
}

// NewService returns a Service. runs may be nil, in which case results are
// not persisted. Zero options select the defaults.
func NewService(opts Options, runs RunStore) *Service {
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = ledger.DefaultCheckInterval
	}
	if opts.AmountPlaces <= 0 {
		opts.AmountPlaces = csv.DefaultAmountPlaces
	}
	if opts.MaxFailedRows <= 0 {
		opts.MaxFailedRows = DefaultMaxFailedRows
	}
	return &Service{
		opts:    opts,
		store:   runs,
		limiter: NewRunLimiter(opts.MaxConcurrent, opts.MaxWait),
	}
}

// AmountPlaces returns the number of fractional digits amounts are kept at.
func (s *Service) AmountPlaces() int32 {
	return s.opts.AmountPlaces
}

// Run processes every record of r.
//
// A rejected event is recorded and skipped. A malformed record, a read error
// or a cancelled context aborts the run and no result is returned: a partial
// account table is never reported. The error from a malformed record wraps
// a *csv.ParseError.
func (s *Service) Run(ctx context.Context, req RunRequest, r io.Reader) (*RunResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	result := &RunResult{
		RunID:     uuid.New(),
		Source:    req.Source,
		StartedAt: time.Now(),
	}
	log := logging.WithFields(ctx, "run_id", result.RunID, "source", req.Source)
	log.Info("run started", "shards", s.opts.Shards)

	counted := csv.Wrap(r)
	reader := csv.NewReader(counted, csv.WithAmountPlaces(s.opts.AmountPlaces))

	var mu sync.Mutex
	observe := func(f ledger.Failure) {
		row := failedRow(f)

		mu.Lock()
		if len(result.FailedRows) < s.opts.MaxFailedRows {
			result.FailedRows = append(result.FailedRows, row)
		} else {
			result.Truncated = true
		}
		mu.Unlock()

		log.Debug("event rejected", "line", row.LineNumber, "tx", row.Tx, "code", row.Code, "error", f.Err)
		if req.OnFailure != nil {
			req.OnFailure(row)
		}
	}

	res, err := ledger.RunSharded(ctx, reader, s.opts.Shards,
		ledger.WithObserver(observe),
		ledger.WithCheckInterval(s.opts.CheckInterval),
	)
	result.Duration = time.Since(result.StartedAt)
	result.BytesRead = counted.BytesRead()
	if err != nil {
		log.Error("run aborted", "error", err, "bytes_read", result.BytesRead, "duration", result.Duration)
		return nil, fmt.Errorf("run %s: %w", result.RunID, err)
	}

	result.Accounts = res.Accounts
	result.Events = res.Summary.Events
	result.Applied = res.Summary.Applied
	result.Failed = res.Summary.Failed
	result.ByKind = make(map[string]int64, len(res.Summary.ByKind))
	for k, n := range res.Summary.ByKind {
		result.ByKind[k.String()] = n
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, toStoreRun(result)); err != nil {
			log.Error("saving run failed", "error", err)
			return nil, fmt.Errorf("run %s: %w", result.RunID, err)
		}
		result.Stored = true
	}

	log.Info("run finished",
		"events", result.Events,
		"applied", result.Applied,
		"failed", result.Failed,
		"accounts", len(result.Accounts),
		"bytes_read", result.BytesRead,
		"duration", result.Duration,
		"stored", result.Stored,
	)
	return result, nil
}

// Accounts returns the stored accounts of a finished run.
func (s *Service) Accounts(ctx context.Context, runID uuid.UUID) ([]ledger.Account, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	return s.store.LoadAccounts(ctx, runID)
}

// StoredRun returns the summary row of a stored run.
func (s *Service) StoredRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	if s.store == nil {
		return store.Run{}, ErrStoreDisabled
	}
	return s.store.GetRun(ctx, runID)
}

// RecentRuns lists stored runs, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	return s.store.ListRuns(ctx, limit)
}

// DeleteRun removes one stored run.
func (s *Service) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	if s.store == nil {
		return ErrStoreDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, PurgeTimeout)
	defer cancel()

	if err := s.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("run deleted", "run_id", runID)
	return nil
}

// PurgeRuns removes stored runs started before the cutoff. This is
// destructive and cannot be undone.
func (s *Service) PurgeRuns(ctx context.Context, before time.Time) (int64, error) {
	if s.store == nil {
		return 0, ErrStoreDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, PurgeTimeout)
	defer cancel()

	n, err := s.store.PurgeRuns(ctx, before)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("runs purged", "before", before, "deleted", n)
	return n, nil
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until in-flight runs finish or ctx ends.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func failedRow(f ledger.Failure) FailedRow {
	return FailedRow{
		Seq:        f.Seq,
		LineNumber: f.Line,
		Kind:       f.Event.Kind.String(),
		Client:     uint16(f.Event.Client),
		Tx:         uint32(f.Event.Tx),
		Reason:     f.Err.Error(),
		Code:       MapError(f.Err).Code,
	}
}

func toStoreRun(r *RunResult) store.Run {
	return store.Run{
		ID:         r.RunID,
		Source:     r.Source,
		StartedAt:  r.StartedAt,
		FinishedAt: r.StartedAt.Add(r.Duration),
		Events:     r.Events,
		Applied:    r.Applied,
		Failed:     r.Failed,
		BytesRead:  r.BytesRead,
		Accounts:   r.Accounts,
	}
}
