package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultCheckInterval is how often (in events) Run checks for context
// cancellation.
const DefaultCheckInterval = 100

// Source yields events in the order they occurred. Next returns io.EOF once
// the stream is exhausted; any other error is fatal to the run.
type Source interface {
	Next() (Event, error)
}

// LineReporter is implemented by sources that know where the last event
// came from, such as a CSV reader.
type LineReporter interface {
	Line() int
}

// Failure describes an event rejected by its handler.
type Failure struct {
	Seq   int64 // 1-based position of the event in the stream
	Line  int   // Source line, 0 if unknown
	Event Event
	Err   error
}

// Observer receives every rejected event.
type Observer func(Failure)

// Summary counts what a run did.
type Summary struct {
	Events  int64
	Applied int64
	Failed  int64
	ByKind  map[Kind]int64
}

func newSummary() Summary {
	return Summary{ByKind: make(map[Kind]int64, len(kindNames))}
}

func (s *Summary) add(other Summary) {
	s.Events += other.Events
	s.Applied += other.Applied
	s.Failed += other.Failed
	for k, n := range other.ByKind {
		s.ByKind[k] += n
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver reports rejected events to fn.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithCheckInterval sets how often Run checks its context.
func WithCheckInterval(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.checkEvery = n
		}
	}
}

// Engine applies events to an account table. It is not safe for concurrent
// use; one engine processes one ordered stream.
type Engine struct {
	events     *EventLog
	accounts   *AccountTable
	observer   Observer
	checkEvery int
	summary    Summary
}

// withClientScopedLog gives every client its own transaction id space.
func withClientScopedLog() Option {
	return func(e *Engine) {
		e.events = NewClientEventLog()
	}
}

// New returns an engine with an empty log and account table.
func New(opts ...Option) *Engine {
	e := &Engine{
		events:     NewEventLog(),
		accounts:   NewAccountTable(),
		checkEvery: DefaultCheckInterval,
		summary:    newSummary(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply logs ev and dispatches it to its handler. A non-nil error is always
// semantic: the event was rejected and nothing else changed.
func (e *Engine) Apply(ev Event) error {
	return e.apply(ev, e.summary.Events+1)
}

func (e *Engine) apply(ev Event, seq int64) error {
	e.summary.Events++
	e.summary.ByKind[ev.Kind]++

	logged := e.events.Append(ev)

	var err error
	switch logged.Kind {
	case KindDeposit:
		err = deposit(e.accounts, logged, seq)
	case KindWithdraw:
		err = withdraw(e.accounts, logged)
	case KindDispute:
		err = dispute(e.accounts, e.events, logged)
	case KindResolve:
		err = resolve(e.accounts, e.events, logged)
	case KindChargeback:
		err = chargeback(e.accounts, e.events, logged)
	default:
		err = fmt.Errorf("%s: %w", logged.Kind, ErrUnknownKind)
	}

	if err != nil {
		e.summary.Failed++
		return err
	}
	e.summary.Applied++
	return nil
}

// Run applies every event from src until it is exhausted.
//
// Rejected events are passed to the observer and skipped. An error from src
// or a cancelled context aborts the run and is returned; the account table is
// then incomplete and must not be emitted.
func (e *Engine) Run(ctx context.Context, src Source) error {
	lines, _ := src.(LineReporter)

	for i := 0; ; i++ {
		if i%e.checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run cancelled after %d events: %w", i, err)
			}
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line := 0
		if lines != nil {
			line = lines.Line()
		}
		e.step(ev, e.summary.Events+1, line)
	}
}

// step applies one event and reports its failure, if any.
func (e *Engine) step(ev Event, seq int64, line int) {
	if err := e.apply(ev, seq); err != nil && e.observer != nil {
		e.observer(Failure{Seq: seq, Line: line, Event: ev, Err: err})
	}
}

// Accounts returns the account table in creation order.
func (e *Engine) Accounts() []Account {
	return e.accounts.Snapshot()
}

// Events returns the event log in arrival order.
func (e *Engine) Events() []Event {
	return e.events.Events()
}

// Summary returns the counters accumulated so far.
func (e *Engine) Summary() Summary {
	out := e.summary
	out.ByKind = make(map[Kind]int64, len(e.summary.ByKind))
	for k, n := range e.summary.ByKind {
		out.ByKind[k] = n
	}
	return out
}
