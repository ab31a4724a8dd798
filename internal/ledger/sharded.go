package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// shardBuffer is the per-shard channel capacity.
const shardBuffer = 256

type shardItem struct {
	ev   Event
	seq  int64
	line int
}

// Result is the outcome of a completed run.
type Result struct {
	Accounts []Account
	Summary  Summary
}

// RunSharded reads src sequentially and applies its events on shards engines
// in parallel, routing every client to a fixed shard.
//
// Each shard keeps one transaction id space per client, so a dispute only
// finds transactions of its own client, whichever clients share the shard.
// The observer may be called from several goroutines but
// never concurrently. With shards <= 1 the run is sequential.
func RunSharded(ctx context.Context, src Source, shards int, opts ...Option) (Result, error) {
	if shards <= 1 {
		e := New(opts...)
		if err := e.Run(ctx, src); err != nil {
			return Result{}, err
		}
		return Result{Accounts: e.Accounts(), Summary: e.Summary()}, nil
	}

	// Serialize observer calls across shards.
	base := New(opts...)
	var mu sync.Mutex
	if base.observer != nil {
		inner := base.observer
		opts = append(opts, WithObserver(func(f Failure) {
			mu.Lock()
			defer mu.Unlock()
			inner(f)
		}))
	}

	opts = append(opts, withClientScopedLog())

	engines := make([]*Engine, shards)
	queues := make([]chan shardItem, shards)
	for i := range engines {
		engines[i] = New(opts...)
		queues[i] = make(chan shardItem, shardBuffer)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return dispatch(gctx, src, queues, base.checkEvery)
	})

	for i := range engines {
		e, q := engines[i], queues[i]
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case it, ok := <-q:
					if !ok {
						return nil
					}
					e.step(it.ev, it.seq, it.line)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	tables := make([]*AccountTable, shards)
	summary := newSummary()
	for i, e := range engines {
		tables[i] = e.accounts
		summary.add(e.summary)
	}
	return Result{Accounts: mergeAccounts(tables...), Summary: summary}, nil
}

// dispatch routes events from src to the shard owning their client.
func dispatch(ctx context.Context, src Source, queues []chan shardItem, checkEvery int) error {
	lines, _ := src.(LineReporter)

	var seq int64
	for {
		if seq%int64(checkEvery) == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("run cancelled after %d events: %w", seq, err)
			}
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		seq++
		it := shardItem{ev: ev, seq: seq}
		if lines != nil {
			it.line = lines.Line()
		}

		q := queues[int(ev.Client)%len(queues)]
		select {
		case q <- it:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
