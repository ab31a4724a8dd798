package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/payments/internal/csv"
	"github.com/JonMunkholm/payments/internal/ledger"
	"github.com/JonMunkholm/payments/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []store.Run
	saveErr error
}

func (f *fakeStore) SaveRun(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, run)
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Run{}, store.ErrRunNotFound
}

func (f *fakeStore) ListRuns(context.Context, int) ([]store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Run(nil), f.saved...), nil
}

func (f *fakeStore) LoadAccounts(ctx context.Context, id uuid.UUID) ([]ledger.Account, error) {
	run, err := f.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.Accounts, nil
}

func (f *fakeStore) DeleteRun(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.saved {
		if r.ID == id {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return nil
		}
	}
	return store.ErrRunNotFound
}

func (f *fakeStore) PurgeRuns(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.saved[:0]
	var n int64
	for _, r := range f.saved {
		if r.StartedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.saved = kept
	return n, nil
}

const sampleInput = "\xEF\xBB\xBFtype, client, tx, amount\n" +
	"deposit, 1, 1, 1.0\n" +
	"deposit, 2, 2, 2.0\n" +
	"deposit, 1, 3, 2.0\n" +
	"withdraw, 1, 4, 1.5\n" +
	"withdraw, 2, 5, 3.0\n" +
	"dispute, 1, 1,\n" +
	"dispute, 2, 99,\n"

func TestServiceRun(t *testing.T) {
	t.Parallel()

	for _, shards := range []int{1, 3} {
		t.Run(map[int]string{1: "sequential", 3: "sharded"}[shards], func(t *testing.T) {
			t.Parallel()

			svc := NewService(Options{Shards: shards}, nil)

			var streamed []FailedRow
			res, err := svc.Run(context.Background(), RunRequest{
				Source:    "sample.csv",
				OnFailure: func(r FailedRow) { streamed = append(streamed, r) },
			}, strings.NewReader(sampleInput))
			require.NoError(t, err)

			assert.NotEqual(t, uuid.Nil, res.RunID)
			assert.Equal(t, "sample.csv", res.Source)
			assert.Equal(t, int64(7), res.Events)
			assert.Equal(t, int64(5), res.Applied)
			assert.Equal(t, int64(2), res.Failed)
			assert.Equal(t, int64(3), res.ByKind["deposit"])
			assert.Equal(t, int64(len(sampleInput)-3), res.BytesRead, "BOM is not counted")
			assert.False(t, res.Stored)

			require.Len(t, res.FailedRows, 2)
			byLine := map[int]FailedRow{}
			for _, r := range res.FailedRows {
				byLine[r.LineNumber] = r
			}
			assert.Equal(t, "LED003", byLine[6].Code)
			assert.Equal(t, "withdraw", byLine[6].Kind)
			assert.Equal(t, uint32(5), byLine[6].Tx)
			assert.Equal(t, "LED004", byLine[8].Code)
			assert.ElementsMatch(t, res.FailedRows, streamed)

			var out strings.Builder
			require.NoError(t, csv.WriteAccounts(&out, res.Accounts, svc.AmountPlaces()))
			assert.Equal(t,
				"client,available,held,total,locked\n"+
					"1,0.5000,1.0000,1.5000,false\n"+
					"2,2.0000,0.0000,2.0000,false\n",
				out.String())
		})
	}
}

func TestServiceRun_MalformedAborts(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	svc := NewService(Options{}, fs)

	res, err := svc.Run(context.Background(), RunRequest{Source: "bad.csv"},
		strings.NewReader("type,client,tx,amount\ndeposit,1,1,1\ndeposit,x,2,1\n"))
	require.Error(t, err)
	assert.Nil(t, res)

	var perr *csv.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Line)
	assert.Equal(t, "VAL007", MapError(err).Code)
	assert.Empty(t, fs.saved, "aborted runs are not stored")
}

func TestServiceRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(Options{}, nil)
	_, err := svc.Run(ctx, RunRequest{}, strings.NewReader(sampleInput))
	require.ErrorIs(t, err, context.Canceled)
}

func TestServiceRun_EmptyInput(t *testing.T) {
	t.Parallel()

	svc := NewService(Options{}, nil)
	res, err := svc.Run(context.Background(), RunRequest{}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, res.Accounts)
	assert.Zero(t, res.Events)
}

func TestServiceRun_CapsFailedRows(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("type,client,tx\n")
	for i := 0; i < 5; i++ {
		b.WriteString("dispute,1,1\n")
	}

	var streamed int
	svc := NewService(Options{MaxFailedRows: 2}, nil)
	res, err := svc.Run(context.Background(), RunRequest{OnFailure: func(FailedRow) { streamed++ }},
		strings.NewReader(b.String()))
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Failed)
	assert.Len(t, res.FailedRows, 2)
	assert.True(t, res.Truncated)
	assert.Equal(t, 5, streamed)
}

func TestServiceRun_Stores(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	svc := NewService(Options{}, fs)

	res, err := svc.Run(context.Background(), RunRequest{Source: "s.csv"}, strings.NewReader(sampleInput))
	require.NoError(t, err)
	assert.True(t, res.Stored)

	require.Len(t, fs.saved, 1)
	saved := fs.saved[0]
	assert.Equal(t, res.RunID, saved.ID)
	assert.Equal(t, res.Failed, saved.Failed)
	assert.Equal(t, res.Accounts, saved.Accounts)
	assert.False(t, saved.FinishedAt.Before(saved.StartedAt))

	accounts, err := svc.Accounts(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	_, err = svc.Accounts(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrRunNotFound)
	assert.Equal(t, "RUN003", MapError(err).Code)
}

func TestServiceRun_StoreFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(Options{}, &fakeStore{saveErr: errors.New("dial tcp: connection refused")})
	_, err := svc.Run(context.Background(), RunRequest{}, strings.NewReader(sampleInput))
	require.Error(t, err)
	assert.Equal(t, "DB004", MapError(err).Code)
}

func TestService_NoStore(t *testing.T) {
	t.Parallel()

	svc := NewService(Options{}, nil)

	_, err := svc.Accounts(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrStoreDisabled)
	_, err = svc.RecentRuns(context.Background(), 10)
	require.ErrorIs(t, err, ErrStoreDisabled)
	assert.Equal(t, "RUN004", MapError(err).Code)
	require.ErrorIs(t, svc.DeleteRun(context.Background(), uuid.New()), ErrStoreDisabled)
	_, err = svc.PurgeRuns(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrStoreDisabled)
}

func TestService_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	runs := &fakeStore{}
	svc := NewService(Options{}, runs)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		res, err := svc.Run(ctx, RunRequest{}, strings.NewReader(sampleInput))
		require.NoError(t, err)
		ids = append(ids, res.RunID)
	}

	require.NoError(t, svc.DeleteRun(ctx, ids[0]))
	err := svc.DeleteRun(ctx, ids[0])
	require.ErrorIs(t, err, store.ErrRunNotFound)
	assert.Equal(t, "RUN003", MapError(err).Code)

	n, err := svc.PurgeRuns(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.PurgeRuns(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recent, err := svc.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestService_Busy(t *testing.T) {
	t.Parallel()

	svc := NewService(Options{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond}, nil)
	require.True(t, svc.limiter.TryAcquire())
	defer svc.limiter.Release()

	_, err := svc.Run(context.Background(), RunRequest{}, strings.NewReader(sampleInput))
	require.ErrorIs(t, err, ErrTooManyRuns)
	assert.Equal(t, 1, svc.LimiterStatus().Active)
}
