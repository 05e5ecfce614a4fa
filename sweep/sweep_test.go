package sweep

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/metrics"
	"commons-governance/models"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type fakeEngine struct {
	mu          sync.Mutex
	pending     []*models.VetoState
	listErr     error
	listFails   int
	resolve     map[int64]bool
	checkErr    map[int64]error
	checkFails  map[int64]int
	checks      map[int64]int
	listAttempt int
}

func (f *fakeEngine) PendingReviews(context.Context) ([]*models.VetoState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listAttempt++
	if f.listFails > 0 {
		f.listFails--
		return nil, errs.New(errs.Storage, "test", "disk busy")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pending, nil
}

func (f *fakeEngine) CheckConsensus(_ context.Context, proposalID int64, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks[proposalID]++
	if f.checkFails[proposalID] > 0 {
		f.checkFails[proposalID]--
		return false, errs.New(errs.Storage, "test", "disk busy")
	}
	if err := f.checkErr[proposalID]; err != nil {
		return false, err
	}
	return f.resolve[proposalID], nil
}

func newFake(ids ...int64) *fakeEngine {
	f := &fakeEngine{
		resolve:    map[int64]bool{},
		checkErr:   map[int64]error{},
		checkFails: map[int64]int{},
		checks:     map[int64]int{},
	}
	for _, id := range ids {
		f.pending = append(f.pending, &models.VetoState{ProposalID: id, Tier: 3})
	}
	return f
}

func fastConfig() Config {
	return Config{
		Interval:       5 * time.Millisecond,
		Concurrency:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		MaxElapsed:     500 * time.Millisecond,
	}
}

func TestRunOnceCountsOutcomes(t *testing.T) {
	f := newFake(1, 2, 3, 4)
	f.resolve[1] = true
	f.resolve[3] = true
	f.checkErr[4] = errs.New(errs.NotFound, "test", "gone")

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	res, err := New(f, fastConfig(), m).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{Checked: 4, Resolved: 2, Failed: 1}, res)
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("partial")))

	// Non-storage failures are not retried.
	require.Equal(t, 1, f.checks[4])
}

func TestRunOnceRetriesStorageErrors(t *testing.T) {
	f := newFake(7)
	f.listFails = 2
	f.checkFails[7] = 2
	f.resolve[7] = true

	res, err := New(f, fastConfig(), nil).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{Checked: 1, Resolved: 1}, res)
	require.Equal(t, 3, f.listAttempt)
	require.Equal(t, 3, f.checks[7])
}

func TestRunOnceListFailure(t *testing.T) {
	f := newFake()
	f.listErr = errors.New("boom")

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = New(f, fastConfig(), m).RunOnce(context.Background())
	require.EqualError(t, err, "boom")
	require.Equal(t, 1, f.listAttempt)
	require.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("error")))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFake(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(f, fastConfig(), nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.checks[1] >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
