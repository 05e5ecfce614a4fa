// Package sweep periodically re-checks triggered vetoes so consensus
// resolutions are recorded promptly. Correctness never depends on it; the
// engine resolves lazily on every call.
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/metrics"
	"commons-governance/models"
)

// Engine is the slice of the veto engine the sweeper drives.
type Engine interface {
	PendingReviews(ctx context.Context) ([]*models.VetoState, error)
	CheckConsensus(ctx context.Context, proposalID int64, tier int) (bool, error)
}

// Config tunes the sweeper. Zero values pick the defaults.
type Config struct {
	Interval       time.Duration
	Concurrency    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxElapsed     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 4 * time.Second
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 10 * time.Second
	}
	return c
}

// Result summarises one pass.
type Result struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

type Sweeper struct {
	engine  Engine
	cfg     Config
	metrics *metrics.Metrics
}

func New(engine Engine, cfg Config, m *metrics.Metrics) *Sweeper {
	return &Sweeper{engine: engine, cfg: cfg.withDefaults(), metrics: m}
}

// retry repeats op while it fails with a retryable storage error.
func (s *Sweeper) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.Multiplier = 1.5
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = s.cfg.MaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errs.IsKind(err, errs.Storage) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// RunOnce checks every pending review once. A failure on one proposal is
// counted and logged without stopping the others.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var pending []*models.VetoState
	err := s.retry(ctx, func() error {
		var err error
		pending, err = s.engine.PendingReviews(ctx)
		return err
	})
	if err != nil {
		s.metrics.Swept("error")
		return Result{}, err
	}

	var resolved, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, st := range pending {
		st := st
		g.Go(func() error {
			var ok bool
			err := s.retry(gctx, func() error {
				var err error
				ok, err = s.engine.CheckConsensus(gctx, st.ProposalID, st.Tier)
				return err
			})
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				logger.Logger.Warn("Consensus check failed",
					zap.Int64("proposal_id", st.ProposalID), zap.Error(err))
			case ok:
				atomic.AddInt64(&resolved, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Checked: len(pending), Resolved: int(resolved), Failed: int(failed)}
	outcome := "ok"
	if res.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.Swept(outcome)
	logger.Logger.Info("Sweep finished",
		zap.Int("checked", res.Checked),
		zap.Int("resolved", res.Resolved),
		zap.Int("failed", res.Failed))
	return res, ctx.Err()
}

// Run sweeps on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}
