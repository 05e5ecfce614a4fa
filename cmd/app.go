package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"commons-governance/aggregator"
	"commons-governance/config"
	"commons-governance/consolidation"
	"commons-governance/db"
	"commons-governance/handlers"
	"commons-governance/logger"
	"commons-governance/metrics"
	"commons-governance/phase"
	"commons-governance/pricing"
	"commons-governance/registry"
	"commons-governance/repository"
	"commons-governance/signature"
	"commons-governance/sweep"
	"commons-governance/veto"
)

// app holds every wired component of a running process.
type app struct {
	ldb        *db.LevelDB
	prom       *prometheus.Registry
	prices     *pricing.MovingAverage
	registry   *registry.Registry
	monitor    *consolidation.Monitor
	engine     *veto.Engine
	aggregator *aggregator.Aggregator
	sweeper    *sweep.Sweeper
}

func newApp(cfg *config.Config) (*app, error) {
	thresholds := registry.DefaultThresholds()
	if path := cfg.Registry.CommonsThresholdsFile; path != "" {
		commons, err := registry.LoadCommonsThresholds(path)
		if err != nil {
			return nil, err
		}
		thresholds.Commons = commons
		logger.Logger.Info("Loaded commons contributor thresholds",
			zap.String("file", path), zap.String("logic", string(commons.Logic)))
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(prom)
	if err != nil {
		return nil, err
	}

	ldb, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		return nil, err
	}
	repo := repository.NewLevelDBRepository(ldb)

	prices := pricing.NewMovingAverage(time.Duration(cfg.Pricing.WindowDays)*24*time.Hour, cfg.Pricing.DefaultUSD)
	reg := registry.NewRegistry(repo, thresholds, prices, registry.WithMetrics(m))

	opts := []veto.Option{
		veto.WithMetrics(m),
		veto.WithPercentageMode(veto.PercentageMode(cfg.Veto.PercentageMode)),
	}
	if cfg.Veto.PhaseAdaptive {
		calc := phase.NewCalculator(phase.StaticHeight(cfg.Phase.BlockHeight), reg)
		opts = append(opts, veto.WithParameterSource(calc, cfg.Veto.ParamTimeout))
	}
	engine := veto.NewEngine(reg, repo, signature.NewSecp256k1Verifier(), opts...)
	logger.Logger.Info("Veto engine ready",
		zap.String("percentage_mode", string(engine.Mode())),
		zap.Bool("phase_adaptive", cfg.Veto.PhaseAdaptive))

	return &app{
		ldb:        ldb,
		prom:       prom,
		prices:     prices,
		registry:   reg,
		monitor:    consolidation.NewMonitor(reg),
		engine:     engine,
		aggregator: aggregator.New(repo, engine),
		sweeper: sweep.New(engine, sweep.Config{
			Interval:    cfg.Sweep.Interval,
			Concurrency: cfg.Sweep.Concurrency,
		}, m),
	}, nil
}

func (a *app) handler() *handlers.Handler {
	return handlers.NewHandler(a.registry, a.monitor, a.engine, a.aggregator, a.prices)
}

func (a *app) Close() error {
	return a.ldb.Close()
}
