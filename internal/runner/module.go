package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_mirror/internal/mirror"
	"trade_mirror/internal/models"
	"trade_mirror/internal/modules/config"
	"trade_mirror/internal/modules/health/service"
	"trade_mirror/internal/platform"
)

// TargetSpecs converts validated config targets into registry specs.
func TargetSpecs(m config.Mirror) []mirror.TargetSpec {
	specs := make([]mirror.TargetSpec, 0, len(m.Targets))
	for _, t := range m.Targets {
		dir, err := models.ParseDirection(t.Direction)
		if err != nil {
			dir = models.DirectionSame
		}
		specs = append(specs, mirror.TargetSpec{
			Instrument: t.Instrument,
			Account:    t.Account,
			Direction:  dir,
			Multiplier: t.Multiplier,
		})
	}
	return specs
}

// PrimaryRisk converts the configured primary risk.
func PrimaryRisk(m config.Mirror) mirror.PrimaryRisk {
	mode, err := models.ParseRiskMode(m.Risk.Mode)
	if err != nil {
		mode = models.RiskDollars
	}
	return mirror.PrimaryRisk{Mode: mode, StopLoss: m.Risk.StopLoss, TakeProfit: m.Risk.TakeProfit}
}

func newRegistry(cfg *config.Config, log *zap.Logger) *mirror.Registry {
	return mirror.NewRegistry(cfg.Mirror.PrimaryAccount, cfg.Mirror.PrimaryInstrument, TargetSpecs(cfg.Mirror), log.Named("registry"))
}

func newDispatcher(cfg *config.Config, p platform.Platform, reg *mirror.Registry, j mirror.Journal, log *zap.Logger) *mirror.Dispatcher {
	return mirror.NewDispatcher(mirror.Options{
		Platform:      p,
		Registry:      reg,
		Risk:          PrimaryRisk(cfg.Mirror),
		Debounce:      cfg.Mirror.Debounce,
		AtomicBracket: cfg.Mirror.UseAtomicBracket,
		MaxParallel:   cfg.Mirror.MaxParallel,
		Enabled:       cfg.Mirror.Enabled,
		Journal:       j,
		Logger:        log.Named("dispatcher"),
	})
}

func newReconciler(cfg *config.Config, p platform.Platform, reg *mirror.Registry, n mirror.Notifier, j mirror.Journal, log *zap.Logger) *mirror.Reconciler {
	return mirror.NewReconciler(mirror.ReconcilerOptions{
		Platform:      p,
		Registry:      reg,
		AlertOnDesync: cfg.Mirror.AlertOnDesync,
		Notifier:      n,
		Journal:       j,
		Logger:        log.Named("reconciler"),
	})
}

func newRunner(
	cfg *config.Config,
	p platform.Platform,
	reg *mirror.Registry,
	d *mirror.Dispatcher,
	rec *mirror.Reconciler,
	n mirror.Notifier,
	state *service.State,
	log *zap.Logger,
) *Runner {
	return New(Options{
		Platform:     p,
		Registry:     reg,
		Dispatcher:   d,
		Reconciler:   rec,
		Notifier:     n,
		Health:       state,
		Logger:       log.Named("runner"),
		PollInterval: cfg.Mirror.PollInterval,
	})
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			newRegistry,
			newDispatcher,
			newReconciler,
			newRunner,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					return r.Start(ctx)
				},
				OnStop: func(_ context.Context) error {
					r.Stop()
					return nil
				},
			})
		}),
	)
}
