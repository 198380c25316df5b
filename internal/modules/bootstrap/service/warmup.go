package service

import (
	"context"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"trade_mirror/internal/modules/config"
	"trade_mirror/internal/platform"
)

// WarmupReport lists the configured instruments that resolved with a price.
type WarmupReport struct {
	Ready  []string
	Failed map[string]error
}

// Warmer checks every configured instrument before the session starts, so a
// typo surfaces in the startup log rather than as an inactive target later.
type Warmer struct {
	platform platform.Platform
	names    []string
	log      *zap.Logger
}

func NewWarmer(p platform.Platform, cfg *config.Config, log *zap.Logger) *Warmer {
	seen := map[string]bool{cfg.Mirror.PrimaryInstrument: true}
	names := []string{cfg.Mirror.PrimaryInstrument}
	for _, t := range cfg.Mirror.Targets {
		if t.Instrument != "" && !seen[t.Instrument] {
			seen[t.Instrument] = true
			names = append(names, t.Instrument)
		}
	}
	return &Warmer{platform: p, names: names, log: log.Named("warmup")}
}

func (w *Warmer) Warmup(ctx context.Context) WarmupReport {
	var (
		mu  sync.Mutex
		rep = WarmupReport{Failed: make(map[string]error)}
	)
	// a few at a time to stay under REST rate limits
	p := pool.New().WithMaxGoroutines(4)
	for _, name := range w.names {
		p.Go(func() {
			err := w.check(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed[name] = err
				return
			}
			rep.Ready = append(rep.Ready, name)
		})
	}
	p.Wait()
	sort.Strings(rep.Ready)

	for name, err := range rep.Failed {
		w.log.Warn("instrument not usable", zap.String("instrument", name), zap.Error(err))
	}
	w.log.Info("warmup done", zap.Int("ready", len(rep.Ready)), zap.Int("failed", len(rep.Failed)))
	return rep
}

func (w *Warmer) check(ctx context.Context, name string) error {
	inst, err := w.platform.ResolveInstrument(ctx, name)
	if err != nil {
		return err
	}
	px, err := w.platform.LastPrice(ctx, inst)
	if err != nil {
		return err
	}
	w.log.Debug("instrument ready",
		zap.String("instrument", inst.Name),
		zap.Float64("tick_size", inst.TickSize),
		zap.Float64("point_value", inst.PointValue),
		zap.Float64("last", px),
	)
	return nil
}
