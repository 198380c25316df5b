package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"trade_mirror/internal/metrics"
	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

type AlertKind string

const (
	AlertMainClosedMirrorOpen AlertKind = "main-closed-mirror-open"
	AlertMirrorClosedMainOpen AlertKind = "mirror-closed-main-open"
)

// Alert is an advisory desync notice. It never stops trading.
type Alert struct {
	Kind    AlertKind
	Target  *MirrorTarget
	Primary models.PositionSnapshot
	Mirror  models.PositionSnapshot
	At      time.Time
}

func (a Alert) String() string {
	switch a.Kind {
	case AlertMainClosedMirrorOpen:
		return fmt.Sprintf("⚠️ primary is flat but mirror %s is still %s %d",
			a.Target.Label(), a.Mirror.Market, abs(a.Mirror.Quantity))
	case AlertMirrorClosedMainOpen:
		return fmt.Sprintf("⚠️ mirror %s is flat but primary is still %s %d",
			a.Target.Label(), a.Primary.Market, abs(a.Primary.Quantity))
	}
	return string(a.Kind)
}

type ReconcilerOptions struct {
	Platform      platform.Platform
	Registry      *Registry
	AlertOnDesync bool
	Notifier      Notifier
	Journal       Journal
	Logger        *zap.Logger
	Now           func() time.Time
}

// Reconciler compares primary and mirror positions on every poll and raises an
// alert once per desync transition.
type Reconciler struct {
	platform      platform.Platform
	registry      *Registry
	alertOnDesync bool
	notifier      Notifier
	journal       Journal
	log           *zap.Logger
	now           func() time.Time

	mu        sync.Mutex
	snapshots map[models.PositionKey]models.PositionSnapshot
	// primary state as last compared against each target; advances only when
	// that target's read succeeds, so a failed read does not consume an edge
	seen map[int]models.PositionSnapshot
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	r := &Reconciler{
		platform:      opts.Platform,
		registry:      opts.Registry,
		alertOnDesync: opts.AlertOnDesync,
		notifier:      opts.Notifier,
		journal:       opts.Journal,
		log:           opts.Logger,
		now:           opts.Now,
		snapshots:     make(map[models.PositionKey]models.PositionSnapshot),
		seen:          make(map[int]models.PositionSnapshot),
	}
	if r.journal == nil {
		r.journal = NopJournal{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Poll reads the primary and every active mirror, returns the alerts raised by
// this poll and stores the new snapshots. A missing snapshot counts as flat.
func (r *Reconciler) Poll(ctx context.Context) []Alert {
	if !r.registry.Resolved() {
		return nil
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "mirror.poll")
	defer span.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()

	account, instrument := r.registry.Primary()
	primaryKey := models.PositionKey{Account: account.Name, Instrument: instrument.Name}
	pos, err := r.platform.Position(ctx, account, instrument)
	if err != nil {
		r.log.Warn("primary position unavailable, poll skipped", zap.Error(err))
		return nil
	}
	now := r.now()
	curPrimary := snapshotOf(pos, now)

	var alerts []Alert
	for _, t := range r.registry.Active() {
		key := models.PositionKey{Account: t.Account.Name, Instrument: t.Instrument.Name}
		mpos, err := r.platform.Position(ctx, t.Account, t.Instrument)
		if err != nil {
			terr := &TransientDataError{Target: t.Label(), What: "position", Err: err}
			metrics.TargetFailures.WithLabelValues(Classify(terr)).Inc()
			r.log.Warn("mirror position unavailable", zap.Int("target", t.Index), zap.Error(terr))
			continue
		}
		prevPrimary := r.seen[t.Index]
		prevMirror := r.snapshots[key]
		curMirror := snapshotOf(mpos, now)

		switch {
		case prevPrimary.Market.IsOpen() && !curPrimary.Market.IsOpen() &&
			prevMirror.Market.IsOpen() && curMirror.Market.IsOpen():
			alerts = append(alerts, Alert{Kind: AlertMainClosedMirrorOpen, Target: t, Primary: curPrimary, Mirror: curMirror, At: now})
		case prevMirror.Market.IsOpen() && !curMirror.Market.IsOpen() &&
			prevPrimary.Market.IsOpen() && curPrimary.Market.IsOpen():
			alerts = append(alerts, Alert{Kind: AlertMirrorClosedMainOpen, Target: t, Primary: curPrimary, Mirror: curMirror, At: now})
		}
		r.snapshots[key] = curMirror
		r.seen[t.Index] = curPrimary
	}
	r.snapshots[primaryKey] = curPrimary

	for _, a := range alerts {
		r.raise(ctx, a)
	}
	return alerts
}

func (r *Reconciler) raise(ctx context.Context, a Alert) {
	metrics.DesyncAlerts.WithLabelValues(string(a.Kind)).Inc()
	r.log.Warn("position desync",
		zap.String("kind", string(a.Kind)),
		zap.Int("target", a.Target.Index),
		zap.String("primary", string(a.Primary.Market)),
		zap.String("mirror", string(a.Mirror.Market)),
	)
	if err := r.journal.Record(ctx, Event{
		Kind:       EventDesync,
		Target:     a.Target.Index,
		Account:    a.Target.Account.Name,
		Instrument: a.Target.Instrument.Name,
		Detail:     string(a.Kind),
		At:         a.At,
	}); err != nil {
		r.log.Warn("journal write failed", zap.Error(err))
	}
	if !r.alertOnDesync || r.notifier == nil {
		return
	}
	if err := r.notifier.Send(ctx, a.String()); err != nil {
		r.log.Warn("desync alert not delivered", zap.Error(err))
	}
}

// Snapshot returns the last stored snapshot for key.
func (r *Reconciler) Snapshot(key models.PositionKey) (models.PositionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[key]
	return s, ok
}

func snapshotOf(p models.Position, at time.Time) models.PositionSnapshot {
	return models.PositionSnapshot{Market: p.Market, Quantity: p.Quantity, At: at}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
