package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/metrics"
	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

// TargetState is the cycle state of one mirror target.
type TargetState int32

const (
	StateIdle TargetState = iota
	StateFlattening
	StateEntering
	StateBracketed
)

func (s TargetState) String() string {
	switch s {
	case StateFlattening:
		return "flattening"
	case StateEntering:
		return "entering"
	case StateBracketed:
		return "bracketed"
	}
	return "idle"
}

// TargetSpec is one configured mirror relationship.
type TargetSpec struct {
	Instrument string
	Account    string
	Direction  models.Direction
	Multiplier int
}

// MirrorTarget is a configured mirror plus the handles resolved when the
// session went live.
type MirrorTarget struct {
	Index          int
	InstrumentName string
	AccountName    string
	Direction      models.Direction
	Multiplier     int

	Instrument models.Instrument
	Account    models.Account

	active atomic.Bool
	state  atomic.Int32
	busy   atomic.Bool

	mu     sync.Mutex
	oco    string
	lastEr error
}

func (t *MirrorTarget) Active() bool       { return t.active.Load() }
func (t *MirrorTarget) State() TargetState { return TargetState(t.state.Load()) }

func (t *MirrorTarget) setState(s TargetState) { t.state.Store(int32(s)) }

// Label is the human-readable name used in logs and alerts.
func (t *MirrorTarget) Label() string {
	return fmt.Sprintf("#%d %s@%s", t.Index, t.InstrumentName, t.AccountName)
}

// Quantity sizes the mirror entry for a primary fill of fillQty.
func (t *MirrorTarget) Quantity(fillQty int) int {
	m := t.Multiplier
	if m < 1 {
		m = 1
	}
	if fillQty < 0 {
		fillQty = -fillQty
	}
	return max(1, m*fillQty)
}

// Bracket returns the OCO id of the protective pair placed by the last cycle.
func (t *MirrorTarget) Bracket() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oco
}

func (t *MirrorTarget) setBracket(oco string) {
	t.mu.Lock()
	t.oco = oco
	t.mu.Unlock()
}

func (t *MirrorTarget) takeBracket() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	oco := t.oco
	t.oco = ""
	return oco
}

// LastError is the error of the most recent failed cycle, if any.
func (t *MirrorTarget) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEr
}

func (t *MirrorTarget) setLastError(err error) {
	t.mu.Lock()
	t.lastEr = err
	t.mu.Unlock()
}

// Registry holds the primary pair and the mirror targets of one session.
// Targets are built once from configuration; handles are resolved once.
type Registry struct {
	log *zap.Logger

	primaryAccountName    string
	primaryInstrumentName string

	mu                sync.RWMutex
	resolved          bool
	primaryAccount    models.Account
	primaryInstrument models.Instrument
	targets           []*MirrorTarget
}

func NewRegistry(primaryAccount, primaryInstrument string, specs []TargetSpec, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:                   log,
		primaryAccountName:    strings.TrimSpace(primaryAccount),
		primaryInstrumentName: strings.TrimSpace(primaryInstrument),
		targets:               make([]*MirrorTarget, 0, len(specs)),
	}
	for i, s := range specs {
		t := &MirrorTarget{
			Index:          i + 1,
			InstrumentName: strings.TrimSpace(s.Instrument),
			AccountName:    strings.TrimSpace(s.Account),
			Direction:      s.Direction,
			Multiplier:     s.Multiplier,
		}
		if t.Direction == "" {
			t.Direction = models.DirectionSame
		}
		t.active.Store(t.InstrumentName != "" && t.AccountName != "")
		r.targets = append(r.targets, t)
	}
	return r
}

// Resolve looks up the primary and every target on the platform. It runs once
// per session; later calls are no-ops. A target that cannot be resolved is
// deactivated permanently and reported once. Only a primary failure is
// returned, since nothing can be mirrored without it.
func (r *Registry) Resolve(ctx context.Context, p platform.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return nil
	}

	acc, err := p.ResolveAccount(ctx, r.primaryAccountName)
	if err != nil {
		return &ConfigurationError{Target: "primary account " + r.primaryAccountName, Err: err}
	}
	inst, err := p.ResolveInstrument(ctx, r.primaryInstrumentName)
	if err != nil {
		return &ConfigurationError{Target: "primary instrument " + r.primaryInstrumentName, Err: err}
	}
	r.primaryAccount, r.primaryInstrument = acc, inst

	active := 0
	for _, t := range r.targets {
		if err := r.resolveTarget(ctx, p, t); err != nil {
			t.active.Store(false)
			t.setLastError(err)
			metrics.TargetFailures.WithLabelValues(Classify(err)).Inc()
			r.log.Error("mirror target deactivated",
				zap.Int("target", t.Index),
				zap.String("instrument", t.InstrumentName),
				zap.String("account", t.AccountName),
				zap.Error(err),
			)
			continue
		}
		active++
		r.log.Info("mirror target ready",
			zap.Int("target", t.Index),
			zap.String("instrument", t.Instrument.Name),
			zap.String("account", t.Account.Name),
			zap.String("direction", string(t.Direction)),
			zap.Int("multiplier", t.Multiplier),
		)
	}
	metrics.ActiveTargets.Set(float64(active))
	r.resolved = true
	return nil
}

func (r *Registry) resolveTarget(ctx context.Context, p platform.Platform, t *MirrorTarget) error {
	if !t.Active() {
		return &ConfigurationError{Target: t.Label(), Err: errors.New("instrument and account are required")}
	}
	inst, err := p.ResolveInstrument(ctx, t.InstrumentName)
	if err != nil {
		return &ConfigurationError{Target: t.Label(), Err: errors.Wrap(err, "instrument")}
	}
	acc, err := p.ResolveAccount(ctx, t.AccountName)
	if err != nil {
		return &ConfigurationError{Target: t.Label(), Err: errors.Wrap(err, "account")}
	}
	t.Instrument, t.Account = inst, acc
	return nil
}

// Resolved reports whether Resolve has completed.
func (r *Registry) Resolved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

// Primary returns the resolved primary account and instrument.
func (r *Registry) Primary() (models.Account, models.Instrument) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primaryAccount, r.primaryInstrument
}

// PrimaryNames returns the configured primary account and instrument names.
func (r *Registry) PrimaryNames() (account, instrument string) {
	return r.primaryAccountName, r.primaryInstrumentName
}

func (r *Registry) Targets() []*MirrorTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MirrorTarget, len(r.targets))
	copy(out, r.targets)
	return out
}

// Active returns the targets that may receive orders. Before Resolve it is empty.
func (r *Registry) Active() []*MirrorTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.resolved {
		return nil
	}
	out := make([]*MirrorTarget, 0, len(r.targets))
	for _, t := range r.targets {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out
}
