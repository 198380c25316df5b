package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/mirror"
	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMinPollGap   = 500 * time.Millisecond
)

// Health is the readiness surface the runner keeps current.
type Health interface {
	SetReady(v bool)
	SetStreamsUp(v bool)
	SetMirrorEnabled(v bool)
	SetActiveTargets(n int)
	TouchFill(t time.Time)
	TouchPoll(t time.Time)
}

type nopHealth struct{}

func (nopHealth) SetReady(bool)         {}
func (nopHealth) SetStreamsUp(bool)     {}
func (nopHealth) SetMirrorEnabled(bool) {}
func (nopHealth) SetActiveTargets(int)  {}
func (nopHealth) TouchFill(time.Time)   {}
func (nopHealth) TouchPoll(time.Time)   {}

type Options struct {
	Platform   platform.Platform
	Registry   *mirror.Registry
	Dispatcher *mirror.Dispatcher
	Reconciler *mirror.Reconciler
	Notifier   mirror.Notifier
	Health     Health
	Logger     *zap.Logger

	// PollInterval drives reconciler polls when no ticks arrive.
	PollInterval time.Duration
	// MinPollGap limits how often ticks trigger a poll.
	MinPollGap time.Duration
}

// Runner owns one mirror session: it resolves the registry, subscribes to the
// primary account's fills and the primary instrument's ticks, and feeds both
// into one event loop.
type Runner struct {
	platform   platform.Platform
	registry   *mirror.Registry
	dispatcher *mirror.Dispatcher
	reconciler *mirror.Reconciler
	notifier   mirror.Notifier
	health     Health
	log        *zap.Logger

	pollInterval time.Duration
	minPollGap   time.Duration

	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
	lastPoll    time.Time
}

func New(opts Options) *Runner {
	r := &Runner{
		platform:     opts.Platform,
		registry:     opts.Registry,
		dispatcher:   opts.Dispatcher,
		reconciler:   opts.Reconciler,
		notifier:     opts.Notifier,
		health:       opts.Health,
		log:          opts.Logger,
		pollInterval: opts.PollInterval,
		minPollGap:   opts.MinPollGap,
	}
	if r.health == nil {
		r.health = nopHealth{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.minPollGap <= 0 {
		r.minPollGap = defaultMinPollGap
	}
	return r
}

// Start resolves handles and begins the event loop. It fails only when the
// primary cannot be resolved or its streams cannot be opened.
func (r *Runner) Start(parent context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("runner already started")
	}

	if err := r.registry.Resolve(parent, r.platform); err != nil {
		return errors.Wrap(err, "resolve mirror registry")
	}
	account, instrument := r.registry.Primary()

	ctx, cancel := context.WithCancel(parent)
	fills, unsubscribe, err := r.platform.SubscribeFills(ctx, account)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "subscribe fills of %s", account.Name)
	}
	ticks, err := r.platform.Ticks(ctx, instrument)
	if err != nil {
		unsubscribe()
		cancel()
		return errors.Wrapf(err, "subscribe ticks of %s", instrument.Name)
	}

	r.cancel, r.unsubscribe = cancel, unsubscribe
	r.done = make(chan struct{})

	active := len(r.registry.Active())
	r.health.SetActiveTargets(active)
	r.health.SetMirrorEnabled(r.dispatcher.Enabled())
	r.health.SetStreamsUp(true)
	r.health.SetReady(true)

	r.log.Info("mirror session started",
		zap.String("platform", r.platform.Name()),
		zap.String("primary_account", account.Name),
		zap.String("primary_instrument", instrument.Name),
		zap.Int("active_targets", active),
		zap.Int("configured_targets", len(r.registry.Targets())),
	)
	r.notify(ctx, strings.Join(r.Status(), "\n"))

	go r.loop(ctx, fills, ticks)
	return nil
}

// Stop unsubscribes from the fill stream and waits for the loop to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, unsubscribe, done := r.cancel, r.unsubscribe, r.done
	r.cancel, r.unsubscribe = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	unsubscribe()
	cancel()
	<-done
	r.health.SetReady(false)
	r.health.SetStreamsUp(false)
	r.log.Info("mirror session stopped")
}

func (r *Runner) loop(ctx context.Context, fills <-chan models.FillEvent, ticks <-chan models.Tick) {
	defer close(r.done)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				r.log.Warn("fill stream closed")
				r.health.SetStreamsUp(false)
				fills = nil
				continue
			}
			r.onFill(ctx, fill)
		case _, ok := <-ticks:
			if !ok {
				r.log.Warn("tick stream closed, polling on timer only")
				ticks = nil
				continue
			}
			if time.Since(r.lastPoll) >= r.minPollGap {
				r.poll(ctx)
			}
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Runner) onFill(ctx context.Context, fill models.FillEvent) {
	res := r.dispatcher.HandleFill(ctx, fill)
	if res.Decision != mirror.DecisionAccepted {
		return
	}
	r.health.TouchFill(time.Now())

	var failed []string
	for _, tr := range res.Targets {
		if tr.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", tr.Target.Label(), tr.Err))
		}
	}
	if len(failed) > 0 {
		r.notify(ctx, "mirror failures:\n"+strings.Join(failed, "\n"))
	}
}

func (r *Runner) poll(ctx context.Context) {
	now := time.Now()
	r.lastPoll = now
	r.reconciler.Poll(ctx)
	r.health.TouchPoll(now)
}

func (r *Runner) notify(ctx context.Context, msg string) {
	if r.notifier == nil || msg == "" {
		return
	}
	if err := r.notifier.Send(ctx, msg); err != nil {
		r.log.Warn("notification not delivered", zap.Error(err))
	}
}

// Status returns human-readable lines describing the session.
func (r *Runner) Status() []string {
	return r.dispatcher.Status()
}

func (r *Runner) Enabled() bool { return r.dispatcher.Enabled() }

// SetEnabled toggles the global copy flag.
func (r *Runner) SetEnabled(v bool) {
	r.dispatcher.SetEnabled(v)
	r.health.SetMirrorEnabled(v)
	r.log.Info("mirror toggled", zap.Bool("enabled", v))
}
