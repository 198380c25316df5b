package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"trade_mirror/internal/metrics"
	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

const DefaultDebounce = time.Second

// Decision is the dispatcher's verdict on one fill event.
type Decision string

const (
	DecisionAccepted          Decision = "accepted"
	DecisionDisabled          Decision = "disabled"
	DecisionNotReady          Decision = "not_ready"
	DecisionForeignInstrument Decision = "foreign_instrument"
	DecisionForeignAccount    Decision = "foreign_account"
	DecisionNotFilled         Decision = "not_filled"
	DecisionFlat              Decision = "flat"
	DecisionDebounced         Decision = "debounced"
)

// TargetResult is the outcome of one target's cycle.
type TargetResult struct {
	Target  *MirrorTarget
	Orders  []models.Order
	Plan    models.RiskPlan
	Skipped bool // a previous cycle of this target was still in flight
	Err     error
}

// Result is what HandleFill did with a fill.
type Result struct {
	Decision Decision
	Targets  []TargetResult
}

type Options struct {
	Platform platform.Platform
	Registry *Registry
	Risk     PrimaryRisk

	Debounce time.Duration
	// AtomicBracket submits the entry with its protective pair attached.
	// Otherwise the entry and the OCO pair go out as separate submissions.
	AtomicBracket bool
	MaxParallel   int
	Enabled       bool

	Journal Journal
	Logger  *zap.Logger
	Now     func() time.Time
	NewID   func() string
}

// Dispatcher turns accepted primary fills into mirror orders on every active target.
type Dispatcher struct {
	platform   platform.Platform
	registry   *Registry
	translator RiskTranslator
	journal    Journal
	log        *zap.Logger

	debounce    time.Duration
	atomicBr    bool
	maxParallel int
	now         func() time.Time
	newID       func() string

	enabled atomic.Bool

	mu          sync.Mutex
	lastTrigger time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		platform:    opts.Platform,
		registry:    opts.Registry,
		translator:  RiskTranslator{Risk: opts.Risk},
		journal:     opts.Journal,
		log:         opts.Logger,
		debounce:    opts.Debounce,
		atomicBr:    opts.AtomicBracket,
		maxParallel: opts.MaxParallel,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if d.journal == nil {
		d.journal = NopJournal{}
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.debounce <= 0 {
		d.debounce = DefaultDebounce
	}
	if d.maxParallel <= 0 {
		d.maxParallel = 4
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = func() string { return uuid.NewString() }
	}
	d.enabled.Store(opts.Enabled)
	return d
}

func (d *Dispatcher) Enabled() bool          { return d.enabled.Load() }
func (d *Dispatcher) SetEnabled(enabled bool) { d.enabled.Store(enabled) }

// HandleFill is the single entry point for fill events. It returns once every
// active target's submissions have returned.
func (d *Dispatcher) HandleFill(ctx context.Context, fill models.FillEvent) Result {
	decision := d.admit(fill)
	metrics.Fills.WithLabelValues(string(decision)).Inc()
	if decision != DecisionAccepted {
		d.log.Debug("fill ignored",
			zap.String("decision", string(decision)),
			zap.String("account", fill.Account),
			zap.String("instrument", fill.Instrument),
			zap.String("state", string(fill.State)),
		)
		return Result{Decision: decision}
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "mirror.dispatch")
	defer span.Finish()
	span.SetTag("instrument", fill.Instrument)
	span.SetTag("direction", string(fill.Direction))
	span.SetTag("quantity", fill.Quantity)

	d.log.Info("primary fill accepted",
		zap.String("account", fill.Account),
		zap.String("instrument", fill.Instrument),
		zap.String("direction", string(fill.Direction)),
		zap.Int("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
	)
	d.record(ctx, Event{
		Kind:       EventFillAccepted,
		Account:    fill.Account,
		Instrument: fill.Instrument,
		Action:     string(fill.Direction),
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Detail:     fill.OrderID,
	})

	_, primary := d.registry.Primary()
	targets := d.registry.Active()
	results := make([]TargetResult, len(targets))

	p := pool.New().WithMaxGoroutines(d.maxParallel)
	for i, t := range targets {
		p.Go(func() {
			results[i] = d.runTarget(ctx, t, fill, primary)
		})
	}
	p.Wait()

	return Result{Decision: DecisionAccepted, Targets: results}
}

// admit applies the fill filters. The debounce check and the update of the
// last accepted trigger happen under one lock.
func (d *Dispatcher) admit(fill models.FillEvent) Decision {
	if !d.Enabled() {
		return DecisionDisabled
	}
	if !d.registry.Resolved() {
		return DecisionNotReady
	}
	account, instrument := d.registry.Primary()
	if fill.Instrument != instrument.Name {
		return DecisionForeignInstrument
	}
	if fill.Account != account.Name {
		return DecisionForeignAccount
	}
	if fill.State != models.OrderFilled {
		return DecisionNotFilled
	}
	if !fill.Direction.IsOpen() {
		return DecisionFlat
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.lastTrigger.IsZero() && now.Sub(d.lastTrigger) < d.debounce {
		return DecisionDebounced
	}
	d.lastTrigger = now
	return DecisionAccepted
}

func (d *Dispatcher) runTarget(ctx context.Context, t *MirrorTarget, fill models.FillEvent, primary models.Instrument) (res TargetResult) {
	res.Target = t
	if !t.busy.CompareAndSwap(false, true) {
		res.Skipped = true
		d.log.Warn("mirror target still in flight, fill skipped",
			zap.Int("target", t.Index),
			zap.String("state", t.State().String()),
		)
		return res
	}
	defer t.busy.Store(false)

	span, ctx := opentracing.StartSpanFromContext(ctx, "mirror.target")
	defer span.Finish()
	span.SetTag("target", t.Index)

	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.Errorf("panic in mirror cycle: %v", r)
			t.setState(StateIdle)
		}
		if res.Err != nil {
			span.SetTag("error", true)
			d.fail(ctx, t, res.Err)
		}
	}()

	res.Orders, res.Plan, res.Err = d.cycle(ctx, t, fill, primary)
	return res
}

// cycle is Flattening -> Entering -> Bracketed for one target.
func (d *Dispatcher) cycle(ctx context.Context, t *MirrorTarget, fill models.FillEvent, primary models.Instrument) ([]models.Order, models.RiskPlan, error) {
	var (
		submitted []models.Order
		plan      models.RiskPlan
		label     = t.Label()
	)

	// sizing and pricing always use fresh reads
	pos, err := d.platform.Position(ctx, t.Account, t.Instrument)
	if err != nil {
		return nil, plan, &TransientDataError{Target: label, What: "position", Err: err}
	}
	entryRef, err := d.platform.LastPrice(ctx, t.Instrument)
	if err != nil {
		return nil, plan, &TransientDataError{Target: label, What: "last price", Err: err}
	}

	side, err := MirrorSide(fill.Direction, t.Direction)
	if err != nil {
		return nil, plan, err
	}

	if pos.Market.IsOpen() {
		t.setState(StateFlattening)
		if oco := t.takeBracket(); oco != "" {
			if err := d.platform.CancelOCO(ctx, t.Account, oco); err != nil {
				t.setState(StateIdle)
				return submitted, plan, &SubmissionError{Target: label, Stage: "cancel bracket", Err: err}
			}
		}
		flatten := models.Order{
			ID:         d.newID(),
			Name:       "mirror-flatten-" + strconv.Itoa(t.Index),
			Instrument: t.Instrument.Name,
			Action:     closeAction(pos.Market),
			Type:       models.OrderMarket,
			Quantity:   pos.AbsQuantity(),
		}
		if err := d.submit(ctx, t, "flatten", flatten); err != nil {
			t.setState(StateIdle)
			return submitted, plan, err
		}
		submitted = append(submitted, flatten)
	}

	qty := t.Quantity(fill.Quantity)
	plan = d.translator.Plan(PlanInput{
		Primary:         primary,
		PrimaryQuantity: fill.Quantity,
		Relation:        t.Direction,
		Mirror:          t.Instrument,
		Quantity:        qty,
		Side:            side,
		Entry:           entryRef,
	})

	t.setState(StateEntering)
	entry := models.Order{
		ID:         d.newID(),
		Name:       "mirror-entry-" + strconv.Itoa(t.Index),
		Instrument: t.Instrument.Name,
		Action:     side,
		Type:       models.OrderMarket,
		Quantity:   qty,
	}
	oco := d.newID()
	bracket := &models.Bracket{
		OCO:             oco,
		TakeProfitTicks: plan.TakeProfitTicks,
		StopLossTicks:   plan.StopLossTicks,
		TakeProfitPrice: plan.TakeProfitPrice,
		StopLossPrice:   plan.StopLossPrice,
	}
	hasBracket := !bracket.Empty()

	if d.atomicBr && hasBracket {
		entry.Bracket = bracket
	}
	if err := d.submit(ctx, t, "entry", entry); err != nil {
		t.setState(StateIdle)
		return submitted, plan, err
	}
	submitted = append(submitted, entry)

	if !hasBracket {
		t.setState(StateIdle)
		d.log.Warn("mirror entry has no protective orders", zap.Int("target", t.Index))
		return submitted, plan, nil
	}

	if !d.atomicBr {
		legs := bracketLegs(t, side, qty, plan, oco, d.newID)
		if err := d.submit(ctx, t, "bracket", legs...); err != nil {
			t.setState(StateIdle)
			return submitted, plan, err
		}
		submitted = append(submitted, legs...)
	}
	t.setBracket(oco)
	t.setState(StateBracketed)
	t.setLastError(nil)

	d.log.Info("mirror placed",
		zap.Int("target", t.Index),
		zap.String("account", t.Account.Name),
		zap.String("instrument", t.Instrument.Name),
		zap.String("action", string(side)),
		zap.Int("quantity", qty),
		zap.Float64("entry_ref", entryRef),
		zap.Int("tp_ticks", plan.TakeProfitTicks),
		zap.Int("sl_ticks", plan.StopLossTicks),
		zap.Float64("tp", plan.TakeProfitPrice),
		zap.Float64("sl", plan.StopLossPrice),
	)
	return submitted, plan, nil
}

// bracketLegs builds the discrete take-profit limit and stop-loss stop sharing oco.
func bracketLegs(t *MirrorTarget, side models.OrderAction, qty int, plan models.RiskPlan, oco string, newID func() string) []models.Order {
	exit := side.ExitAction()
	legs := make([]models.Order, 0, 2)
	if plan.TakeProfitTicks > 0 {
		legs = append(legs, models.Order{
			ID:         newID(),
			Name:       "mirror-tp-" + strconv.Itoa(t.Index),
			Instrument: t.Instrument.Name,
			Action:     exit,
			Type:       models.OrderLimit,
			Quantity:   qty,
			LimitPrice: plan.TakeProfitPrice,
			OCO:        oco,
		})
	}
	if plan.StopLossTicks > 0 {
		legs = append(legs, models.Order{
			ID:         newID(),
			Name:       "mirror-sl-" + strconv.Itoa(t.Index),
			Instrument: t.Instrument.Name,
			Action:     exit,
			Type:       models.OrderStopMarket,
			Quantity:   qty,
			StopPrice:  plan.StopLossPrice,
			OCO:        oco,
		})
	}
	return legs
}

func (d *Dispatcher) submit(ctx context.Context, t *MirrorTarget, kind string, orders ...models.Order) error {
	if err := d.platform.Submit(ctx, t.Account, orders...); err != nil {
		return &SubmissionError{Target: t.Label(), Stage: kind, Err: err}
	}
	metrics.Orders.WithLabelValues(strconv.Itoa(t.Index), kind).Add(float64(len(orders)))
	for _, o := range orders {
		oco := o.OCO
		if o.Bracket != nil {
			oco = o.Bracket.OCO
		}
		price := o.LimitPrice
		if o.Type == models.OrderStopMarket {
			price = o.StopPrice
		}
		d.record(ctx, Event{
			Kind:       EventOrder,
			Target:     t.Index,
			Account:    t.Account.Name,
			Instrument: o.Instrument,
			Action:     string(o.Action) + " " + string(o.Type),
			Quantity:   o.Quantity,
			Price:      price,
			OCO:        oco,
			Detail:     kind,
		})
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, t *MirrorTarget, err error) {
	t.setLastError(err)
	class := Classify(err)
	metrics.TargetFailures.WithLabelValues(class).Inc()
	d.log.Error("mirror target cycle failed",
		zap.Int("target", t.Index),
		zap.String("account", t.AccountName),
		zap.String("instrument", t.InstrumentName),
		zap.String("class", class),
		zap.Error(err),
	)
	d.record(ctx, Event{
		Kind:       EventFailure,
		Target:     t.Index,
		Account:    t.AccountName,
		Instrument: t.InstrumentName,
		Detail:     err.Error(),
	})
}

func (d *Dispatcher) record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if err := d.journal.Record(ctx, ev); err != nil {
		d.log.Warn("journal write failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// Status returns one human-readable line for the dispatcher and one per target.
func (d *Dispatcher) Status() []string {
	onOff := "OFF"
	if d.Enabled() {
		onOff = "ON"
	}
	mode := "discrete"
	if d.atomicBr {
		mode = "atomic"
	}
	account, instrument := d.registry.PrimaryNames()
	lines := []string{fmt.Sprintf("mirror %s: primary %s@%s, debounce %s, bracket %s",
		onOff, instrument, account, d.debounce, mode)}

	for _, t := range d.registry.Targets() {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s x%d", t.Label(), t.Direction, max(1, t.Multiplier))
		switch {
		case !t.Active():
			b.WriteString(": inactive")
		default:
			b.WriteString(": " + t.State().String())
		}
		if err := t.LastError(); err != nil {
			b.WriteString(" (" + err.Error() + ")")
		}
		lines = append(lines, b.String())
	}
	return lines
}
