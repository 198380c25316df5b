package mirror

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	"trade_mirror/internal/platform/paper"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memJournal struct {
	mu     sync.Mutex
	events []Event
}

func (j *memJournal) Record(_ context.Context, ev Event) error {
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()
	return nil
}

func (j *memJournal) kinds() []EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]EventKind, 0, len(j.events))
	for _, ev := range j.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	paper      *paper.Platform
	registry   *Registry
	dispatcher *Dispatcher
	clock      *fakeClock
	journal    *memJournal
}

func newFixture(t *testing.T, atomicBracket bool, specs ...TargetSpec) *fixture {
	t.Helper()

	p := paper.New(nil)
	p.AddInstrument(mnq)
	p.AddInstrument(mes)
	p.AddAccount("Primary")
	p.AddAccount("SimA")
	p.AddAccount("SimB")
	p.SetPrice("MNQ", 18000)
	p.SetPrice("MES", 5000)

	reg := NewRegistry("Primary", "MNQ", specs, zap.NewNop())
	require.NoError(t, reg.Resolve(context.Background(), p))

	clock := &fakeClock{now: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)}
	journal := &memJournal{}
	d := NewDispatcher(Options{
		Platform:      p,
		Registry:      reg,
		Risk:          PrimaryRisk{Mode: models.RiskDollars, StopLoss: 200, TakeProfit: 100},
		AtomicBracket: atomicBracket,
		Enabled:       true,
		Journal:       journal,
		Logger:        zap.NewNop(),
		Now:           clock.Now,
	})
	return &fixture{paper: p, registry: reg, dispatcher: d, clock: clock, journal: journal}
}

func primaryFill(dir models.MarketPosition, qty int) models.FillEvent {
	return models.FillEvent{
		Account:    "Primary",
		Instrument: "MNQ",
		Direction:  dir,
		Quantity:   qty,
		State:      models.OrderFilled,
		OrderID:    "primary-1",
		Price:      18000,
	}
}

func TestDispatcher_BuyTwoOppositeTimesThree(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionOpposite, Multiplier: 3})

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 2))
	require.Equal(t, DecisionAccepted, res.Decision)
	require.Len(t, res.Targets, 1)
	tr := res.Targets[0]
	require.NoError(t, tr.Err)

	assert.Equal(t, 200.0, tr.Plan.TakeProfitDollars)
	assert.Equal(t, 100.0, tr.Plan.StopLossDollars)

	orders := f.paper.Orders("SimA")
	require.Len(t, orders, 1)
	entry := orders[0]
	assert.Equal(t, models.ActionSellShort, entry.Action)
	assert.Equal(t, models.OrderMarket, entry.Type)
	assert.Equal(t, 6, entry.Quantity)
	require.NotNil(t, entry.Bracket)
	assert.Equal(t, 27, entry.Bracket.TakeProfitTicks)
	assert.Equal(t, 13, entry.Bracket.StopLossTicks)

	pos, err := f.paper.Position(context.Background(), tr.Target.Account, tr.Target.Instrument)
	require.NoError(t, err)
	assert.Equal(t, models.Short, pos.Market)
	assert.Equal(t, -6, pos.Quantity)

	working := f.paper.Working("SimA")
	require.Len(t, working, 2)
	for _, o := range working {
		assert.Equal(t, entry.Bracket.OCO, o.OCO)
		assert.Equal(t, models.ActionBuyToCover, o.Action)
	}
	assert.Equal(t, StateBracketed, tr.Target.State())
	assert.Equal(t, entry.Bracket.OCO, tr.Target.Bracket())
}

func TestDispatcher_DiscreteBracket(t *testing.T) {
	f := newFixture(t, false, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
	require.Equal(t, DecisionAccepted, res.Decision)
	require.NoError(t, res.Targets[0].Err)

	orders := f.paper.Orders("SimA")
	require.Len(t, orders, 3)

	entry, tp, sl := orders[0], orders[1], orders[2]
	assert.Equal(t, models.ActionBuy, entry.Action)
	assert.Nil(t, entry.Bracket)

	assert.Equal(t, models.OrderLimit, tp.Type)
	assert.Equal(t, models.ActionSell, tp.Action)
	assert.Equal(t, 5020.0, tp.LimitPrice) // $100 / $1.25 = 80 ticks

	assert.Equal(t, models.OrderStopMarket, sl.Type)
	assert.Equal(t, models.ActionSell, sl.Action)
	assert.Equal(t, 4960.0, sl.StopPrice) // $200 / $1.25 = 160 ticks

	assert.NotEmpty(t, tp.OCO)
	assert.Equal(t, tp.OCO, sl.OCO)
	assert.Len(t, f.paper.Working("SimA"), 2)
}

func TestDispatcher_DebounceYieldsOneMirrorAction(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})
	ctx := context.Background()

	first := f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1))
	assert.Equal(t, DecisionAccepted, first.Decision)

	f.clock.Advance(400 * time.Millisecond)
	second := f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1))
	assert.Equal(t, DecisionDebounced, second.Decision)
	assert.Empty(t, second.Targets)

	assert.Len(t, f.paper.Orders("SimA"), 1)

	f.clock.Advance(600 * time.Millisecond)
	third := f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1))
	assert.Equal(t, DecisionAccepted, third.Decision)
}

func TestDispatcher_ConcurrentFillsOnlyOnePasses(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
			if res.Decision == DecisionAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestDispatcher_FlattensExistingPositionFirst(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})
	ctx := context.Background()

	require.Equal(t, DecisionAccepted, f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1)).Decision)
	firstOCO := f.registry.Targets()[0].Bracket()
	require.NotEmpty(t, firstOCO)

	f.clock.Advance(2 * time.Second)
	res := f.dispatcher.HandleFill(ctx, primaryFill(models.Short, 2))
	require.Equal(t, DecisionAccepted, res.Decision)
	require.NoError(t, res.Targets[0].Err)

	orders := f.paper.Orders("SimA")
	require.Len(t, orders, 3)
	flatten, entry := orders[1], orders[2]
	assert.Equal(t, models.ActionSell, flatten.Action)
	assert.Equal(t, 1, flatten.Quantity)
	assert.Equal(t, models.ActionSellShort, entry.Action)
	assert.Equal(t, 2, entry.Quantity)

	// the first bracket was cancelled, only the new pair rests
	working := f.paper.Working("SimA")
	require.Len(t, working, 2)
	for _, o := range working {
		assert.NotEqual(t, firstOCO, o.OCO)
	}

	pos, err := f.paper.Position(ctx, res.Targets[0].Target.Account, res.Targets[0].Target.Instrument)
	require.NoError(t, err)
	assert.Equal(t, -2, pos.Quantity)
}

func TestDispatcher_Filters(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})
	ctx := context.Background()

	mirrorInstrument := primaryFill(models.Long, 1)
	mirrorInstrument.Instrument = "MES"
	assert.Equal(t, DecisionForeignInstrument, f.dispatcher.HandleFill(ctx, mirrorInstrument).Decision)

	mirrorAccount := primaryFill(models.Long, 1)
	mirrorAccount.Account = "SimA"
	assert.Equal(t, DecisionForeignAccount, f.dispatcher.HandleFill(ctx, mirrorAccount).Decision)

	partial := primaryFill(models.Long, 1)
	partial.State = models.OrderPartFilled
	assert.Equal(t, DecisionNotFilled, f.dispatcher.HandleFill(ctx, partial).Decision)

	assert.Equal(t, DecisionFlat, f.dispatcher.HandleFill(ctx, primaryFill(models.Flat, 1)).Decision)

	f.dispatcher.SetEnabled(false)
	assert.Equal(t, DecisionDisabled, f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1)).Decision)

	assert.Empty(t, f.paper.Orders("SimA"))

	// filtered fills do not consume the debounce window
	f.dispatcher.SetEnabled(true)
	assert.Equal(t, DecisionAccepted, f.dispatcher.HandleFill(ctx, primaryFill(models.Long, 1)).Decision)
}

func TestDispatcher_UnresolvableTargetIsIsolated(t *testing.T) {
	f := newFixture(t, true,
		TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1},
		TargetSpec{Instrument: "MES", Account: "Ghost", Direction: models.DirectionSame, Multiplier: 1},
		TargetSpec{Instrument: "MNQ", Account: "SimB", Direction: models.DirectionOpposite, Multiplier: 2},
	)

	targets := f.registry.Targets()
	require.Len(t, targets, 3)
	assert.False(t, targets[1].Active())
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(targets[1].LastError(), &cfgErr))

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
	require.Equal(t, DecisionAccepted, res.Decision)
	require.Len(t, res.Targets, 2)
	for _, tr := range res.Targets {
		assert.NoError(t, tr.Err)
	}

	a := f.paper.Orders("SimA")
	require.Len(t, a, 1)
	assert.Equal(t, models.ActionBuy, a[0].Action)
	assert.Equal(t, 1, a[0].Quantity)

	b := f.paper.Orders("SimB")
	require.Len(t, b, 1)
	assert.Equal(t, models.ActionSellShort, b[0].Action)
	assert.Equal(t, 2, b[0].Quantity)
}

func TestDispatcher_SubmissionFailureIsIsolated(t *testing.T) {
	f := newFixture(t, false,
		TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1},
		TargetSpec{Instrument: "MES", Account: "SimB", Direction: models.DirectionSame, Multiplier: 1},
	)
	f.paper.RejectOrders("SimA", errors.New("margin exceeded"))

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
	require.Len(t, res.Targets, 2)

	var subErr *SubmissionError
	require.True(t, errors.As(res.Targets[0].Err, &subErr))
	assert.Equal(t, "entry", subErr.Stage)
	assert.Equal(t, "submission", Classify(res.Targets[0].Err))
	assert.Equal(t, StateIdle, res.Targets[0].Target.State())

	assert.NoError(t, res.Targets[1].Err)
	assert.Len(t, f.paper.Orders("SimB"), 3)
	assert.Contains(t, f.journal.kinds(), EventFailure)
}

func TestDispatcher_TransientReadSkipsCycle(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})
	f.paper.FailPositions("SimA", errors.New("position service unavailable"))

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "transient", Classify(res.Targets[0].Err))
	assert.Empty(t, f.paper.Orders("SimA"))
	assert.True(t, res.Targets[0].Target.Active())
}

func TestDispatcher_BusyTargetIsSkipped(t *testing.T) {
	f := newFixture(t, true, TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionSame, Multiplier: 1})
	target := f.registry.Targets()[0]
	target.busy.Store(true)

	res := f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))
	require.Len(t, res.Targets, 1)
	assert.True(t, res.Targets[0].Skipped)
	assert.Empty(t, f.paper.Orders("SimA"))
}

func TestDispatcher_JournalAndStatus(t *testing.T) {
	f := newFixture(t, true,
		TargetSpec{Instrument: "MES", Account: "SimA", Direction: models.DirectionOpposite, Multiplier: 3},
		TargetSpec{Instrument: "ES", Account: "SimB", Direction: models.DirectionSame, Multiplier: 1},
	)
	f.dispatcher.HandleFill(context.Background(), primaryFill(models.Long, 1))

	assert.Equal(t, []EventKind{EventFillAccepted, EventOrder}, f.journal.kinds())

	lines := f.dispatcher.Status()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "mirror ON"))
	assert.Contains(t, lines[0], "MNQ@Primary")
	assert.Contains(t, lines[1], "#1 MES@SimA opposite x3: bracketed")
	assert.Contains(t, lines[2], "inactive")
}
