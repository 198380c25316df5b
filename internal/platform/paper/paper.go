// Package paper is an in-memory platform. Market orders fill at the last
// price; limit and stop orders rest until SetPrice crosses them, and the first
// leg of an OCO group to fill cancels its siblings.
package paper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

const streamBuffer = 64

type position struct {
	qty int
	avg float64
}

type working struct {
	account string
	order   models.Order
}

type fillSub struct {
	account string
	ch      chan models.FillEvent
}

type tickSub struct {
	instrument string
	ch         chan models.Tick
}

type Platform struct {
	log *zap.Logger
	now func() time.Time

	mu          sync.Mutex
	instruments map[string]models.Instrument
	accounts    map[string]models.Account
	prices      map[string]float64
	positions   map[models.PositionKey]*position
	working     []working
	history     map[string][]models.Order

	rejects       map[string]error
	positionFails map[string]error
	priceFails    map[string]error

	nextSub  int
	fillSubs map[int]fillSub
	tickSubs map[int]tickSub
}

func New(log *zap.Logger) *Platform {
	if log == nil {
		log = zap.NewNop()
	}
	return &Platform{
		log:           log,
		now:           time.Now,
		instruments:   make(map[string]models.Instrument),
		accounts:      make(map[string]models.Account),
		prices:        make(map[string]float64),
		positions:     make(map[models.PositionKey]*position),
		history:       make(map[string][]models.Order),
		rejects:       make(map[string]error),
		positionFails: make(map[string]error),
		priceFails:    make(map[string]error),
		fillSubs:      make(map[int]fillSub),
		tickSubs:      make(map[int]tickSub),
	}
}

func (p *Platform) Name() string { return "paper" }

func (p *Platform) AddInstrument(inst models.Instrument) {
	if inst.DisplayName == "" {
		inst.DisplayName = inst.Name
	}
	p.mu.Lock()
	p.instruments[inst.Name] = inst
	p.mu.Unlock()
}

func (p *Platform) AddAccount(name string) models.Account {
	acc := models.Account{Name: name, ID: name}
	p.mu.Lock()
	p.accounts[name] = acc
	p.mu.Unlock()
	return acc
}

func (p *Platform) ResolveInstrument(_ context.Context, name string) (models.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instruments[strings.TrimSpace(name)]
	if !ok {
		return models.Instrument{}, errors.Wrapf(platform.ErrNotFound, "instrument %q", name)
	}
	return inst, nil
}

func (p *Platform) ResolveAccount(_ context.Context, name string) (models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[strings.TrimSpace(name)]
	if !ok {
		return models.Account{}, errors.Wrapf(platform.ErrNotFound, "account %q", name)
	}
	return acc, nil
}

func (p *Platform) Position(_ context.Context, account models.Account, instrument models.Instrument) (models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.positionFails[account.Name]; err != nil {
		return models.Position{}, err
	}
	pos, ok := p.positions[models.PositionKey{Account: account.Name, Instrument: instrument.Name}]
	if !ok {
		return models.FlatPosition(), nil
	}
	return models.PositionFromQuantity(pos.qty, pos.avg), nil
}

func (p *Platform) LastPrice(_ context.Context, instrument models.Instrument) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.priceFails[instrument.Name]; err != nil {
		return 0, err
	}
	px, ok := p.prices[instrument.Name]
	if !ok || px <= 0 {
		return 0, errors.Errorf("no price for %s", instrument.Name)
	}
	return px, nil
}

// Submit validates the whole batch before anything fills, so a rejected batch
// leaves no partial state.
func (p *Platform) Submit(_ context.Context, account models.Account, orders ...models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.rejects[account.Name]; err != nil {
		return err
	}
	if _, ok := p.accounts[account.Name]; !ok {
		return errors.Wrapf(platform.ErrNotFound, "account %q", account.Name)
	}
	for i := range orders {
		o := &orders[i]
		if o.Quantity <= 0 {
			return errors.Errorf("order %s: quantity must be positive", o.Name)
		}
		if _, ok := p.instruments[o.Instrument]; !ok {
			return errors.Wrapf(platform.ErrNotFound, "instrument %q", o.Instrument)
		}
		if o.Type == models.OrderMarket {
			if px := p.prices[o.Instrument]; px <= 0 {
				return errors.Errorf("order %s: no price for %s", o.Name, o.Instrument)
			}
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
	}

	for _, o := range orders {
		p.history[account.Name] = append(p.history[account.Name], o)
		if o.Type != models.OrderMarket {
			p.working = append(p.working, working{account: account.Name, order: o})
			continue
		}
		px := p.prices[o.Instrument]
		p.fill(account.Name, o, px)
		if !o.Bracket.Empty() {
			p.attach(account.Name, o, px)
		}
	}
	return nil
}

// attach places the protective pair of an atomic bracket relative to the entry fill.
func (p *Platform) attach(account string, entry models.Order, fillPx float64) {
	inst := p.instruments[entry.Instrument]
	b := entry.Bracket
	exit := entry.Action.ExitAction()
	long := entry.Action.IsBuy()
	if b.TakeProfitTicks > 0 {
		p.working = append(p.working, working{account: account, order: models.Order{
			ID:         uuid.NewString(),
			Name:       entry.Name + "-tp",
			Instrument: entry.Instrument,
			Action:     exit,
			Type:       models.OrderLimit,
			Quantity:   entry.Quantity,
			LimitPrice: offset(fillPx, b.TakeProfitTicks, inst.TickSize, long),
			OCO:        b.OCO,
		}})
	}
	if b.StopLossTicks > 0 {
		p.working = append(p.working, working{account: account, order: models.Order{
			ID:         uuid.NewString(),
			Name:       entry.Name + "-sl",
			Instrument: entry.Instrument,
			Action:     exit,
			Type:       models.OrderStopMarket,
			Quantity:   entry.Quantity,
			StopPrice:  offset(fillPx, b.StopLossTicks, inst.TickSize, !long),
			OCO:        b.OCO,
		}})
	}
}

func (p *Platform) CancelOCO(_ context.Context, account models.Account, oco string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.rejects[account.Name]; err != nil {
		return err
	}
	p.cancelGroup(account.Name, oco, "")
	return nil
}

func (p *Platform) cancelGroup(account, oco, except string) {
	if oco == "" {
		return
	}
	kept := p.working[:0]
	for _, w := range p.working {
		if w.account == account && w.order.OCO == oco && w.order.ID != except {
			p.emit(account, w.order, 0, models.OrderCancelled)
			continue
		}
		kept = append(kept, w)
	}
	p.working = kept
}

// SetPrice moves the last price of an instrument, triggers resting orders it
// crosses and publishes a tick.
func (p *Platform) SetPrice(instrument string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[instrument] = price

	for {
		idx := -1
		for i, w := range p.working {
			if w.order.Instrument == instrument && triggered(w.order, price) {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		w := p.working[idx]
		p.working = append(p.working[:idx], p.working[idx+1:]...)
		px := price
		if w.order.Type == models.OrderLimit {
			px = w.order.LimitPrice
		}
		p.fill(w.account, w.order, px)
		p.cancelGroup(w.account, w.order.OCO, w.order.ID)
	}

	tick := models.Tick{Instrument: instrument, Price: price, Time: p.now()}
	for _, s := range p.tickSubs {
		if s.instrument != instrument {
			continue
		}
		select {
		case s.ch <- tick:
		default:
		}
	}
}

func triggered(o models.Order, price float64) bool {
	buy := o.Action.IsBuy()
	switch o.Type {
	case models.OrderLimit:
		if buy {
			return price <= o.LimitPrice
		}
		return price >= o.LimitPrice
	case models.OrderStopMarket:
		if buy {
			return price >= o.StopPrice
		}
		return price <= o.StopPrice
	}
	return false
}

func (p *Platform) fill(account string, o models.Order, px float64) {
	key := models.PositionKey{Account: account, Instrument: o.Instrument}
	pos, ok := p.positions[key]
	if !ok {
		pos = &position{}
		p.positions[key] = pos
	}
	delta := o.Quantity
	if !o.Action.IsBuy() {
		delta = -delta
	}
	next := pos.qty + delta
	switch {
	case next == 0:
		pos.avg = 0
	case pos.qty == 0 || (pos.qty > 0) != (next > 0):
		pos.avg = px
	case (pos.qty > 0) == (delta > 0):
		pos.avg = (pos.avg*float64(abs(pos.qty)) + px*float64(abs(delta))) / float64(abs(next))
	}
	pos.qty = next
	p.emit(account, o, px, models.OrderFilled)
}

func (p *Platform) emit(account string, o models.Order, px float64, state models.OrderState) {
	dir := models.Short
	if o.Action.IsBuy() {
		dir = models.Long
	}
	ev := models.FillEvent{
		Account:    account,
		Instrument: o.Instrument,
		Direction:  dir,
		Quantity:   o.Quantity,
		State:      state,
		OrderID:    o.ID,
		Price:      px,
		Time:       p.now(),
	}
	for _, s := range p.fillSubs {
		if s.account != account {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			p.log.Warn("paper fill dropped, subscriber is slow", zap.String("account", account))
		}
	}
}

func (p *Platform) SubscribeFills(ctx context.Context, account models.Account) (<-chan models.FillEvent, func(), error) {
	p.mu.Lock()
	if _, ok := p.accounts[account.Name]; !ok {
		p.mu.Unlock()
		return nil, nil, errors.Wrapf(platform.ErrNotFound, "account %q", account.Name)
	}
	id := p.nextSub
	p.nextSub++
	ch := make(chan models.FillEvent, streamBuffer)
	p.fillSubs[id] = fillSub{account: account.Name, ch: ch}
	p.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.fillSubs, id)
			close(ch)
			p.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}

func (p *Platform) Ticks(ctx context.Context, instrument models.Instrument) (<-chan models.Tick, error) {
	p.mu.Lock()
	if _, ok := p.instruments[instrument.Name]; !ok {
		p.mu.Unlock()
		return nil, errors.Wrapf(platform.ErrNotFound, "instrument %q", instrument.Name)
	}
	id := p.nextSub
	p.nextSub++
	ch := make(chan models.Tick, streamBuffer)
	p.tickSubs[id] = tickSub{instrument: instrument.Name, ch: ch}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.tickSubs, id)
		close(ch)
		p.mu.Unlock()
	}()
	return ch, nil
}

// SetPosition overrides the position of an account without emitting fills.
func (p *Platform) SetPosition(account, instrument string, qty int, avg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[models.PositionKey{Account: account, Instrument: instrument}] = &position{qty: qty, avg: avg}
}

// Orders returns every order submitted for account, in submission order.
func (p *Platform) Orders(account string) []models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Order, len(p.history[account]))
	copy(out, p.history[account])
	return out
}

// Working returns the resting orders of account.
func (p *Platform) Working(account string) []models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Order
	for _, w := range p.working {
		if w.account == account {
			out = append(out, w.order)
		}
	}
	return out
}

// RejectOrders makes every submission for account fail with err. A nil err clears it.
func (p *Platform) RejectOrders(account string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	setOrClear(p.rejects, account, err)
}

// FailPositions makes position reads for account fail with err. A nil err clears it.
func (p *Platform) FailPositions(account string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	setOrClear(p.positionFails, account, err)
}

// FailPrices makes last price reads for instrument fail with err. A nil err clears it.
func (p *Platform) FailPrices(instrument string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	setOrClear(p.priceFails, instrument, err)
}

func setOrClear(m map[string]error, key string, err error) {
	if err == nil {
		delete(m, key)
		return
	}
	m[key] = err
}

func offset(px float64, ticks int, tickSize float64, up bool) float64 {
	dist := decimal.NewFromFloat(tickSize).Mul(decimal.NewFromInt(int64(ticks)))
	base := decimal.NewFromFloat(px)
	if up {
		base = base.Add(dist)
	} else {
		base = base.Sub(dist)
	}
	f, _ := base.Float64()
	return f
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
