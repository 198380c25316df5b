// Package okx adapts OKX perpetual swaps to the platform boundary. Accounts
// are sub-accounts with their own API keys; positions are read in net mode.
package okx

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	rest "trade_mirror/internal/modules/okx_client/service"
	"trade_mirror/internal/platform"
)

// Streamer is the websocket side of the adapter.
type Streamer interface {
	SubscribeOrders(ctx context.Context, account string, creds rest.Credentials) <-chan models.FillEvent
	SubscribeTickers(ctx context.Context, instID string) <-chan models.Tick
}

type Options struct {
	BaseURL   string
	Simulated bool
	Accounts  map[string]rest.Credentials
	Stream    Streamer
	Logger    *zap.Logger
}

type Platform struct {
	public   *rest.Client
	accounts map[string]*rest.Client
	creds    map[string]rest.Credentials
	stream   Streamer
	log      *zap.Logger
}

var _ platform.Platform = (*Platform)(nil)

func New(opts Options) *Platform {
	p := &Platform{
		public:   rest.NewClient(opts.BaseURL, rest.Credentials{}, opts.Simulated),
		accounts: make(map[string]*rest.Client, len(opts.Accounts)),
		creds:    make(map[string]rest.Credentials, len(opts.Accounts)),
		stream:   opts.Stream,
		log:      opts.Logger,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	for name, cr := range opts.Accounts {
		p.accounts[name] = rest.NewClient(opts.BaseURL, cr, opts.Simulated)
		p.creds[name] = cr
	}
	return p
}

func (p *Platform) Name() string { return "okx" }

func (p *Platform) client(account string) (*rest.Client, error) {
	c, ok := p.accounts[account]
	if !ok {
		return nil, errors.Wrapf(platform.ErrNotFound, "okx account %q has no credentials", account)
	}
	return c, nil
}

func (p *Platform) ResolveInstrument(ctx context.Context, name string) (models.Instrument, error) {
	inst, err := p.public.GetInstrumentMeta(ctx, name)
	if err != nil {
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) {
			return models.Instrument{}, errors.Wrapf(platform.ErrNotFound, "instrument %s: %v", name, err)
		}
		return models.Instrument{}, errors.Wrapf(err, "resolve instrument %s", name)
	}
	return inst, nil
}

func (p *Platform) ResolveAccount(ctx context.Context, name string) (models.Account, error) {
	c, err := p.client(name)
	if err != nil {
		return models.Account{}, err
	}
	uid, err := c.GetAccountUID(ctx)
	if err != nil {
		return models.Account{}, errors.Wrapf(err, "resolve account %s", name)
	}
	return models.Account{Name: name, ID: uid}, nil
}

func (p *Platform) Position(ctx context.Context, account models.Account, instrument models.Instrument) (models.Position, error) {
	c, err := p.client(account.Name)
	if err != nil {
		return models.Position{}, err
	}
	return c.GetPosition(ctx, instrument.Name)
}

func (p *Platform) LastPrice(ctx context.Context, instrument models.Instrument) (float64, error) {
	return p.public.GetLastPrice(ctx, instrument.Name)
}

// Submit sends market orders one by one. Limit and stop orders sharing an OCO
// id become one oco algo; a lone leg becomes a conditional algo.
func (p *Platform) Submit(ctx context.Context, account models.Account, orders ...models.Order) error {
	c, err := p.client(account.Name)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Quantity <= 0 {
			return errors.Errorf("order %s: quantity %d", o.Name, o.Quantity)
		}
	}

	groups := make(map[string][]models.Order)
	var keys []string
	for _, o := range orders {
		if o.Type == models.OrderMarket {
			if _, err := c.PlaceOrder(ctx, marketRequest(o)); err != nil {
				return errors.Wrapf(err, "place %s", o.Name)
			}
			continue
		}
		key := o.OCO
		if key == "" {
			key = o.ID
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], o)
	}

	for _, key := range keys {
		req, err := algoRequest(groups[key])
		if err != nil {
			return err
		}
		if _, err := c.PlaceAlgo(ctx, req); err != nil {
			return errors.Wrapf(err, "place bracket %s", key)
		}
	}
	return nil
}

func side(a models.OrderAction) string {
	if a.IsBuy() {
		return "buy"
	}
	return "sell"
}

func marketRequest(o models.Order) rest.OrderRequest {
	req := rest.OrderRequest{
		InstID:     o.Instrument,
		Side:       side(o.Action),
		OrdType:    "market",
		Sz:         rest.FormatSize(o.Quantity),
		ClOrdID:    rest.ClientID(o.ID),
		ReduceOnly: !o.Action.Opens(),
	}
	if b := o.Bracket; !b.Empty() {
		attach := rest.AttachAlgo{AttachAlgoClOrdID: rest.ClientID(b.OCO)}
		if b.TakeProfitTicks > 0 {
			attach.TpTriggerPx = rest.FormatPrice(b.TakeProfitPrice)
			attach.TpOrdPx = "-1"
		}
		if b.StopLossTicks > 0 {
			attach.SlTriggerPx = rest.FormatPrice(b.StopLossPrice)
			attach.SlOrdPx = "-1"
		}
		req.AttachAlgoOrds = []rest.AttachAlgo{attach}
	}
	return req
}

func algoRequest(legs []models.Order) (rest.AlgoRequest, error) {
	first := legs[0]
	req := rest.AlgoRequest{
		InstID:      first.Instrument,
		Side:        side(first.Action),
		Sz:          rest.FormatSize(first.Quantity),
		AlgoClOrdID: rest.ClientID(first.OCO),
		ReduceOnly:  true,
	}
	for _, o := range legs {
		if o.Action != first.Action || o.Quantity != first.Quantity || o.Instrument != first.Instrument {
			return rest.AlgoRequest{}, errors.Errorf("bracket %s: legs disagree", first.OCO)
		}
		switch o.Type {
		case models.OrderLimit:
			req.TpTriggerPx = rest.FormatPrice(o.LimitPrice)
			req.TpOrdPx = rest.FormatPrice(o.LimitPrice)
		case models.OrderStopMarket:
			req.SlTriggerPx = rest.FormatPrice(o.StopPrice)
			req.SlOrdPx = "-1"
		default:
			return rest.AlgoRequest{}, errors.Errorf("order %s: unsupported type %s", o.Name, o.Type)
		}
	}
	req.OrdType = "conditional"
	if req.TpTriggerPx != "" && req.SlTriggerPx != "" {
		req.OrdType = "oco"
	}
	return req, nil
}

// CancelOCO cancels every pending algo whose client id was derived from oco.
func (p *Platform) CancelOCO(ctx context.Context, account models.Account, oco string) error {
	c, err := p.client(account.Name)
	if err != nil {
		return err
	}
	pending, err := c.PendingAlgos(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list pending algos")
	}

	id := rest.ClientID(oco)
	byInst := make(map[string][]string)
	for _, a := range pending {
		if a.AlgoClOrdID == id {
			byInst[a.InstID] = append(byInst[a.InstID], a.AlgoID)
		}
	}
	for inst, ids := range byInst {
		if err := c.CancelAlgos(ctx, inst, ids...); err != nil {
			return errors.Wrapf(err, "cancel bracket %s", oco)
		}
	}
	return nil
}

func (p *Platform) SubscribeFills(ctx context.Context, account models.Account) (<-chan models.FillEvent, func(), error) {
	if p.stream == nil {
		return nil, nil, errors.New("okx stream is not configured")
	}
	cr, ok := p.creds[account.Name]
	if !ok {
		return nil, nil, errors.Wrapf(platform.ErrNotFound, "okx account %q has no credentials", account.Name)
	}
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	return p.stream.SubscribeOrders(ctx, account.Name, cr), func() { once.Do(cancel) }, nil
}

func (p *Platform) Ticks(ctx context.Context, instrument models.Instrument) (<-chan models.Tick, error) {
	if p.stream == nil {
		return nil, errors.New("okx stream is not configured")
	}
	return p.stream.SubscribeTickers(ctx, instrument.Name), nil
}
