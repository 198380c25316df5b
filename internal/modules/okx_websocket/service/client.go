package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	okx "trade_mirror/internal/modules/okx_client/service"
)

const (
	pingEvery      = 20 * time.Second
	reconnectDelay = time.Second
	loginTimeout   = 10 * time.Second
)

// Stream opens OKX websocket subscriptions. Each subscription owns one
// connection and reconnects until its context is done.
type Stream struct {
	publicURL  string
	privateURL string
	dialer     *websocket.Dialer
	log        *zap.Logger
}

func NewStream(publicURL, privateURL string, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{
		publicURL:  publicURL,
		privateURL: privateURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:        log.Named("okx_ws"),
	}
}

type arg struct {
	Channel  string `json:"channel"`
	InstType string `json:"instType,omitempty"`
	InstID   string `json:"instId,omitempty"`
}

type request struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type event struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

// SubscribeOrders streams executions of one account from the private orders channel.
func (s *Stream) SubscribeOrders(ctx context.Context, account string, creds okx.Credentials) <-chan models.FillEvent {
	out := make(chan models.FillEvent, 64)
	sub := arg{Channel: "orders", InstType: "SWAP"}
	go func() {
		defer close(out)
		s.run(ctx, s.privateURL, &creds, sub, func(msg []byte) bool {
			for _, f := range parseOrders(msg, account) {
				select {
				case out <- f:
				case <-ctx.Done():
					return false
				}
			}
			return true
		})
	}()
	return out
}

// SubscribeTickers streams last prices of one instrument from the public tickers channel.
func (s *Stream) SubscribeTickers(ctx context.Context, instID string) <-chan models.Tick {
	out := make(chan models.Tick, 16)
	sub := arg{Channel: "tickers", InstID: instID}
	go func() {
		defer close(out)
		s.run(ctx, s.publicURL, nil, sub, func(msg []byte) bool {
			for _, t := range parseTickers(msg) {
				// a stale price is useless; drop when the consumer lags
				select {
				case out <- t:
				default:
				}
			}
			return ctx.Err() == nil
		})
	}()
	return out
}

// run keeps one subscription alive. handle returns false to stop.
func (s *Stream) run(ctx context.Context, url string, creds *okx.Credentials, sub arg, handle func([]byte) bool) {
	for {
		if err := s.session(ctx, url, creds, sub, handle); err != nil {
			s.log.Warn("okx ws session ended", zap.String("channel", sub.Channel), zap.String("inst_id", sub.InstID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) session(ctx context.Context, url string, creds *okx.Credentials, sub arg, handle func([]byte) bool) error {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if creds != nil {
		if err := login(conn, *creds, time.Now()); err != nil {
			return err
		}
	}
	if err := conn.WriteJSON(request{Op: "subscribe", Args: []any{sub}}); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	s.log.Info("okx ws subscribed", zap.String("channel", sub.Channel), zap.String("inst_id", sub.InstID))

	// OKX drops idle connections after 30s
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}
		if string(msg) == "pong" {
			continue
		}
		var ev event
		if err := sonic.Unmarshal(msg, &ev); err == nil && ev.Event == "error" {
			return errors.Errorf("okx ws error %s: %s", ev.Code, ev.Msg)
		}
		if !handle(msg) {
			return nil
		}
	}
}

func login(conn *websocket.Conn, creds okx.Credentials, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	req := request{Op: "login", Args: []any{loginArg{
		APIKey:     creds.APIKey,
		Passphrase: creds.Passphrase,
		Timestamp:  ts,
		Sign:       okx.Sign(creds.APISecret, ts, "GET", "/users/self/verify", ""),
	}}}
	if err := conn.WriteJSON(req); err != nil {
		return errors.Wrap(err, "login")
	}

	_ = conn.SetReadDeadline(now.Add(loginTimeout))
	defer conn.SetReadDeadline(time.Time{})
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "login reply")
	}
	var ev event
	if err := sonic.Unmarshal(msg, &ev); err != nil {
		return errors.Wrap(err, "decode login reply")
	}
	if ev.Event != "login" || ev.Code != "0" {
		return errors.Errorf("login rejected: code=%s msg=%s", ev.Code, ev.Msg)
	}
	return nil
}
