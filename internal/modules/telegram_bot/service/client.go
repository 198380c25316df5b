package service

import (
	"context"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/modules/config"
)

// Controller is the part of the mirror session the chat can drive.
type Controller interface {
	Status() []string
	Enabled() bool
	SetEnabled(v bool)
}

type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram sends alerts and status lines to one chat and accepts /status,
// /on and /off from that chat only.
type Telegram struct {
	bot    botAPI
	api    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	mu   sync.RWMutex
	ctrl Controller
}

// NewTelegram returns nil when no token is configured.
func NewTelegram(cfg *config.Config, log *zap.Logger) (*Telegram, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot api")
	}
	return &Telegram{
		bot:    b,
		api:    b,
		chatID: cfg.Telegram.ChatID,
		log:    log.Named("telegram"),
	}, nil
}

func (t *Telegram) SetController(c Controller) {
	t.mu.Lock()
	t.ctrl = c
	t.mu.Unlock()
}

func (t *Telegram) controller() Controller {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctrl
}

func (t *Telegram) Send(_ context.Context, msg string) error {
	if t.chatID == 0 {
		return errors.New("telegram chat_id is not configured")
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg))
	return errors.Wrap(err, "telegram send")
}

// Start polls updates until ctx is done.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) Stop() {
	t.api.StopReceivingUpdates()
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	if msg.Chat.ID != t.chatID {
		t.log.Warn("command from unknown chat ignored", zap.Int64("chat_id", msg.Chat.ID))
		return
	}

	ctrl := t.controller()
	if ctrl == nil {
		_ = t.Send(ctx, "session is not running")
		return
	}

	var reply string
	switch msg.Command() {
	case "status", "start":
		reply = strings.Join(ctrl.Status(), "\n")
	case "on":
		ctrl.SetEnabled(true)
		reply = "▶️ mirroring ON"
	case "off":
		ctrl.SetEnabled(false)
		reply = "⏹ mirroring OFF"
	default:
		reply = "commands: /status /on /off"
	}
	if err := t.Send(ctx, reply); err != nil {
		t.log.Error("reply failed", zap.Error(err))
	}
}

// Log writes notifications to the process log when no chat is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log.Named("notify")} }

func (l *Log) Send(_ context.Context, msg string) error {
	l.log.Info(msg)
	return nil
}
