package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_mirror/internal/mirror"
	"trade_mirror/internal/modules/telegram_bot/service"
	"trade_mirror/internal/runner"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			service.NewTelegram, // nil without a token
		),

		// alerts go to the chat when there is one, to the log otherwise
		fx.Provide(
			func(t *service.Telegram, log *zap.Logger) mirror.Notifier {
				if t == nil {
					return service.NewLog(log)
				}
				return t
			},
		),

		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, r *runner.Runner) {
				if t == nil {
					return
				}
				t.SetController(r)
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
