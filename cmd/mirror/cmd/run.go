package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"trade_mirror/internal/modules/bootstrap"
	"trade_mirror/internal/modules/config"
	"trade_mirror/internal/modules/health"
	"trade_mirror/internal/modules/okx_websocket"
	"trade_mirror/internal/modules/postgres"
	telegram "trade_mirror/internal/modules/telegram_bot"
	"trade_mirror/internal/runner"
	"trade_mirror/pkg/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the mirror session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			fx.Provide(
				func() context.Context {
					return context.Background()
				},
				newLogger,
			),
			fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: log.Named("fx")}
			}),
			config.Module(),
			fx.Invoke(initTracing),
			okx_websocket.Module(),
			bootstrap.Module(),
			postgres.Module(),
			runner.Module(),
			telegram.Module(),
			health.Module(),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	tracing.SetServiceName(cfg.Service.Name)
	_, closer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
