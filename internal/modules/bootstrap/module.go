package bootstrap

import (
	"context"

	"go.uber.org/fx"

	bootstrap "trade_mirror/internal/modules/bootstrap/service"
)

// Module provides the trading platform and checks the configured instruments
// on start.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			bootstrap.NewPlatform, // -> platform.Platform
			bootstrap.NewWarmer,
		),
		fx.Invoke(func(lc fx.Lifecycle, w *bootstrap.Warmer) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					w.Warmup(ctx)
					return nil
				},
			})
		}),
	)
}
