package okx_websocket

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_mirror/internal/modules/config"
	"trade_mirror/internal/modules/okx_websocket/service"
)

// Module provides the OKX websocket streamer. Connections open only when a
// subscription is made.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Stream {
				o := cfg.Platform.OKX
				return service.NewStream(o.PublicWS, o.PrivateWS, log)
			},
		),
	)
}
