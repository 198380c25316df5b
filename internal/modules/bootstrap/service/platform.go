package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	"trade_mirror/internal/modules/config"
	rest "trade_mirror/internal/modules/okx_client/service"
	okxws "trade_mirror/internal/modules/okx_websocket/service"
	"trade_mirror/internal/platform"
	"trade_mirror/internal/platform/okx"
	"trade_mirror/internal/platform/paper"
)

// NewPlatform builds the platform named by platform.kind.
func NewPlatform(cfg *config.Config, stream *okxws.Stream, log *zap.Logger) (platform.Platform, error) {
	switch cfg.Platform.Kind {
	case config.PlatformPaper:
		return newPaper(cfg.Platform.Paper, log), nil
	case config.PlatformOKX:
		o := cfg.Platform.OKX
		if len(o.Accounts) == 0 {
			return nil, errors.New("platform.okx.accounts is empty")
		}
		accounts := make(map[string]rest.Credentials, len(o.Accounts))
		for name, cr := range o.Accounts {
			accounts[name] = rest.Credentials{APIKey: cr.APIKey, APISecret: cr.APISecret, Passphrase: cr.Passphrase}
		}
		opts := okx.Options{
			BaseURL:   o.BaseURL,
			Simulated: o.Simulated,
			Accounts:  accounts,
			Logger:    log,
		}
		if stream != nil {
			opts.Stream = stream
		}
		return okx.New(opts), nil
	}
	return nil, errors.Errorf("unknown platform kind %q", cfg.Platform.Kind)
}

func newPaper(pc config.PaperConfig, log *zap.Logger) *paper.Platform {
	p := paper.New(log)
	for _, name := range pc.Accounts {
		p.AddAccount(name)
	}
	for _, in := range pc.Instruments {
		p.AddInstrument(models.Instrument{
			Name:        in.Name,
			DisplayName: in.Name,
			TickSize:    in.TickSize,
			PointValue:  in.PointValue,
		})
		if in.Price > 0 {
			p.SetPrice(in.Name, in.Price)
		}
	}
	return p
}
