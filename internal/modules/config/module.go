package config

import "go.uber.org/fx"

// Module provides *Config read from configs/$CONFIG_FILE.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}
