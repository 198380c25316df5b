package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trade_mirror/internal/mirror"
	bootstrap "trade_mirror/internal/modules/bootstrap/service"
	"trade_mirror/internal/modules/config"
	okxws "trade_mirror/internal/modules/okx_websocket/service"
	"trade_mirror/internal/runner"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Resolve the primary and every target, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		stream := okxws.NewStream(cfg.Platform.OKX.PublicWS, cfg.Platform.OKX.PrivateWS, log)
		p, err := bootstrap.NewPlatform(cfg, stream, log)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		bootstrap.NewWarmer(p, cfg, log).Warmup(ctx)

		reg := mirror.NewRegistry(cfg.Mirror.PrimaryAccount, cfg.Mirror.PrimaryInstrument, runner.TargetSpecs(cfg.Mirror), log)
		if err := reg.Resolve(ctx, p); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "platform %s: primary %s@%s\n", p.Name(), cfg.Mirror.PrimaryInstrument, cfg.Mirror.PrimaryAccount)
		for _, t := range reg.Targets() {
			status := "ok"
			if !t.Active() {
				status = "inactive"
				if err := t.LastError(); err != nil {
					status += ": " + err.Error()
				}
			}
			fmt.Fprintf(out, "  %s %s x%d: %s\n", t.Label(), strings.ToLower(string(t.Direction)), max(1, t.Multiplier), status)
		}
		return nil
	},
}
