package cmd

import (
	"github.com/spf13/cobra"

	"trade_mirror/internal/modules/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective config with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfig()
		if err != nil {
			return err
		}
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
