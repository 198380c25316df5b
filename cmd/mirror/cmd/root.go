package cmd

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trade_mirror/internal/modules/config"
	"trade_mirror/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Trade mirror: copy primary fills onto target accounts",
	Long: `Trade mirror listens to fills of one primary account/instrument and
reproduces each position change on up to ten target accounts, with
direction and size transforms and an equal-dollar protective bracket.

Commands:
    run       start the mirror session
    check     resolve accounts and instruments, then exit
    config    print the effective config with secrets masked
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if cfgFile != "" {
			dir, name := filepath.Split(cfgFile)
			if dir == "" {
				dir = "."
			}
			_ = os.Setenv("CONFIG_DIR", dir)
			_ = os.Setenv("CONFIG_FILE", name)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/values_local.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     cfg.Service.Name,
	})
}
