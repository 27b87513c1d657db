package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "kandidatentekort",
	Short: "Vacancy analysis intake service",
	Long:  "Receives vacancy-check form submissions, analyses the vacancy text with Claude, syncs the lead to Pipedrive and emails the improved vacancy text.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal in production.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
