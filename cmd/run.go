package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/app"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the matching backend",
	Long: `Starts the matching backend, which will:
1. Subscribe to requirement/availability lifecycle events
2. Dispatch match tasks through the priority queue
3. Score candidates through the risk gate and composite scorer
4. Deliver signed webhooks to subscribed tenant endpoints`,
	RunE: runServer,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("run app: %w", err)
	}
	return nil
}
