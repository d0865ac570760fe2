package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/solvex/mev-shield/internal/app"
	"github.com/solvex/mev-shield/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the protection service",
	Long: `Starts the MEV protection service, which will:
1. Accept order commitments and their later reveals over HTTP
2. Group revealed orders into per-market batches
3. Execute closed batches in fair order against the paper venue
4. Scan order flow for front-running patterns

Protection subsystems can be toggled at runtime through PATCH /api/config.`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
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

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
