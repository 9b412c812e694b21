package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/config"
)

var cfg *config.Config

// modeAnnotation names the config validation mode a command needs. Commands
// without it validate in config.ModeStore.
const modeAnnotation = "config_mode"

var rootCmd = &cobra.Command{
	Use:   "qbank",
	Short: "Question bank ingestion and enrichment queue",
	Long: "Ingests harvested exam questions, rejects corrupted markup, and runs the " +
		"answer, subject, formatting and review enrichment workflows against a durable task queue.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if err := cfg.Validate(commandMode(cmd)); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func commandMode(cmd *cobra.Command) string {
	if m, ok := cmd.Annotations[modeAnnotation]; ok {
		return m
	}
	return config.ModeStore
}

func enrichMode() map[string]string {
	return map[string]string{modeAnnotation: config.ModeEnrich}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
