package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Genomic surveillance pipeline",
	Long:  "Validates genotype calls, ingests newly published gene literature, scores carrier variants for clinical relevance, and emits delta reports of never-before-seen findings.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
