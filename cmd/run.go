package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runGenes []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a full surveillance run",
	Long:  "Validates stored genotype calls, ingests new literature for the carrier genes, scores carrier/evidence pairs, and writes a delta report of findings never reported before.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, runGenes)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		zap.L().Info("run finished",
			zap.String("run_id", result.Run.ID),
			zap.String("status", string(result.Run.Status)),
			zap.Int("new_findings", len(result.Report.NewFindings)),
		)

		fmt.Fprintln(os.Stdout, result.Rendered)
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runGenes, "genes", nil, "restrict ingestion to these gene symbols (default: genes of validated calls)")
	rootCmd.AddCommand(runCmd)
}
