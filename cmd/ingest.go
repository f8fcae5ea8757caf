package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/validator"
)

var ingestGenes []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest new literature evidence without running the full pipeline",
	Long:  "Fetches newly published records for the given genes and persists the ones not seen before. Watermarks are not advanced; only a full run commits them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		genes := ingestGenes
		if len(genes) == 0 {
			calls, err := st.ListVariantCalls(ctx)
			if err != nil {
				return eris.Wrap(err, "list variant calls")
			}
			rs, err := loadRuleSet()
			if err != nil {
				return err
			}
			for _, v := range validator.Validate(calls, rs).Variants {
				if v.GeneSymbol != "" {
					genes = append(genes, v.GeneSymbol)
				}
			}
		}
		if len(genes) == 0 {
			return eris.New("no genes to ingest: import variant calls or pass --genes")
		}

		result, err := initIngestor(st).FetchNew(ctx, genes)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest finished",
			zap.Int("genes", len(genes)),
			zap.Int("new_records", len(result.Records)),
			zap.Strings("skipped_genes", result.SkippedGenes),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestGenes, "genes", nil, "gene symbols to ingest (default: genes of validated calls)")
	rootCmd.AddCommand(ingestCmd)
}
