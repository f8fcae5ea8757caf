package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import genotype calls from a CSV file",
	Long:  "Loads variant calls from a CSV with columns rsid,genotype,gene_symbol (header optional). Re-importing an rsid replaces its call.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		calls, err := readVariantCSV(importCSVPath)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return eris.Errorf("no variant calls in %s", importCSVPath)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ImportVariantCalls(ctx, calls)
		if err != nil {
			return eris.Wrap(err, "import variant calls")
		}

		zap.L().Info("import complete",
			zap.Int("imported", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func readVariantCSV(path string) ([]model.VariantCall, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true

	var calls []model.VariantCall
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		if strings.EqualFold(rec[0], "rsid") {
			continue
		}
		calls = append(calls, model.VariantCall{
			RSID:       strings.TrimSpace(rec[0]),
			Genotype:   strings.TrimSpace(rec[1]),
			GeneSymbol: strings.TrimSpace(rec[2]),
		})
	}
	return calls, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
