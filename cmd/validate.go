package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/guardian-genomics/guardian-cli/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stored genotype calls and print the result",
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

		calls, err := st.ListVariantCalls(ctx)
		if err != nil {
			return eris.Wrap(err, "list variant calls")
		}

		rs, err := loadRuleSet()
		if err != nil {
			return err
		}

		res := validator.Validate(calls, rs)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
