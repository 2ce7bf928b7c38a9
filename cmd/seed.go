package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/rabatt-cli/internal/catalog"
)

var seedPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load stores, alternatives and starting codes from a catalog file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx := cmd.Context()

		f, err := catalog.LoadSeed(seedPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		res, err := catalog.New(st).Seed(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPath, "catalog", "catalog.yaml", "path to the catalog seed file")
	rootCmd.AddCommand(seedCmd)
}
