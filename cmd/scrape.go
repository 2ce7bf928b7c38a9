package main

import (
	"github.com/spf13/cobra"
)

var scrapeStores string

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape aggregators and reconcile discount codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Pipeline.ScrapeAll(ctx, parseStores(scrapeStores))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeStores, "stores", "", "comma-separated store ids (default all)")
	rootCmd.AddCommand(scrapeCmd)
}
