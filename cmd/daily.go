package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dailyStores string

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run one daily update: scrape, expire and rescore",
	Long:  "Starts the scrape in the background, expires codes past their validity date, rescores codes from the last window of user reports and waits for the scrape to finish.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("daily"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum := env.Pipeline.Daily(ctx, parseStores(dailyStores))
		if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
			return err
		}

		// The scrape outlives the summary; keep the process up until it's done.
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()
		if err := env.Dispatcher.Wait(waitCtx); err != nil {
			zap.L().Warn("scrape still running at exit", zap.Error(err))
		}
		return nil
	},
}

func init() {
	dailyCmd.Flags().StringVar(&dailyStores, "stores", "", "comma-separated store ids (default all)")
	rootCmd.AddCommand(dailyCmd)
}
