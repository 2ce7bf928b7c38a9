package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/subscription"
	"github.com/sells-group/rabatt-cli/pkg/stripe"
)

var (
	subEmail string
	subWatch time.Duration
)

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Look up the subscription status for an email",
	Long:  "Prints the subscription status for --email. With --watch the status is re-checked on that interval, throttled by subscription.min_interval, until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("subscription"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		checker := subscription.NewChecker(stripe.NewClient(cfg.Stripe.Key, stripe.WithBaseURL(cfg.Stripe.BaseURL)))
		session := subscription.NewSession(checker, subEmail, cfg.Subscription.MinInterval)

		status, err := session.Refresh(ctx, time.Now())
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), status); err != nil {
			return err
		}
		if subWatch <= 0 {
			return nil
		}

		ticker := time.NewTicker(subWatch)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				next, err := session.Refresh(ctx, now)
				if err != nil {
					zap.L().Warn("subscription refresh failed", zap.Error(err))
					continue
				}
				if !next.Equal(status) {
					status = next
					if err := printJSON(cmd.OutOrStdout(), status); err != nil {
						return err
					}
				}
			}
		}
	},
}

func init() {
	subscriptionCmd.Flags().StringVar(&subEmail, "email", "", "customer email")
	subscriptionCmd.Flags().DurationVar(&subWatch, "watch", 0, "re-check interval (0 checks once)")
	_ = subscriptionCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(subscriptionCmd)
}
