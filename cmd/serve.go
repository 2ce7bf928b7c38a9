package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rabatt-cli/internal/pipeline"
	"github.com/sells-group/rabatt-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the refresh triggers and catalog API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deps := server.Deps{
			Catalog:   env.Catalog,
			Preflight: cfg.ValidateScrapeKeys,
		}
		// Leave interface fields nil rather than holding typed nil pointers.
		if env.Pipeline != nil {
			deps.Pipeline = env.Pipeline
		}
		if env.Subscriptions != nil {
			deps.Subscriptions = env.Subscriptions
		}
		srv := server.New(deps)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		g, gctx := errgroup.WithContext(ctx)

		if env.Pipeline != nil && cfg.Schedule.Daily != "" {
			c, err := startSchedule(gctx, cfg.Schedule.Daily, env.Pipeline)
			if err != nil {
				return err
			}
			g.Go(func() error {
				<-gctx.Done()
				<-c.Stop().Done()
				zap.L().Info("scheduler stopped")
				return nil
			})
		}

		g.Go(func() error {
			return srv.ListenAndServe(gctx, port)
		})

		err = g.Wait()

		// Unfinished scrapes are cancelled at the deadline so they stop
		// before the deferred env.Close releases the store.
		drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if derr := env.Dispatcher.Wait(drainCtx); derr != nil {
			zap.L().Warn("background tasks cancelled at shutdown", zap.Error(derr))
		}
		return err
	},
}

// dailyRunner is the part of the pipeline the scheduler drives.
type dailyRunner interface {
	Daily(ctx context.Context, filter []string) pipeline.DailySummary
}

// startSchedule registers the daily cycle on the given schedule and starts the cron.
func startSchedule(ctx context.Context, schedule string, p dailyRunner) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cron.DefaultLogger))
	_, err := c.AddFunc(schedule, func() {
		sum := p.Daily(ctx, nil)
		zap.L().Info("scheduled daily update complete",
			zap.Int("expired_codes", sum.ExpiredCodes),
			zap.Int("reports_processed", sum.ReportsProcessed),
			zap.Int("codes_updated", sum.CodesUpdated),
			zap.Int("codes_deactivated", sum.CodesDeactivated),
		)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule daily update %q", schedule)
	}
	c.Start()
	zap.L().Info("scheduler started", zap.String("schedule", schedule))
	return c, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
