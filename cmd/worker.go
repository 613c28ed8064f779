package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker that archives aged documents, warns offices
about overdue documents and stores notifications published on Azure Service Bus`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// parseRunAt reads an HH:MM time of day
func parseRunAt(value string) (gocron.AtTimes, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid run_at %q, expected HH:MM", value)
	}
	return gocron.NewAtTimes(gocron.NewAtTime(uint(t.Hour()), uint(t.Minute()), 0)), nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runAt, err := parseRunAt(cfg.Retention.RunAt)
	if err != nil {
		return err
	}

	// The worker is the consumer, so it stores notifications directly
	a, err := newApp(cfg, "smartdocs-worker", false)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	if a.bus != nil {
		g.Go(func() error {
			log.Info().Str("queue", a.bus.QueueName()).Msg("Starting Azure Service Bus processor")
			return a.bus.ProcessMessages(ctx, a.store.HandleMessage)
		})
	} else {
		log.Warn().Msg("Azure Service Bus not configured, skipping notification consumer")
	}

	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return errors.Wrap(err, "failed to create scheduler")
		}

		_, err = scheduler.NewJob(
			gocron.DailyJob(1, runAt),
			gocron.NewTask(func() {
				result, err := a.retention.Sweep(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Retention sweep failed")
					return
				}
				log.Info().
					Int("archived", result.Archived).
					Int("failed", result.Failed).
					Msg("Retention sweep finished")
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule retention sweep")
		}

		_, err = scheduler.NewJob(
			gocron.DailyJob(1, runAt),
			gocron.NewTask(func() {
				notified, err := a.overdue.NotifyOverdue(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Overdue notification run failed")
					return
				}
				log.Info().Int("notified", notified).Msg("Overdue notification run finished")
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule overdue notifications")
		}

		log.Info().Str("run_at", cfg.Retention.RunAt).Msg("Starting scheduler")
		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
