package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/backstage/services/procurement/internal/messaging"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that follows work order changes from Azure Service Bus and indexes view snapshots`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	svc := deps.service
	if err := svc.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Initial refresh failed")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Azure.QueueConnStr != "" {
		consumer, err := messaging.NewConsumer(cfg.Azure, cfg.Worker.MaxMessages)
		if err != nil {
			return err
		}
		defer consumer.Close()

		processor := messaging.NewOrderChangeProcessor(func(ctx context.Context, orderID string) error {
			if err := svc.RefreshOrder(ctx, orderID); err != nil {
				return err
			}
			// A failed index is retried by the next periodic snapshot
			if err := svc.IndexSnapshot(ctx); err != nil {
				log.Warn().Err(err).Str("order_id", orderID).Msg("Failed to index snapshot")
			}
			return nil
		})

		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.OrdersQueue).Msg("Starting order change consumer")
			return consumer.Run(ctx, processor)
		})
	} else {
		log.Warn().Msg("Azure Service Bus not configured, relying on periodic refresh only")
	}

	// Periodic full refresh catches changes the queue missed
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.RefreshInterval),
			gocron.NewTask(func() {
				log.Info().Msg("Running periodic refresh")
				if err := svc.Refresh(ctx); err != nil {
					log.Error().Err(err).Msg("Periodic refresh failed")
					return
				}
				if err := svc.IndexSnapshot(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to index snapshot")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

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
