package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/services/procurement/internal/api"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that serves the Required and Ordered views and applies transitions`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var collector *metrics.Metrics
	hub := notify.NewHub(func(total int) {
		if collector != nil {
			collector.SetGauge(metrics.WebsocketClients, int64(total))
		}
	})

	deps, err := buildComponents(cfg, services.WithNotifier(hub))
	if err != nil {
		return err
	}
	defer deps.close()
	collector = deps.metrics

	if err := deps.service.Refresh(ctx); err != nil {
		// The server still starts; the next scheduled refresh retries
		log.Error().Err(err).Msg("Initial refresh failed")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if cfg.Worker.RefreshInterval > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.RefreshInterval),
			gocron.NewTask(func() {
				if err := deps.service.Refresh(ctx); err != nil {
					log.Error().Err(err).Msg("Scheduled refresh failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}
	scheduler.Start()

	server := api.NewServer(cfg.Server, deps.service, hub, deps.metrics, deps.tracer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}

	if serr := scheduler.Shutdown(); serr != nil {
		log.Warn().Err(serr).Msg("Scheduler shutdown error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("Server shutdown error")
	}

	log.Info().Msg("API server stopped")
	return err
}
