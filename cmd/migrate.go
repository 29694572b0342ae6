package cmd

import (
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Runs database migrations to ensure the schema is up-to-date.
This is useful for CI/CD pipelines or initial setup.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Msg("Connecting to database")
	db, _, err := initDatabases(cfg.DB, metrics.NewMetrics())
	if err != nil {
		return err
	}

	log.Info().Msg("Running database migrations")
	if err := models.SetupModels(db); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}
