package cmd

import (
	"os"

	"example.com/backstage/services/procurement/internal/cache"
	"example.com/backstage/services/procurement/internal/fixtures"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import companies, work orders and expenses from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to open fixture file")
	}
	defer file.Close()

	set, err := fixtures.Load(file)
	if err != nil {
		return err
	}

	deps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := cmd.Context()
	counts, err := fixtures.Import(ctx, set, deps.companies, deps.orders, deps.expenses)
	if err != nil {
		return err
	}

	// Priorities may have changed
	if err := deps.cache.Delete(ctx, cache.SupplierPrioritiesKey); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached supplier priorities")
	}

	log.Info().
		Int("companies", counts.Companies).
		Int("orders", counts.Orders).
		Int("expenses", counts.Expenses).
		Msg("Import completed")
	return nil
}
