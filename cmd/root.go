package cmd

import (
	"os"
	"strings"

	"example.com/backstage/services/procurement/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "procurement-service",
	Short: "Material requirement reconciliation service",
	Long: `Reconciles the material lines of open work orders and general expenses
into Required and Ordered views and applies order, receive and revert
transitions to them.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		config.SetConfigFile(cfgFile)
	}
}

// loadConfig reads the configuration and applies its logging settings
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Environment == "development" || cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// LOG_LEVEL set in main wins over the file
	if os.Getenv("LOG_LEVEL") == "" && cfg.Logging.Level != "" {
		if level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
			zerolog.SetGlobalLevel(level)
		} else {
			log.Warn().Str("level", cfg.Logging.Level).Msg("Unknown log level, keeping default")
		}
	}

	return cfg, nil
}
