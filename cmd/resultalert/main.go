package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shanehull/resultalert/internal/config"
	"github.com/shanehull/resultalert/internal/logging"
)

var (
	configFile string
	debug      bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resultalert",
	Short: "Watch Indian exchanges for quarterly results and alert on them",
	Long: `resultalert polls NSE, BSE and news feeds for quarterly financial results,
extracts the headline numbers from the attached filing, compares them with the
prior periods and analyst estimates, and pushes an alert to the configured
channels.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is the normal case in production.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if debug {
			cfg.Log.Level = "debug"
		}
		logger = logging.New(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./resultalert.toml or $HOME/.config/resultalert/resultalert.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(estimatesCmd)
	rootCmd.AddCommand(dedupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
