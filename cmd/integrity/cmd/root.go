package cmd

import (
	"fmt"

	"transaction-integrity-engine/cmd/integrity/config"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Transaction integrity engine",
	Long: `Integrity cleans a table of bank transactions: it removes exact and
near duplicate records and reconstructs the daily balance of every account
from its latest balance snapshot.

Examples:
  integrity clean --input transactions.csv --output clean.csv
  integrity clean --input tx.csv --output clean.csv --report-format yaml --report-file run.yaml
  integrity version`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "text", "log format: text, json")

	viper.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup(config.KeyLogFormat))

	config.SetDefaults(viper.GetViper())
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	config.BindEnv(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// setupLogging reads the config file, if any, and installs the global
// logger before any command runs.
func setupLogging(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check that the config file exists and is valid YAML, TOML or JSON")
		}
	}

	logConfig, err := config.CreateLoggerConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logger", logConfig, err)
	}
	logger.SetGlobalLogger(log)

	if cfgFile != "" {
		log.WithField("config_file", viper.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
