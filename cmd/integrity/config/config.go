// Package config turns command-line flags, environment variables and an
// optional config file (all resolved through viper) into the typed
// configurations of the engine packages.
package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"transaction-integrity-engine/internal/parsers"
	"transaction-integrity-engine/internal/reconciler"
	"transaction-integrity-engine/internal/reporter"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/spf13/viper"
)

// Configuration keys. Flag names and config file keys are the same; the
// environment variable is the key upper-cased with the INTEGRITY_ prefix
// and dashes replaced by underscores.
const (
	KeyVerbose                 = "verbose"
	KeyLogFormat               = "log-format"
	KeyInput                   = "input"
	KeyOutput                  = "output"
	KeyReportFormat            = "report-format"
	KeyReportFile              = "report-file"
	KeyDelimiter               = "delimiter"
	KeyColumnAliases           = "column-aliases"
	KeyWorkers                 = "workers"
	KeyExamineAllPairs         = "examine-all-pairs"
	KeyZeroBalanceMissing      = "zero-balance-missing"
	KeyDropMissingDescriptions = "drop-missing-descriptions"
	KeyLowercaseDescriptions   = "lowercase-descriptions"
	KeySignFromDebitFlag       = "sign-from-debit-flag"
	KeyProgress                = "progress"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "INTEGRITY"

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	pipeline := reconciler.DefaultConfig()
	report := reporter.DefaultReportConfig()

	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyReportFormat, string(report.Format))
	v.SetDefault(KeyDelimiter, ",")
	v.SetDefault(KeyWorkers, pipeline.Workers)
	v.SetDefault(KeyExamineAllPairs, pipeline.ExamineAllPairs)
	v.SetDefault(KeyZeroBalanceMissing, pipeline.Preprocessing.ZeroBalanceAsMissing)
	v.SetDefault(KeyDropMissingDescriptions, pipeline.Preprocessing.DropMissingDescriptions)
	v.SetDefault(KeyLowercaseDescriptions, pipeline.Preprocessing.LowercaseDescriptions)
	v.SetDefault(KeySignFromDebitFlag, pipeline.Preprocessing.SignFromDebitFlag)
}

// BindEnv makes every key readable from INTEGRITY_* environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// CreateLoggerConfig creates the logger configuration
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if v.GetBool(KeyVerbose) {
		config = logger.DebugConfig()
	}
	config.Format = logger.Format(strings.ToLower(v.GetString(KeyLogFormat)))

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyLogFormat, config.Format, err).
			WithSuggestion("Use --log-format text or --log-format json")
	}
	return config, nil
}

// CreateTransactionParserConfig creates the CSV parser configuration.
// Aliases from the config file are added to the built-in ones.
func CreateTransactionParserConfig(v *viper.Viper) (*parsers.TransactionParserConfig, error) {
	config := parsers.DefaultTransactionParserConfig()

	delimiter := v.GetString(KeyDelimiter)
	if delimiter == `\t` || delimiter == "tab" {
		delimiter = "\t"
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, delimiter,
			fmt.Errorf("delimiter must be a single character")).
			WithSuggestion("Use --delimiter ';' or --delimiter tab")
	}
	config.Delimiter, _ = utf8.DecodeRuneInString(delimiter)

	for alias, target := range v.GetStringMapString(KeyColumnAliases) {
		config.ColumnAliases[alias] = target
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config, err).
			WithSuggestion("Column aliases must map to one of: " +
				strings.Join(append(append([]string{}, parsers.RequiredColumns...), parsers.OptionalColumns...), ", "))
	}
	return config, nil
}

// CreatePipelineConfig creates the integrity pipeline configuration
func CreatePipelineConfig(v *viper.Viper) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	config.Workers = v.GetInt(KeyWorkers)
	config.ExamineAllPairs = v.GetBool(KeyExamineAllPairs)
	config.Preprocessing.ZeroBalanceAsMissing = v.GetBool(KeyZeroBalanceMissing)
	config.Preprocessing.DropMissingDescriptions = v.GetBool(KeyDropMissingDescriptions)
	config.Preprocessing.LowercaseDescriptions = v.GetBool(KeyLowercaseDescriptions)
	config.Preprocessing.SignFromDebitFlag = v.GetBool(KeySignFromDebitFlag)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyWorkers, config.Workers, err).
			WithSuggestion("Use --workers with a positive number")
	}
	return config, nil
}

// CreateReportConfig creates the report configuration
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(v.GetString(KeyReportFormat)))

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyReportFormat, config.Format, err).
			WithSuggestion("Valid report formats: console, json, yaml")
	}
	return config, nil
}

// Settings bundles every configuration the clean command needs.
type Settings struct {
	Logger   *logger.Config
	Parser   *parsers.TransactionParserConfig
	Pipeline *reconciler.Config
	Report   *reporter.ReportConfig
}

// Load builds and validates all configurations from v.
func Load(v *viper.Viper) (*Settings, error) {
	logConfig, err := CreateLoggerConfig(v)
	if err != nil {
		return nil, err
	}
	parserConfig, err := CreateTransactionParserConfig(v)
	if err != nil {
		return nil, err
	}
	pipelineConfig, err := CreatePipelineConfig(v)
	if err != nil {
		return nil, err
	}
	reportConfig, err := CreateReportConfig(v)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Logger:   logConfig,
		Parser:   parserConfig,
		Pipeline: pipelineConfig,
		Report:   reportConfig,
	}, nil
}
