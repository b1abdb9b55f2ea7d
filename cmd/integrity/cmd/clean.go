package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"transaction-integrity-engine/cmd/integrity/config"
	"transaction-integrity-engine/internal/reconciler"
	"transaction-integrity-engine/internal/reporter"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// stdio is the file name that selects stdin or stdout.
const stdio = "-"

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove duplicate transactions and reconstruct daily balances",
	Long: `Clean reads a transaction table, removes exact (Type 1) and near (Type 2)
duplicates, and adds the reconstructed account balance of every row.

Input columns (any order, raw export headers are mapped automatically):
  id, user_id, account_id, date, amount, is_debit, description,
  account_type, latest_balance, account_last_refreshed

The output is the same table minus duplicates, plus a balance column and
a balance_status column (available, unanchored or no_snapshot).

Examples:
  # Clean a file and print the summary
  integrity clean --input transactions.csv --output clean.csv

  # Read stdin, write stdout, summary as YAML to a file
  cat tx.csv | integrity clean --input - --report-format yaml --report-file run.yaml

  # Keep scanning candidate groups after the first match
  integrity clean --input tx.csv --output clean.csv --examine-all-pairs`,

	PreRunE: validateCleanFlags,
	RunE:    runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	flags := cleanCmd.Flags()
	flags.StringP(config.KeyInput, "i", "", "transaction table CSV, or - for stdin (required)")
	flags.StringP(config.KeyOutput, "o", stdio, "cleaned CSV output, or - for stdout")
	flags.StringP(config.KeyReportFormat, "f", "console", "summary format: console, json, yaml")
	flags.String(config.KeyReportFile, "", "summary output file (default: stdout, or stderr when the table goes to stdout)")
	flags.String(config.KeyDelimiter, ",", "input field delimiter (use 'tab' for tab-separated files)")
	flags.IntP(config.KeyWorkers, "w", 4, "worker goroutines for duplicate detection and balance reconstruction")
	flags.Bool(config.KeyExamineAllPairs, false, "examine every pair of a candidate group instead of stopping at the first match")
	flags.Bool(config.KeyZeroBalanceMissing, true, "treat a latest balance of exactly zero as missing")
	flags.Bool(config.KeyDropMissingDescriptions, false, "drop rows with a blank description before deduplication")
	flags.Bool(config.KeyLowercaseDescriptions, false, "lower-case descriptions before deduplication")
	flags.Bool(config.KeySignFromDebitFlag, false, "treat amounts as unsigned and negate credits using is_debit")
	flags.Bool(config.KeyProgress, false, "show stage progress on stderr")

	for _, key := range []string{
		config.KeyInput,
		config.KeyOutput,
		config.KeyReportFormat,
		config.KeyReportFile,
		config.KeyDelimiter,
		config.KeyWorkers,
		config.KeyExamineAllPairs,
		config.KeyZeroBalanceMissing,
		config.KeyDropMissingDescriptions,
		config.KeyLowercaseDescriptions,
		config.KeySignFromDebitFlag,
		config.KeyProgress,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func validateCleanFlags(cmd *cobra.Command, args []string) error {
	input := viper.GetString(config.KeyInput)
	if input == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, config.KeyInput, input, nil).
			WithSuggestion("Specify the transaction table with --input, or --input - for stdin")
	}

	if input != stdio {
		if err := validateFileExists(input); err != nil {
			return err
		}
	}

	output := viper.GetString(config.KeyOutput)
	if output != stdio && output == input {
		return errors.ConfigurationError(errors.CodeInvalidConfig, config.KeyOutput, output,
			fmt.Errorf("output would overwrite the input")).
			WithSuggestion("Write the cleaned table to a different file")
	}

	return nil
}

func validateFileExists(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, path, fmt.Errorf("%s is a directory, expected a file", path))
	}
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	service, err := reconciler.NewIntegrityService(settings.Parser, settings.Pipeline, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if viper.GetBool(config.KeyProgress) {
		progressOut := cmd.ErrOrStderr()
		service.Pipeline().AddProgressCallback(func(p *reconciler.PipelineProgress) {
			fmt.Fprintf(progressOut, "[%d/%d] %s (%.0f%% complete)\n",
				p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
		})
	}

	input := viper.GetString(config.KeyInput)
	output := viper.GetString(config.KeyOutput)

	log.WithFields(logger.Fields{
		"input":             input,
		"output":            output,
		"workers":           settings.Pipeline.Workers,
		"examine_all_pairs": settings.Pipeline.ExamineAllPairs,
	}).Debug("Starting clean")

	result, err := process(ctx, service, input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	reports, err := reporter.NewSafeReportGenerator(settings.Report, logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if output == stdio {
		if err := reports.WriteRows(result.Rows, cmd.OutOrStdout()); err != nil {
			return errors.InternalError(errors.CodeProcessingError, "write_rows", err)
		}
	} else if err := reports.WriteRowsFile(result.Rows, output); err != nil {
		return err
	}

	if reportFile := viper.GetString(config.KeyReportFile); reportFile != "" {
		return reports.WriteReportFile(result, reportFile)
	}

	summaryOut := cmd.OutOrStdout()
	if output == stdio {
		summaryOut = cmd.ErrOrStderr()
	}
	return reports.GenerateReportSafely(result, summaryOut)
}

func process(ctx context.Context, service *reconciler.IntegrityService, input string, stdin io.Reader) (*reconciler.IntegrityResult, error) {
	if input == stdio {
		return service.ProcessReader(ctx, stdin, "stdin")
	}
	return service.ProcessFile(ctx, input)
}
