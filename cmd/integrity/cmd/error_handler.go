package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler prints errors for humans and maps them to exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if ie, ok := errors.AsIntegrityError(err); ok {
		return h.handleIntegrityError(ie)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleIntegrityError(err *errors.IntegrityError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case os.IsNotExist(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case os.IsPermission(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	// Cobra reports unknown flags and arguments as plain errors.
	msg := err.Error()
	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "flag needs an argument") || strings.Contains(msg, "invalid argument") {
		fmt.Fprintf(h.out, "Error: %v\n\nRun 'integrity --help' for usage.\n", err)
		return 4
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Verify the path (use absolute paths if needed)
• Check that the output directory is writable`

	case errors.CategoryParse:
		return `Parse error help:
• Check the header row names the required columns
• Check dates (YYYY-MM-DD) and amounts (decimal numbers)
• Save the file in UTF-8 encoding
• Malformed rows are never skipped; fix them at the source`

	case errors.CategoryValidation:
		return `Validation error help:
• Every row needs a user_id, an account_id and a date
• Descriptions must be valid UTF-8 text
• This is an upstream contract violation; fix the export and re-run`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and INTEGRITY_* environment variables
• Verify configuration file syntax if using --config
• Use 'integrity clean --help' to see all available options`

	case errors.CategoryIntegrity:
		return `Integrity error help:
• Re-run with --verbose to see which stage failed
• Inspect the rows of the failing account or user`

	default:
		return `For more help:
• Use 'integrity --help' for general help
• Use 'integrity clean --help' for command-specific help`
	}
}
