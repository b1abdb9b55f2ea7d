// Package reporter renders the results of an integrity run.
//
// Two outputs are produced: a run summary (console, JSON or YAML) with the
// counts needed to audit a run, and the cleaned transaction table as CSV
// with the reconstructed balance of every row.
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatYAML})
//	err = gen.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"transaction-integrity-engine/internal/reconciler"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported summary formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	IncludeProcessingStats bool `json:"include_processing_stats" mapstructure:"include_processing_stats"`
	IncludeAccountLists    bool `json:"include_account_lists" mapstructure:"include_account_lists"`

	// MaxListedAccounts caps each account list in console output.
	MaxListedAccounts int `json:"max_listed_accounts" mapstructure:"max_listed_accounts"`

	// CSVDelimiter separates fields of the cleaned table.
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeProcessingStats: true,
		IncludeAccountLists:    true,
		MaxListedAccounts:      10,
		CSVDelimiter:           ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListedAccounts < 0 {
		return fmt.Errorf("max listed accounts cannot be negative, got %d", c.MaxListedAccounts)
	}
	switch c.CSVDelimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid csv delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator writes run summaries in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// GenerateReport writes the summary of result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.IntegrityResult, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return fmt.Errorf("integrity result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// summaryDocument is the structured form shared by JSON and YAML output.
type summaryDocument struct {
	RunID           string                      `json:"run_id" yaml:"run_id"`
	ProcessedAt     string                      `json:"processed_at" yaml:"processed_at"`
	Summary         *reconciler.ResultSummary   `json:"summary" yaml:"summary"`
	ProcessingStats *reconciler.ProcessingStats `json:"processing_stats,omitempty" yaml:"processing_stats,omitempty"`
}

func (rg *ReportGenerator) document(result *reconciler.IntegrityResult) *summaryDocument {
	summary := *result.Summary
	if !rg.config.IncludeAccountLists {
		summary.UnanchoredAccounts = nil
		summary.NoSnapshotAccounts = nil
		summary.InconsistentSnapshots = nil
	}

	doc := &summaryDocument{
		RunID:       result.RunID,
		ProcessedAt: result.ProcessedAt.UTC().Format(time.RFC3339),
		Summary:     &summary,
	}
	if rg.config.IncludeProcessingStats {
		doc.ProcessingStats = result.ProcessingStats
	}
	return doc
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.IntegrityResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.document(result))
}

func (rg *ReportGenerator) generateYAMLReport(result *reconciler.IntegrityResult, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(rg.document(result)); err != nil {
		return fmt.Errorf("failed to encode yaml report: %w", err)
	}
	return encoder.Close()
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.IntegrityResult, writer io.Writer) error {
	s := result.Summary

	fmt.Fprintf(writer, "TRANSACTION INTEGRITY REPORT\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", result.RunID)
	if s.Source != "" {
		fmt.Fprintf(writer, "Source:    %s\n", s.Source)
	}
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration:  %v\n\n", s.ProcessingDuration)

	fmt.Fprintf(writer, "=== DUPLICATES ===\n")
	fmt.Fprintf(writer, "  Rows in:           %d\n", s.RowsIn)
	if p := s.Preprocessing; p != nil && p.MissingDescriptionsDropped > 0 {
		fmt.Fprintf(writer, "  Blank descriptions: %d dropped\n", p.MissingDescriptionsDropped)
	}
	fmt.Fprintf(writer, "  Exact duplicates:  %d (%.1f%%)\n", s.Type1Dropped, percentage(s.Type1Dropped, s.RowsIn))
	fmt.Fprintf(writer, "  Near duplicates:   %d (%.1f%%)\n", s.Type2Dropped, percentage(s.Type2Dropped, s.RowsIn))
	fmt.Fprintf(writer, "  Candidate groups:  %d\n", s.CandidateGroups)
	fmt.Fprintf(writer, "  Rows out:          %d\n\n", s.RowsOut)

	fmt.Fprintf(writer, "=== BALANCES ===\n")
	fmt.Fprintf(writer, "  Accounts:          %d\n", s.Accounts)
	fmt.Fprintf(writer, "  Reconstructed:     %d (%.1f%%)\n", s.AccountsAvailable, percentage(s.AccountsAvailable, s.Accounts))
	fmt.Fprintf(writer, "  Unanchored:        %d\n", s.AccountsUnanchored)
	fmt.Fprintf(writer, "  No snapshot:       %d\n", s.AccountsNoSnapshot)
	fmt.Fprintf(writer, "  Rows with balance: %d (%.1f%%)\n", s.RowsWithBalance, percentage(s.RowsWithBalance, s.RowsOut))
	if p := s.Preprocessing; p != nil && p.ZeroBalancesCleared > 0 {
		fmt.Fprintf(writer, "  Zero snapshots treated as missing: %d rows\n", p.ZeroBalancesCleared)
	}

	if rg.config.IncludeAccountLists {
		rg.printAccountList("Unanchored accounts", s.UnanchoredAccounts, writer)
		rg.printAccountList("Accounts without snapshot", s.NoSnapshotAccounts, writer)
		rg.printAccountList("Accounts with inconsistent snapshots", s.InconsistentSnapshots, writer)
	}
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(result.ProcessingStats, writer)
	}

	return nil
}

func (rg *ReportGenerator) printAccountList(title string, accounts []string, writer io.Writer) {
	if len(accounts) == 0 {
		return
	}

	shown := accounts
	if limit := rg.config.MaxListedAccounts; limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintf(writer, "\n  %s:\n    %s\n", title, strings.Join(shown, ", "))
	if len(shown) < len(accounts) {
		fmt.Fprintf(writer, "    ... and %d more\n", len(accounts)-len(shown))
	}
}

func (rg *ReportGenerator) printProcessingStats(stats *reconciler.ProcessingStats, writer io.Writer) {
	if stats.RecordsParsed > 0 {
		fmt.Fprintf(writer, "  Records parsed:    %d\n", stats.RecordsParsed)
		fmt.Fprintf(writer, "  Parsing time:      %v\n", stats.ParsingTime)
	}
	for _, st := range stats.Stages {
		fmt.Fprintf(writer, "  %-22s %v\n", st.Stage+":", st.Duration)
	}
	fmt.Fprintf(writer, "  Records/second:    %.2f\n", stats.RecordsPerSecond)
	fmt.Fprintf(writer, "  Total processing:  %v\n", stats.TotalProcessingTime)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
