package reconciler

import (
	"context"
	"fmt"
	"io"
	"time"

	"transaction-integrity-engine/internal/balance"
	"transaction-integrity-engine/internal/matcher"
	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/internal/parsers"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"
)

// Config holds configuration options for the integrity pipeline
type Config struct {
	// Workers bounds the goroutines used by duplicate detection (per user)
	// and balance reconstruction (per account).
	Workers int `json:"workers" mapstructure:"workers"`

	// ExamineAllPairs keeps scanning a candidate group after the first
	// directional match instead of stopping.
	ExamineAllPairs bool `json:"examine_all_pairs" mapstructure:"examine_all_pairs"`

	Preprocessing *PreprocessingConfig `json:"preprocessing" mapstructure:"preprocessing"`
}

// DefaultConfig returns a default configuration for the integrity pipeline
func DefaultConfig() *Config {
	return &Config{
		Workers:         4,
		ExamineAllPairs: false,
		Preprocessing:   DefaultPreprocessingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// DuplicateConfig derives the duplicate detector configuration.
func (c *Config) DuplicateConfig() *matcher.DuplicateConfig {
	return &matcher.DuplicateConfig{
		ExamineAllPairs: c.ExamineAllPairs,
		Workers:         c.Workers,
	}
}

// BalanceConfig derives the balance reconstructor configuration.
func (c *Config) BalanceConfig() *balance.Config {
	return &balance.Config{Workers: c.Workers}
}

// IntegrityResult contains the complete results of one pipeline run
type IntegrityResult struct {
	RunID string `json:"run_id" yaml:"run_id"`

	// Rows are the surviving transactions in input order, each with the
	// balance of its account on its day.
	Rows []*models.AnnotatedTransaction `json:"-" yaml:"-"`

	Duplicates *matcher.DuplicateReport `json:"-" yaml:"-"`
	Balances   *balance.Result          `json:"-" yaml:"-"`

	Summary         *ResultSummary   `json:"summary" yaml:"summary"`
	ProcessingStats *ProcessingStats `json:"processing_stats" yaml:"processing_stats"`
	ProcessedAt     time.Time        `json:"processed_at" yaml:"processed_at"`
}

// ResultSummary provides the counts of a run for auditing
type ResultSummary struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Row counts
	RowsIn          int `json:"rows_in" yaml:"rows_in"`
	Type1Dropped    int `json:"type1_dropped" yaml:"type1_dropped"`
	Type2Dropped    int `json:"type2_dropped" yaml:"type2_dropped"`
	CandidateGroups int `json:"candidate_groups" yaml:"candidate_groups"`
	RowsOut         int `json:"rows_out" yaml:"rows_out"`

	Preprocessing *PreprocessStats `json:"preprocessing,omitempty" yaml:"preprocessing,omitempty"`

	// Balance coverage
	Accounts           int `json:"accounts" yaml:"accounts"`
	AccountsAvailable  int `json:"accounts_available" yaml:"accounts_available"`
	AccountsUnanchored int `json:"accounts_unanchored" yaml:"accounts_unanchored"`
	AccountsNoSnapshot int `json:"accounts_no_snapshot" yaml:"accounts_no_snapshot"`
	RowsWithBalance    int `json:"rows_with_balance" yaml:"rows_with_balance"`
	RowsWithoutBalance int `json:"rows_without_balance" yaml:"rows_without_balance"`

	UnanchoredAccounts    []string `json:"unanchored_accounts,omitempty" yaml:"unanchored_accounts,omitempty"`
	NoSnapshotAccounts    []string `json:"no_snapshot_accounts,omitempty" yaml:"no_snapshot_accounts,omitempty"`
	InconsistentSnapshots []string `json:"inconsistent_snapshots,omitempty" yaml:"inconsistent_snapshots,omitempty"`

	ProcessingDuration time.Duration `json:"processing_duration" yaml:"processing_duration"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ProcessingStats contains detailed processing statistics
type ProcessingStats struct {
	TotalLines    int `json:"total_lines,omitempty" yaml:"total_lines,omitempty"`
	RecordsParsed int `json:"records_parsed,omitempty" yaml:"records_parsed,omitempty"`

	ParsingTime         time.Duration `json:"parsing_time,omitempty" yaml:"parsing_time,omitempty"`
	Stages              []StageTiming `json:"stages" yaml:"stages"`
	TotalProcessingTime time.Duration `json:"total_processing_time" yaml:"total_processing_time"`
	RecordsPerSecond    float64       `json:"records_per_second" yaml:"records_per_second"`
}

// IntegrityService reads a transaction table and runs it through the
// integrity pipeline.
type IntegrityService struct {
	parser   *parsers.TransactionParser
	pipeline *IntegrityPipeline
	config   *Config
	logger   logger.Logger
}

// NewIntegrityService creates a service from parser and pipeline
// configurations. Nil configurations use the defaults.
func NewIntegrityService(
	parserConfig *parsers.TransactionParserConfig,
	config *Config,
	log logger.Logger,
) (*IntegrityService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	parser, err := parsers.NewTransactionParser(parserConfig, log)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewIntegrityPipeline(config, log)
	if err != nil {
		return nil, err
	}

	return &IntegrityService{
		parser:   parser,
		pipeline: pipeline,
		config:   config,
		logger:   log.WithComponent("integrity_service"),
	}, nil
}

// Pipeline returns the pipeline the service runs, so callers can register
// progress callbacks.
func (s *IntegrityService) Pipeline() *IntegrityPipeline {
	return s.pipeline
}

// GetConfiguration returns the current configuration
func (s *IntegrityService) GetConfiguration() *Config {
	return s.config
}

// ProcessFile parses the CSV file at path and runs the pipeline over it.
func (s *IntegrityService) ProcessFile(ctx context.Context, path string) (*IntegrityResult, error) {
	if path == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "input_file", path, nil).
			WithSuggestion("Specify the transaction table with --input")
	}

	start := time.Now()
	transactions, stats, err := s.parser.ParseTransactions(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, transactions, stats, path, time.Since(start))
}

// ProcessReader parses the transaction table from r and runs the pipeline
// over it. Source names the input in errors and the summary.
func (s *IntegrityService) ProcessReader(ctx context.Context, r io.Reader, source string) (*IntegrityResult, error) {
	start := time.Now()
	transactions, stats, err := s.parser.ParseReader(ctx, r, source)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, transactions, stats, source, time.Since(start))
}

func (s *IntegrityService) process(
	ctx context.Context,
	transactions []*models.Transaction,
	stats *parsers.ParseStats,
	source string,
	parsingTime time.Duration,
) (*IntegrityResult, error) {
	s.logger.WithFields(logger.Fields{
		"source":       source,
		"rows":         len(transactions),
		"parsing_time": parsingTime.String(),
	}).Debug("Parsed transaction table")

	result, err := s.pipeline.Run(ctx, transactions)
	if err != nil {
		return nil, err
	}

	result.Summary.Source = source
	result.ProcessingStats.ParsingTime = parsingTime
	if stats != nil {
		result.ProcessingStats.TotalLines = stats.TotalLines
		result.ProcessingStats.RecordsParsed = stats.RecordsParsed
	}
	return result, nil
}
