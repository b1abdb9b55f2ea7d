// Package parsers reads the transaction table handed to the integrity engine
// from CSV files.
//
// Parsing is strict: a row whose amount or date cannot be read, or whose text
// is not valid UTF-8, aborts the parse with a categorized error. Raw export
// headers such as "Transaction Date" are normalized and mapped onto the
// standard column names through configurable aliases.
//
// Example usage:
//
//	parser, err := parsers.NewTransactionParser(parsers.DefaultTransactionParserConfig(), log)
//	transactions, stats, err := parser.ParseTransactions(ctx, "transactions.csv")
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"
)

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	HasHeader bool
	// Columns is the positional layout used when HasHeader is false.
	Columns          []string
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// BaseParser provides common CSV parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	log = log.WithComponent("csv_parser")
	log.WithFields(logger.Fields{
		"has_header":        config.HasHeader,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	// HeaderMap maps standard column names to record positions.
	HeaderMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a column by standard name, or -1
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}
	return -1
}

// OpenFile opens a CSV file
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening CSV file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")

		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	return file, bp.NewReader(file), nil
}

// NewReader wraps r in a configured csv.Reader
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader
}

// ReadHeaders reads the header row and maps it onto standard column names
// with resolve. Every required column must be present. Without a header row
// the configured Columns layout is used, falling back to required.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, required []string, resolve func(string) string) error {
	if !bp.config.HasHeader {
		layout := bp.config.Columns
		if len(layout) == 0 {
			layout = required
		}
		parseCtx.Headers = append([]string{}, layout...)
		for i, h := range parseCtx.Headers {
			parseCtx.HeaderMap[h] = i
		}
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using default headers")
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains header and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
		parseCtx.Headers[i] = h
		name := resolve(h)
		if _, dup := parseCtx.HeaderMap[name]; dup {
			bp.logger.WithFields(logger.Fields{"header": h, "column": name}).Warn("Duplicate column, keeping first")
			continue
		}
		parseCtx.HeaderMap[name] = i
	}

	var missing []string
	for _, col := range required {
		if parseCtx.GetColumnIndex(col) == -1 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")

		return errors.ParseError(
			errors.CodeMissingColumn,
			parseCtx.Source,
			parseCtx.LineNumber,
			strings.Join(missing, ", "),
			strings.Join(missing, ", "),
			nil,
		).WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these headers: %s", strings.Join(missing, ", ")))
	}

	bp.logger.WithField("headers", parseCtx.Headers).Debug("Successfully read headers")
	return nil
}

// ReadRecord reads the next non-empty record. It returns io.EOF at the end
// of input.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "csv_parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, parseCtx.LineNumber+1, "record", "", err)
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			bp.logger.WithField("line_number", parseCtx.LineNumber).Debug("Skipping empty record")
			continue
		}

		if bp.config.ValidateEncoding {
			for i, field := range record {
				if !utf8.ValidString(field) {
					column := fmt.Sprintf("field_%d", i)
					if i < len(parseCtx.Headers) {
						column = parseCtx.Headers[i]
					}
					return nil, errors.ParseError(
						errors.CodeEncodingError,
						parseCtx.Source,
						parseCtx.LineNumber,
						column,
						"",
						fmt.Errorf("invalid UTF-8 encoding detected"),
					).WithSuggestion("Save the file in UTF-8 encoding and try again")
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of a column. Optional columns
// that are absent yield an empty string and false.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, column string) (string, bool, error) {
	v, ok, err := bp.GetRawFieldValue(record, parseCtx, column)
	return strings.TrimSpace(v), ok, err
}

// GetRawFieldValue returns the value of a column exactly as read.
func (bp *BaseParser) GetRawFieldValue(record []string, parseCtx *ParseContext, column string) (string, bool, error) {
	index := parseCtx.GetColumnIndex(column)
	if index == -1 {
		return "", false, nil
	}

	if index >= len(record) {
		return "", false, errors.ParseError(
			errors.CodeInvalidData,
			parseCtx.Source,
			parseCtx.LineNumber,
			column,
			"",
			fmt.Errorf("field '%s' (index %d) not present in record with %d fields", column, index, len(record)),
		).WithSuggestion("Check that all rows have the same number of columns as the header")
	}

	return record[index], true, nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int `json:"total_lines" yaml:"total_lines"`
	RecordsParsed int `json:"records_parsed" yaml:"records_parsed"`
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records", ps.TotalLines, ps.RecordsParsed)
}
