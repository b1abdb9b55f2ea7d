package parsers

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"
)

// TransactionParser handles parsing of transaction table CSV files
type TransactionParser struct {
	*BaseParser
	config  *TransactionParserConfig
	aliases map[string]string
	logger  logger.Logger
}

// NewTransactionParser creates a new TransactionParser with the given configuration
func NewTransactionParser(config *TransactionParserConfig, log logger.Logger) (*TransactionParser, error) {
	if config == nil {
		config = DefaultTransactionParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"transaction_parser_config",
			config,
			err,
		).WithSuggestion("Check the transaction parser configuration values")
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}

	aliases := make(map[string]string, len(config.ColumnAliases))
	for alias, target := range config.ColumnAliases {
		aliases[NormalizeHeader(alias)] = target
	}

	parseConfig := &ParseConfig{
		HasHeader:        config.HasHeader,
		Columns:          InputColumns,
		Delimiter:        config.Delimiter,
		TrimLeadingSpace: false,
		SkipEmptyRows:    true,
		ValidateEncoding: config.ValidateEncoding,
	}

	return &TransactionParser{
		BaseParser: NewBaseParser(parseConfig, log),
		config:     config,
		aliases:    aliases,
		logger:     log.WithComponent("transaction_parser"),
	}, nil
}

// ParseTransactions parses a CSV file containing the transaction table
func (tp *TransactionParser) ParseTransactions(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	file, reader, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return tp.parse(ctx, reader, filePath)
}

// ParseReader parses the transaction table from r. Source names the input
// in errors and logs.
func (tp *TransactionParser) ParseReader(ctx context.Context, r io.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	return tp.parse(ctx, tp.NewReader(r), source)
}

func (tp *TransactionParser) parse(ctx context.Context, reader *csv.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	tp.logger.WithFields(logger.Fields{
		"source":    source,
		"operation": "parse_transactions",
	}).Info("Starting transaction parsing")

	parseCtx := NewParseContext(ctx, source)
	stats := &ParseStats{}

	if err := tp.ReadHeaders(reader, parseCtx, RequiredColumns, tp.standardName); err != nil {
		return nil, stats, err
	}

	var transactions []*models.Transaction
	for {
		record, err := tp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			tp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Error("Failed to read record")
			return nil, stats, err
		}
		stats.RecordsParsed++

		tx, err := tp.parseRecord(record, parseCtx)
		if err != nil {
			tp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Error("Malformed transaction row")
			return nil, stats, err
		}

		if err := tx.Validate(); err != nil {
			ie := errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidData, "invalid transaction")
			return nil, stats, ie.WithContext("file", source).WithContext("line", parseCtx.LineNumber)
		}

		transactions = append(transactions, tx)
	}

	stats.TotalLines = parseCtx.LineNumber

	tp.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
	}).Info("Transaction parsing completed")

	return transactions, stats, nil
}

func (tp *TransactionParser) standardName(header string) string {
	h := NormalizeHeader(header)
	if target, ok := tp.aliases[h]; ok {
		return target
	}
	return h
}

// parseRecord creates a Transaction from a CSV record
func (tp *TransactionParser) parseRecord(record []string, parseCtx *ParseContext) (*models.Transaction, error) {
	values := make(map[string]string, len(RequiredColumns)+len(OptionalColumns))
	present := make(map[string]bool, len(values))
	for _, col := range InputColumns {
		get := tp.GetFieldValue
		if verbatimColumns[col] {
			get = tp.GetRawFieldValue
		}
		v, ok, err := get(record, parseCtx, col)
		if err != nil {
			return nil, err
		}
		values[col], present[col] = v, ok
	}

	fieldError := func(code errors.ErrorCode, column string, err error, suggestion string) error {
		return errors.ParseError(code, parseCtx.Source, parseCtx.LineNumber, column, values[column], err).
			WithSuggestion(suggestion)
	}

	date, err := models.ParseDate(values[ColumnDate])
	if err != nil {
		return nil, fieldError(errors.CodeInvalidDate, ColumnDate, err, "Use ISO dates like '2024-01-15'")
	}

	amount, err := models.ParseDecimalFromString(values[ColumnAmount])
	if err != nil {
		return nil, fieldError(errors.CodeInvalidAmount, ColumnAmount, err, "Check the amount format - use decimal numbers like '123.45'")
	}

	latest, err := models.ParseNullDecimal(values[ColumnLatestBalance])
	if err != nil {
		return nil, fieldError(errors.CodeInvalidAmount, ColumnLatestBalance, err, "Leave the latest balance empty when it is unknown")
	}

	var refreshed time.Time
	if values[ColumnAccountLastRefreshed] != "" {
		refreshed, err = models.ParseDate(values[ColumnAccountLastRefreshed])
		if err != nil {
			return nil, fieldError(errors.CodeInvalidDate, ColumnAccountLastRefreshed, err, "Use ISO dates like '2024-01-15'")
		}
	}

	isDebit := amount.IsPositive()
	if present[ColumnIsDebit] && values[ColumnIsDebit] != "" {
		isDebit, err = models.ParseDebitFlag(values[ColumnIsDebit])
		if err != nil {
			return nil, fieldError(errors.CodeInvalidData, ColumnIsDebit, err, "Use true/false or debit/credit")
		}
	}

	return &models.Transaction{
		ID:                   values[ColumnID],
		UserID:               values[ColumnUserID],
		AccountID:            values[ColumnAccountID],
		Date:                 date,
		Amount:               amount,
		Description:          values[ColumnDescription],
		IsDebit:              isDebit,
		AccountType:          values[ColumnAccountType],
		LatestBalance:        latest,
		AccountLastRefreshed: refreshed,
	}, nil
}
