package reconciler

import (
	"fmt"
	"strings"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"
)

// DataPreprocessor applies the cleaning steps that run before duplicate
// detection. It never modifies its input; rows are copied when changed.
type DataPreprocessor struct {
	config *PreprocessingConfig
	logger logger.Logger
}

// PreprocessingConfig contains configuration for data preprocessing
type PreprocessingConfig struct {
	// ZeroBalanceAsMissing treats a latest balance of exactly zero as
	// missing. Zero usually means the account refresh failed upstream.
	ZeroBalanceAsMissing bool `json:"zero_balance_as_missing" mapstructure:"zero_balance_as_missing"`

	// DropMissingDescriptions removes rows with a blank description.
	DropMissingDescriptions bool `json:"drop_missing_descriptions" mapstructure:"drop_missing_descriptions"`

	// SignFromDebitFlag treats amounts as unsigned and negates credits.
	SignFromDebitFlag bool `json:"sign_from_debit_flag" mapstructure:"sign_from_debit_flag"`

	// LowercaseDescriptions lower-cases descriptions before matching.
	LowercaseDescriptions bool `json:"lowercase_descriptions" mapstructure:"lowercase_descriptions"`
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		ZeroBalanceAsMissing:    true,
		DropMissingDescriptions: false,
		SignFromDebitFlag:       false,
		LowercaseDescriptions:   false,
	}
}

// PreprocessStats counts the rows touched by each step.
type PreprocessStats struct {
	RowsIn                     int `json:"rows_in" yaml:"rows_in"`
	ZeroBalancesCleared        int `json:"zero_balances_cleared" yaml:"zero_balances_cleared"`
	MissingDescriptionsDropped int `json:"missing_descriptions_dropped" yaml:"missing_descriptions_dropped"`
	AmountsSigned              int `json:"amounts_signed" yaml:"amounts_signed"`
	RowsOut                    int `json:"rows_out" yaml:"rows_out"`
}

// NewDataPreprocessor creates a new data preprocessor
func NewDataPreprocessor(config *PreprocessingConfig, log logger.Logger) *DataPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &DataPreprocessor{
		config: config,
		logger: log.WithComponent("preprocessor"),
	}
}

// PreprocessTransactions validates every row and applies the configured
// cleaning steps. A row that fails validation aborts preprocessing.
func (dp *DataPreprocessor) PreprocessTransactions(transactions []*models.Transaction) ([]*models.Transaction, *PreprocessStats, error) {
	stats := &PreprocessStats{RowsIn: len(transactions)}
	processed := make([]*models.Transaction, 0, len(transactions))

	for i, tx := range transactions {
		if tx == nil {
			return nil, stats, errors.ValidationError(errors.CodeMalformedInput, "transaction", i,
				fmt.Errorf("row %d is nil", i))
		}
		if err := tx.Validate(); err != nil {
			ie := errors.WrapIfNeeded(err, errors.CategoryValidation, errors.CodeInvalidData, "invalid transaction")
			return nil, stats, ie.WithContext("row", i)
		}

		out, keep := dp.preprocessTransaction(tx, stats)
		if !keep {
			continue
		}
		processed = append(processed, out)
	}

	stats.RowsOut = len(processed)

	dp.logger.WithFields(logger.Fields{
		"rows_in":                      stats.RowsIn,
		"rows_out":                     stats.RowsOut,
		"zero_balances_cleared":        stats.ZeroBalancesCleared,
		"missing_descriptions_dropped": stats.MissingDescriptionsDropped,
	}).Debug("Preprocessing completed")

	return processed, stats, nil
}

// preprocessTransaction returns the cleaned row and whether to keep it.
func (dp *DataPreprocessor) preprocessTransaction(tx *models.Transaction, stats *PreprocessStats) (*models.Transaction, bool) {
	if dp.config.DropMissingDescriptions && strings.TrimSpace(tx.Description) == "" {
		stats.MissingDescriptionsDropped++
		return nil, false
	}

	clearBalance := dp.config.ZeroBalanceAsMissing && tx.LatestBalance.Valid && tx.LatestBalance.Decimal.IsZero()
	signAmount := dp.config.SignFromDebitFlag && !tx.IsDebit
	lowercase := dp.config.LowercaseDescriptions && strings.ToLower(tx.Description) != tx.Description

	if !clearBalance && !signAmount && !lowercase {
		return tx, true
	}

	out := *tx
	if clearBalance {
		out.LatestBalance.Valid = false
		stats.ZeroBalancesCleared++
	}
	if signAmount {
		out.Amount = tx.Amount.Neg()
		stats.AmountsSigned++
	}
	if lowercase {
		out.Description = strings.ToLower(tx.Description)
	}
	return &out, true
}
