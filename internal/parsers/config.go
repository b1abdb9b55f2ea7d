package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// Standard column names of the input transaction table.
const (
	ColumnID                   = "id"
	ColumnUserID               = "user_id"
	ColumnAccountID            = "account_id"
	ColumnDate                 = "date"
	ColumnAmount               = "amount"
	ColumnIsDebit              = "is_debit"
	ColumnDescription          = "description"
	ColumnAccountType          = "account_type"
	ColumnLatestBalance        = "latest_balance"
	ColumnAccountLastRefreshed = "account_last_refreshed"
)

// RequiredColumns must be present in every input file.
var RequiredColumns = []string{
	ColumnID,
	ColumnUserID,
	ColumnAccountID,
	ColumnDate,
	ColumnAmount,
	ColumnDescription,
	ColumnLatestBalance,
	ColumnAccountLastRefreshed,
}

// OptionalColumns are read when present.
var OptionalColumns = []string{
	ColumnIsDebit,
	ColumnAccountType,
}

// InputColumns is the standard column order. Files without a header row
// must follow it.
var InputColumns = []string{
	ColumnID,
	ColumnUserID,
	ColumnAccountID,
	ColumnDate,
	ColumnAmount,
	ColumnIsDebit,
	ColumnDescription,
	ColumnAccountType,
	ColumnLatestBalance,
	ColumnAccountLastRefreshed,
}

// verbatimColumns are passed through without trimming surrounding space.
var verbatimColumns = map[string]bool{
	ColumnDescription: true,
}

// DefaultColumnAliases maps normalized raw export headers to standard names.
func DefaultColumnAliases() map[string]string {
	return map[string]string{
		"transaction_reference":   ColumnID,
		"user_reference":          ColumnUserID,
		"account_reference":       ColumnAccountID,
		"transaction_date":        ColumnDate,
		"transaction_description": ColumnDescription,
		"desc":                    ColumnDescription,
		"latest_recorded_balance": ColumnLatestBalance,
		"debit":                   ColumnIsDebit,
		"last_refreshed":          ColumnAccountLastRefreshed,
	}
}

var headerSeparators = regexp.MustCompile(`[\s.]+`)

// NormalizeHeader lower-cases a header and replaces whitespace and dots
// with underscores, so "Transaction Date" becomes "transaction_date".
func NormalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	return headerSeparators.ReplaceAllString(h, "_")
}

// TransactionParserConfig holds configuration for parsing transaction CSV files
type TransactionParserConfig struct {
	HasHeader        bool              `json:"has_header" mapstructure:"has_header"`
	Delimiter        rune              `json:"delimiter" mapstructure:"delimiter"`
	ValidateEncoding bool              `json:"validate_encoding" mapstructure:"validate_encoding"`
	ColumnAliases    map[string]string `json:"column_aliases,omitempty" mapstructure:"column_aliases"`
}

// DefaultTransactionParserConfig returns a configuration with standard defaults
func DefaultTransactionParserConfig() *TransactionParserConfig {
	return &TransactionParserConfig{
		HasHeader:        true,
		Delimiter:        ',',
		ValidateEncoding: true,
		ColumnAliases:    DefaultColumnAliases(),
	}
}

// Validate checks if the transaction parser configuration is valid
func (c *TransactionParserConfig) Validate() error {
	switch c.Delimiter {
	case 0, '"', '\r', '\n':
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	known := make(map[string]bool)
	for _, col := range append(append([]string{}, RequiredColumns...), OptionalColumns...) {
		known[col] = true
	}
	for alias, target := range c.ColumnAliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("column alias cannot be empty")
		}
		if !known[target] {
			return fmt.Errorf("column alias %q targets unknown column %q", alias, target)
		}
	}

	return nil
}
