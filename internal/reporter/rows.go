package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"transaction-integrity-engine/internal/models"

	"github.com/shopspring/decimal"
)

// RowColumns is the header of the cleaned transaction table: the input
// columns followed by the reconstructed balance and its status.
var RowColumns = []string{
	"id",
	"user_id",
	"account_id",
	"date",
	"amount",
	"is_debit",
	"description",
	"account_type",
	"latest_balance",
	"account_last_refreshed",
	"balance",
	"balance_status",
}

// WriteRows writes rows as CSV. A missing balance is written as an empty
// field, with the reason in balance_status.
func (rg *ReportGenerator) WriteRows(rows []*models.AnnotatedTransaction, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if err := csvWriter.Write(RowColumns); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, row := range rows {
		if err := csvWriter.Write(rowRecord(row)); err != nil {
			return fmt.Errorf("failed to write row %d (%s): %w", i, row.ID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func rowRecord(row *models.AnnotatedTransaction) []string {
	latest := ""
	if row.LatestBalance.Valid {
		latest = formatDecimal(row.LatestBalance.Decimal)
	}
	refreshed := ""
	if !row.AccountLastRefreshed.IsZero() {
		refreshed = row.AccountLastRefreshed.Format(models.DayLayout)
	}

	return []string{
		row.ID,
		row.UserID,
		row.AccountID,
		row.Date.Format(models.DayLayout),
		formatDecimal(row.Amount),
		strconv.FormatBool(row.IsDebit),
		row.Description,
		row.AccountType,
		latest,
		refreshed,
		row.Balance.String(),
		row.Balance.Status.String(),
	}
}

// formatDecimal writes d with the scale it was read with, so "10.00" stays
// "10.00".
func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
