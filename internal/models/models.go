package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"transaction-integrity-engine/pkg/errors"

	"github.com/shopspring/decimal"
)

// DayLayout is the canonical day format used for grouping keys and output.
const DayLayout = "2006-01-02"

// Transaction is one row of the input table. Amount is signed: positive
// values are debits (outflows), negative values are credits (inflows).
// The account snapshot columns are repeated on every row of the account.
type Transaction struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	AccountID            string              `json:"account_id"`
	Date                 time.Time           `json:"date"`
	Amount               decimal.Decimal     `json:"amount"`
	Description          string              `json:"description"`
	IsDebit              bool                `json:"is_debit"`
	AccountType          string              `json:"account_type"`
	LatestBalance        decimal.NullDecimal `json:"latest_balance"`
	AccountLastRefreshed time.Time           `json:"account_last_refreshed"`
}

// Validate reports rows that break the input contract. Any error returned
// here is fatal for the run.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "user_id", t.ID, nil)
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "account_id", t.ID, nil)
	}
	if t.Date.IsZero() {
		return errors.ValidationError(errors.CodeInvalidDate, "date", t.ID, nil)
	}
	if !utf8.ValidString(t.Description) {
		return errors.ValidationError(errors.CodeMalformedInput, "description", t.ID,
			fmt.Errorf("description is not valid UTF-8 text"))
	}
	return nil
}

// Day returns the transaction date truncated to a UTC calendar day.
func (t *Transaction) Day() time.Time {
	return NormalizeDay(t.Date)
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, User: %s, Account: %s, Date: %s, Amount: %s, Description: %q}",
		t.ID, t.UserID, t.AccountID, t.Date.Format(DayLayout), t.Amount.String(), t.Description)
}

// Account is the per-account snapshot carried on the transaction rows.
// Only one snapshot exists per account; no balance history is available.
type Account struct {
	AccountID     string              `json:"account_id"`
	AccountType   string              `json:"account_type"`
	LatestBalance decimal.NullDecimal `json:"latest_balance"`
	LastRefreshed time.Time           `json:"last_refreshed"`
}

// AccountFromTransaction extracts the account snapshot from a row.
func AccountFromTransaction(t *Transaction) *Account {
	return &Account{
		AccountID:     t.AccountID,
		AccountType:   t.AccountType,
		LatestBalance: t.LatestBalance,
		LastRefreshed: NormalizeDay(t.AccountLastRefreshed),
	}
}

// HasSnapshot reports whether a latest balance was recorded.
func (a *Account) HasSnapshot() bool {
	return a.LatestBalance.Valid
}

// SameSnapshot reports whether two rows of an account agree on the snapshot.
func (a *Account) SameSnapshot(other *Account) bool {
	if a.LatestBalance.Valid != other.LatestBalance.Valid {
		return false
	}
	if a.LatestBalance.Valid && !a.LatestBalance.Decimal.Equal(other.LatestBalance.Decimal) {
		return false
	}
	return a.LastRefreshed.Equal(other.LastRefreshed)
}

// BalanceStatus tags why a balance value is or is not available.
type BalanceStatus int

const (
	// BalanceUnset is the zero value; no reconstruction has run.
	BalanceUnset BalanceStatus = iota
	// BalanceAvailable carries a reconstructed value.
	BalanceAvailable
	// BalanceUnanchored means the refresh date precedes every observed day.
	BalanceUnanchored
	// BalanceNoSnapshot means the account has no latest balance.
	BalanceNoSnapshot
)

// String returns the string representation of BalanceStatus
func (s BalanceStatus) String() string {
	switch s {
	case BalanceAvailable:
		return "available"
	case BalanceUnanchored:
		return "unanchored"
	case BalanceNoSnapshot:
		return "no_snapshot"
	default:
		return "unset"
	}
}

// MarshalText lets the status appear by name in JSON and YAML output.
func (s BalanceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Balance is the reconstructed account balance for one account-day.
type Balance struct {
	Value  decimal.Decimal `json:"value"`
	Status BalanceStatus   `json:"status"`
}

// AvailableBalance wraps a reconstructed value.
func AvailableBalance(v decimal.Decimal) Balance {
	return Balance{Value: v, Status: BalanceAvailable}
}

// MissingBalance returns an unavailable balance with the given reason.
func MissingBalance(status BalanceStatus) Balance {
	return Balance{Status: status}
}

// IsAvailable reports whether Value holds a reconstructed balance.
func (b Balance) IsAvailable() bool {
	return b.Status == BalanceAvailable
}

// String renders the value, or an empty string when missing.
func (b Balance) String() string {
	if !b.IsAvailable() {
		return ""
	}
	return b.Value.String()
}

// AnnotatedTransaction is an output row: a surviving transaction plus the
// balance of its account on its day.
type AnnotatedTransaction struct {
	*Transaction
	Balance Balance `json:"balance"`
}

// NormalizeDay truncates t to midnight UTC of its calendar day.
func NormalizeDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats a day for use in grouping keys.
func DayKey(t time.Time) string {
	return NormalizeDay(t).Format(DayLayout)
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseNullDecimal parses an optional decimal; empty, "nan" and "null"
// yield an invalid NullDecimal.
func ParseNullDecimal(s string) (decimal.NullDecimal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "na":
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseDecimalFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseDate parses a date using the formats commonly found in bank exports.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DayLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
		"2 Jan 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return NormalizeDay(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParseDebitFlag parses the is_debit column. It accepts boolean spellings
// as well as the raw export's "debit"/"credit" values.
func ParseDebitFlag(s string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "debit", "d", "dr":
		return true, nil
	case "credit", "c", "cr":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid debit flag '%s'", s)
	}
	return b, nil
}
