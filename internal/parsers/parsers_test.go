package parsers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const standardHeader = "id,user_id,account_id,date,amount,is_debit,description,account_type,latest_balance,account_last_refreshed\n"

// createTempCSVFile writes content to a CSV file in a per-test directory
func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newParser(t *testing.T, config *TransactionParserConfig) *TransactionParser {
	t.Helper()
	log, err := logger.NewLoggerWithWriter(logger.DefaultConfig(), io.Discard)
	require.NoError(t, err)
	p, err := NewTransactionParser(config, log)
	require.NoError(t, err)
	return p
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	ie, ok := errors.AsIntegrityError(err)
	require.True(t, ok, "expected IntegrityError, got %T: %v", err, err)
	assert.Equal(t, code, ie.Code)
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Transaction Date":          "transaction_date",
		" user_id ":                 "user_id",
		"Account.Reference":         "account_reference",
		"Latest  Recorded\tBalance": "latest_recorded_balance",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestTransactionParserConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultTransactionParserConfig().Validate())

	bad := DefaultTransactionParserConfig()
	bad.Delimiter = '"'
	assert.Error(t, bad.Validate())

	bad = DefaultTransactionParserConfig()
	bad.ColumnAliases["memo"] = "notes"
	assert.Error(t, bad.Validate())

	_, err := NewTransactionParser(bad, nil)
	requireCode(t, err, errors.CodeInvalidConfig)
}

func TestParseTransactions(t *testing.T) {
	content := standardHeader +
		"t1,u1,a1,2020-01-01,-100,false,salary,current,500,2020-01-05\n" +
		"t2,u1,a1,2020-01-03,30.50,true,tesco metro,current,500,2020-01-05\n" +
		"\n" +
		"t3,u2,a2,2020-01-02 10:30:00,12,,coffee,credit card,,\n"

	p := newParser(t, nil)
	txns, stats, err := p.ParseTransactions(context.Background(), createTempCSVFile(t, content))
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, 3, stats.RecordsParsed)
	assert.Equal(t, 4, stats.TotalLines)

	first := txns[0]
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "a1", first.AccountID)
	assert.Equal(t, "2020-01-01", first.Date.Format(models.DayLayout))
	assert.Equal(t, "-100", first.Amount.String())
	assert.False(t, first.IsDebit)
	assert.Equal(t, "salary", first.Description)
	assert.Equal(t, "current", first.AccountType)
	require.True(t, first.LatestBalance.Valid)
	assert.Equal(t, "500", first.LatestBalance.Decimal.String())
	assert.Equal(t, "2020-01-05", first.AccountLastRefreshed.Format(models.DayLayout))

	third := txns[2]
	assert.Equal(t, "2020-01-02", third.Date.Format(models.DayLayout))
	assert.True(t, third.IsDebit, "missing debit flag falls back to the amount sign")
	assert.False(t, third.LatestBalance.Valid)
	assert.True(t, third.AccountLastRefreshed.IsZero())
}

func TestParseRawExportHeaders(t *testing.T) {
	content := "Transaction Reference,User Reference,Account Reference,Transaction Date,Amount,Debit,Transaction Description,Account Type,Latest Recorded Balance,Account Last Refreshed\n" +
		"t1,u1,a1,2020-01-01,10,true,tesco,current,25,2020-01-02\n"

	txns, _, err := newParser(t, nil).ParseReader(context.Background(), strings.NewReader(content), "raw.csv")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	assert.Equal(t, "t1", txns[0].ID)
	assert.Equal(t, "u1", txns[0].UserID)
	assert.Equal(t, "tesco", txns[0].Description)
	assert.True(t, txns[0].IsDebit)
	assert.Equal(t, "25", txns[0].LatestBalance.Decimal.String())
}

func TestParseCustomDelimiterAndAlias(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.Delimiter = ';'
	config.ColumnAliases["Memo Text"] = ColumnDescription

	content := "id;user_id;account_id;date;amount;memo text;latest_balance;account_last_refreshed\n" +
		"t1;u1;a1;2020-01-01;1,5;card;;\n"

	txns, _, err := newParser(t, config).ParseReader(context.Background(), strings.NewReader(content), "semi.csv")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "card", txns[0].Description)
	assert.Equal(t, "15", txns[0].Amount.String())
}

func TestParseKeepsDescriptionVerbatim(t *testing.T) {
	content := standardHeader +
		"t1,u1,a1,2020-01-01, 10 ,true,tesco ,current,500,2020-01-05\n" +
		"t2,u1,a1,2020-01-01,10,true,  tesco\t,current,500,2020-01-05\n" +
		"t3,u1,a1,2020-01-01,10,true,\" \",current,500,2020-01-05\n"

	txns, _, err := newParser(t, nil).ParseReader(context.Background(), strings.NewReader(content), "ws.csv")
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "tesco ", txns[0].Description)
	assert.Equal(t, "  tesco\t", txns[1].Description)
	assert.Equal(t, " ", txns[2].Description)
	assert.Equal(t, "10", txns[0].Amount.String(), "other cells are still trimmed")
}

func TestParseWithoutHeader(t *testing.T) {
	config := DefaultTransactionParserConfig()
	config.HasHeader = false

	content := "t1,u1,a1,2020-01-01,10,false,tesco metro,current,500,2020-01-05\n" +
		"t2,u1,a1,2020-01-02,-5,,refund,current,500,2020-01-05\n"

	txns, stats, err := newParser(t, config).ParseReader(context.Background(), strings.NewReader(content), "bare.csv")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 2, stats.TotalLines)

	first := txns[0]
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "10", first.Amount.String())
	assert.False(t, first.IsDebit)
	assert.Equal(t, "tesco metro", first.Description)
	assert.Equal(t, "current", first.AccountType)
	assert.Equal(t, "500", first.LatestBalance.Decimal.String())
	assert.Equal(t, "2020-01-05", first.AccountLastRefreshed.Format(models.DayLayout))

	assert.False(t, txns[1].IsDebit, "empty debit flag falls back to the amount sign")
	assert.Equal(t, "refund", txns[1].Description)
}

func TestParseFailsFast(t *testing.T) {
	tests := []struct {
		name string
		row  string
		code errors.ErrorCode
	}{
		{"bad amount", "t1,u1,a1,2020-01-01,abc,true,x,current,1,2020-01-01\n", errors.CodeInvalidAmount},
		{"bad date", "t1,u1,a1,someday,1,true,x,current,1,2020-01-01\n", errors.CodeInvalidDate},
		{"bad balance", "t1,u1,a1,2020-01-01,1,true,x,current,lots,2020-01-01\n", errors.CodeInvalidAmount},
		{"bad refresh date", "t1,u1,a1,2020-01-01,1,true,x,current,1,soon\n", errors.CodeInvalidDate},
		{"bad debit flag", "t1,u1,a1,2020-01-01,1,perhaps,x,current,1,2020-01-01\n", errors.CodeInvalidData},
		{"missing user", "t1,,a1,2020-01-01,1,true,x,current,1,2020-01-01\n", errors.CodeMissingField},
		{"short row", "t1,u1,a1\n", errors.CodeInvalidData},
		{"invalid utf8", "t1,u1,a1,2020-01-01,1,true,caf\xe9,current,1,2020-01-01\n", errors.CodeEncodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := standardHeader + "t0,u1,a1,2020-01-01,1,true,ok,current,1,2020-01-01\n" + tt.row
			txns, _, err := newParser(t, nil).ParseReader(context.Background(), strings.NewReader(content), "bad.csv")
			assert.Nil(t, txns)
			requireCode(t, err, tt.code)
		})
	}
}

func TestParseMissingColumns(t *testing.T) {
	content := "id,user_id,date,amount\n" + "t1,u1,2020-01-01,1\n"

	_, _, err := newParser(t, nil).ParseReader(context.Background(), strings.NewReader(content), "cols.csv")
	requireCode(t, err, errors.CodeMissingColumn)

	ie, _ := errors.AsIntegrityError(err)
	assert.Contains(t, ie.Context["value"], ColumnAccountID)
}

func TestParseEmptyInput(t *testing.T) {
	_, _, err := newParser(t, nil).ParseReader(context.Background(), strings.NewReader(""), "empty.csv")
	requireCode(t, err, errors.CodeMissingField)
}

func TestParseFileNotFound(t *testing.T) {
	_, _, err := newParser(t, nil).ParseTransactions(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	requireCode(t, err, errors.CodeFileNotFound)
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	content := standardHeader + "t1,u1,a1,2020-01-01,1,true,x,current,1,2020-01-01\n"
	_, _, err := newParser(t, nil).ParseReader(ctx, strings.NewReader(content), "c.csv")
	requireCode(t, err, errors.CodeCancelled)
}
