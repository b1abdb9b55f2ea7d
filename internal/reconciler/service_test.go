package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transaction-integrity-engine/internal/parsers"
	"transaction-integrity-engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceCSV = `Transaction Reference,User Reference,Account Reference,Transaction Date,Amount,Debit,Transaction Description,Account Type,Latest Recorded Balance,Account Last Refreshed
t1,u1,a1,2020-01-01,-100,false,salary,current,500,2020-01-03
t2,u1,a1,2020-01-03,30,true,tesco metro london,current,500,2020-01-03
t3,u1,a1,2020-01-03,30,true,tesco metro,current,500,2020-01-03
t4,u1,a1,2020-01-05,0,false,card check,current,500,2020-01-03
`

func newService(t *testing.T, config *Config) *IntegrityService {
	t.Helper()
	s, err := NewIntegrityService(parsers.DefaultTransactionParserConfig(), config, discardLogger(t))
	require.NoError(t, err)
	return s
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())
	assert.Equal(t, 4, config.DuplicateConfig().Workers)
	assert.False(t, config.DuplicateConfig().ExamineAllPairs)
	assert.Equal(t, 4, config.BalanceConfig().Workers)

	config.Workers = -1
	assert.Error(t, config.Validate())
}

func TestProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(serviceCSV), 0o644))

	result, err := newService(t, nil).ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, result.Summary.Source)
	assert.Equal(t, 4, result.ProcessingStats.RecordsParsed)
	assert.Equal(t, 5, result.ProcessingStats.TotalLines)
	assert.Equal(t, 1, result.Summary.Type2Dropped)

	var got []string
	for _, r := range result.Rows {
		got = append(got, r.ID+":"+r.Balance.String())
	}
	assert.Equal(t, []string{"t1:530", "t2:500", "t4:500"}, got)
}

func TestProcessReader(t *testing.T) {
	result, err := newService(t, nil).ProcessReader(context.Background(), strings.NewReader(serviceCSV), "stdin")
	require.NoError(t, err)
	assert.Equal(t, "stdin", result.Summary.Source)
	assert.Len(t, result.Rows, 3)
}

func TestProcessReaderTrailingSpaceIsNearDuplicate(t *testing.T) {
	content := "id,user_id,account_id,date,amount,is_debit,description,account_type,latest_balance,account_last_refreshed\n" +
		"t1,u1,a1,2020-01-01,10,true,tesco ,current,500,2020-01-01\n" +
		"t2,u1,a1,2020-01-01,10,true,tesco,current,500,2020-01-01\n"

	result, err := newService(t, nil).ProcessReader(context.Background(), strings.NewReader(content), "stdin")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.Type1Dropped)
	assert.Equal(t, 1, result.Summary.Type2Dropped)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "t2", result.Rows[0].ID)
	assert.Equal(t, "tesco", result.Rows[0].Description)
}

func TestProcessFileErrors(t *testing.T) {
	svc := newService(t, nil)

	tests := []struct {
		name     string
		path     string
		code     errors.ErrorCode
		exitCode int
	}{
		{"empty path", "", errors.CodeMissingField, 3},
		{"missing file", filepath.Join(t.TempDir(), "nope.csv"), errors.CodeFileNotFound, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessFile(context.Background(), tt.path)
			require.Error(t, err)
			ie, ok := errors.AsIntegrityError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, ie.Code)
			assert.Equal(t, tt.exitCode, ie.GetExitCode())
		})
	}
}
