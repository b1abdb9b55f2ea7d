package matcher

import (
	"fmt"
	"testing"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T, examineAll bool, workers int) *DuplicateDetector {
	t.Helper()
	log, err := logger.NewLoggerWithWriter(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.TextFormat,
		Output: logger.StderrOutput,
	}, testWriter{t})
	require.NoError(t, err)

	d, err := NewDuplicateDetector(&DuplicateConfig{ExamineAllPairs: examineAll, Workers: workers}, log)
	require.NoError(t, err)
	return d
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func ids(txns []*models.Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, tx := range txns {
		out = append(out, tx.ID)
	}
	return out
}

func TestNewDuplicateDetectorRejectsBadConfig(t *testing.T) {
	_, err := NewDuplicateDetector(&DuplicateConfig{Workers: 0}, nil)
	require.Error(t, err)

	ie, ok := errors.AsIntegrityError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, ie.Category)
}

func TestRemoveExactDuplicates(t *testing.T) {
	d := newDetector(t, false, 2)
	txns := []*models.Transaction{
		newTx("1", "u1", "a1", "2020-01-01", "10", "tesco"),
		newTx("2", "u1", "a1", "2020-01-01", "10.00", "tesco"),
		newTx("3", "u1", "a1", "2020-01-01", "10", "tesco metro"),
		newTx("4", "u2", "a1", "2020-01-01", "10", "tesco"),
		newTx("5", "u1", "a1", "2020-01-01", "10", "tesco"),
	}

	kept, dropped := d.RemoveExactDuplicates(txns)
	assert.Equal(t, []string{"1", "3", "4"}, ids(kept))
	assert.Equal(t, []string{"2", "5"}, ids(dropped))

	t.Run("idempotent", func(t *testing.T) {
		again, droppedAgain := d.RemoveExactDuplicates(kept)
		assert.Equal(t, ids(kept), ids(again))
		assert.Empty(t, droppedAgain)
	})
}

func TestDetectType2Directional(t *testing.T) {
	tests := []struct {
		name     string
		txns     []*models.Transaction
		wantKept []string
		wantDrop []string
	}{
		{
			name: "shorter description first",
			txns: []*models.Transaction{
				newTx("short", "u1", "a1", "2020-01-01", "5", "tesco metro"),
				newTx("long", "u1", "a1", "2020-01-01", "5", "tesco metro london"),
			},
			wantKept: []string{"long"},
			wantDrop: []string{"short"},
		},
		{
			name: "shorter description second",
			txns: []*models.Transaction{
				newTx("long", "u1", "a1", "2020-01-01", "5", "tesco metro london"),
				newTx("short", "u1", "a1", "2020-01-01", "5", "tesco metro"),
			},
			wantKept: []string{"long"},
			wantDrop: []string{"short"},
		},
		{
			name: "unrelated descriptions both survive",
			txns: []*models.Transaction{
				newTx("1", "u1", "a1", "2020-01-01", "5", "tesco metro"),
				newTx("2", "u1", "a1", "2020-01-01", "5", "amazon prime"),
			},
			wantKept: []string{"1", "2"},
		},
		{
			name: "substring looseness is preserved",
			txns: []*models.Transaction{
				newTx("1", "u1", "a1", "2020-01-01", "5", "art"),
				newTx("2", "u1", "a1", "2020-01-01", "5", "smart shop"),
			},
			wantKept: []string{"2"},
			wantDrop: []string{"1"},
		},
		{
			name: "empty description matches vacuously",
			txns: []*models.Transaction{
				newTx("1", "u1", "a1", "2020-01-01", "5", ""),
				newTx("2", "u1", "a1", "2020-01-01", "5", "card payment"),
			},
			wantKept: []string{"2"},
			wantDrop: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newDetector(t, false, 2).Detect(tt.txns)
			require.NoError(t, err)

			assert.Equal(t, tt.wantKept, ids(report.Kept))
			assert.Equal(t, len(tt.wantDrop), len(report.Type2Dropped))
			if len(tt.wantDrop) > 0 {
				assert.Equal(t, tt.wantDrop, ids(report.Type2Dropped))
			}
			assert.Empty(t, report.Type1Dropped)
			assert.Equal(t, 1, report.CandidateGroups)
		})
	}
}

func TestDetectType2EarlyExit(t *testing.T) {
	txns := []*models.Transaction{
		newTx("A", "u1", "a1", "2020-01-01", "5", "tesco"),
		newTx("B", "u1", "a1", "2020-01-01", "5", "tesco metro"),
		newTx("C", "u1", "a1", "2020-01-01", "5", "metro"),
	}

	t.Run("first forward match ends the group", func(t *testing.T) {
		report, err := newDetector(t, false, 1).Detect(txns)
		require.NoError(t, err)

		assert.Equal(t, []string{"A"}, ids(report.Type2Dropped))
		assert.Equal(t, []string{"B", "C"}, ids(report.Kept))
	})

	t.Run("examine all pairs", func(t *testing.T) {
		report, err := newDetector(t, true, 1).Detect(txns)
		require.NoError(t, err)

		assert.Equal(t, []string{"A", "C"}, ids(report.Type2Dropped))
		assert.Equal(t, []string{"B"}, ids(report.Kept))
	})
}

func TestDetectMarkedRowsStayInPairs(t *testing.T) {
	// 1 is marked by (0,1) and still takes part in (1,2).
	txns := []*models.Transaction{
		newTx("0", "u1", "a1", "2020-01-01", "5", "tesco metro london"),
		newTx("1", "u1", "a1", "2020-01-01", "5", "tesco metro"),
		newTx("2", "u1", "a1", "2020-01-01", "5", "tesco"),
	}

	report, err := newDetector(t, false, 1).Detect(txns)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(report.Type2Dropped))
	assert.Equal(t, []string{"0"}, ids(report.Kept))
}

func TestDetectNeverDropsNonCandidates(t *testing.T) {
	txns := []*models.Transaction{
		newTx("1", "u1", "a1", "2020-01-01", "5", "tesco"),
		newTx("2", "u1", "a1", "2020-01-01", "6", "tesco metro"),
		newTx("3", "u1", "a2", "2020-01-01", "5", "tesco metro"),
		newTx("4", "u1", "a1", "2020-01-02", "5", "tesco metro"),
		newTx("5", "u2", "a1", "2020-01-01", "5", "tesco metro"),
	}

	report, err := newDetector(t, false, 4).Detect(txns)
	require.NoError(t, err)

	assert.Equal(t, ids(txns), ids(report.Kept))
	assert.Zero(t, report.TotalDropped())
	assert.Zero(t, report.CandidateGroups)
}

func TestDetectType2RunsOnType1Output(t *testing.T) {
	txns := []*models.Transaction{
		newTx("1", "u1", "a1", "2020-01-01", "5", "tesco metro"),
		newTx("2", "u1", "a1", "2020-01-01", "5", "tesco metro"),
		newTx("3", "u1", "a1", "2020-01-01", "5", "tesco metro london"),
	}

	report, err := newDetector(t, false, 1).Detect(txns)
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, ids(report.Type1Dropped))
	assert.Equal(t, []string{"1"}, ids(report.Type2Dropped))
	assert.Equal(t, []string{"3"}, ids(report.Kept))
}

func TestDetectMalformedDescriptionIsFatal(t *testing.T) {
	txns := []*models.Transaction{
		newTx("1", "u1", "a1", "2020-01-01", "5", "tesco"),
		newTx("2", "u1", "a1", "2020-01-01", "5", "caf\xe9"),
	}

	report, err := newDetector(t, false, 1).Detect(txns)
	require.Error(t, err)
	assert.Nil(t, report)

	ie, ok := errors.AsIntegrityError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeMalformedInput, ie.Code)
	assert.Equal(t, 3, ie.GetExitCode())
}

func TestDetectIsIndependentOfWorkerCount(t *testing.T) {
	var txns []*models.Transaction
	descs := []string{"tesco metro", "tesco metro london", "tesco", "amazon", "amazon prime"}
	for u := 0; u < 20; u++ {
		for i, desc := range descs {
			txns = append(txns, newTx(
				fmt.Sprintf("u%d-%d", u, i),
				fmt.Sprintf("u%d", u),
				"a1",
				"2020-01-01",
				fmt.Sprintf("%d", i%2),
				desc,
			))
		}
	}

	serial, err := newDetector(t, false, 1).Detect(txns)
	require.NoError(t, err)
	parallel, err := newDetector(t, false, 8).Detect(txns)
	require.NoError(t, err)

	assert.Equal(t, ids(serial.Kept), ids(parallel.Kept))
	assert.Equal(t, ids(serial.Type2Dropped), ids(parallel.Type2Dropped))
	assert.Equal(t, serial.CandidateGroups, parallel.CandidateGroups)
	assert.Equal(t, 40, serial.CandidateGroups)
}

func TestDetectEmptyInput(t *testing.T) {
	report, err := newDetector(t, false, 1).Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, report.Kept)
	assert.Zero(t, report.CandidateGroups)
}
