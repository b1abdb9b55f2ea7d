package balance

import (
	"fmt"
	"sort"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// Result holds the reconstructed series of every account.
type Result struct {
	Series map[string]*BalanceSeries
	// Accounts lists account IDs in order of first appearance.
	Accounts []string
	// Unanchored lists accounts whose refresh date precedes their rows.
	Unanchored []string
	// NoSnapshot lists accounts without a latest balance.
	NoSnapshot []string
	// InconsistentSnapshots lists accounts whose rows disagree on the
	// snapshot; the first row's snapshot is used.
	InconsistentSnapshots []string
}

// Reconstructor rebuilds daily balances per account.
type Reconstructor struct {
	config *Config
	logger logger.Logger
}

// NewReconstructor creates a reconstructor. A nil config uses the defaults.
func NewReconstructor(config *Config, log logger.Logger) (*Reconstructor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "balance", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	c := *config
	return &Reconstructor{
		config: &c,
		logger: log.WithComponent("balance_reconstructor"),
	}, nil
}

type accountRows struct {
	account *models.Account
	rows    []*models.Transaction
}

// Reconstruct builds one series per account. Accounts are processed
// concurrently; missing or unusable snapshots are reported in the result
// and never fail the run.
func (r *Reconstructor) Reconstruct(transactions []*models.Transaction) (*Result, error) {
	accounts, inconsistent := r.groupByAccount(transactions)

	result := &Result{
		Series:                make(map[string]*BalanceSeries, len(accounts)),
		Accounts:              make([]string, 0, len(accounts)),
		InconsistentSnapshots: inconsistent,
	}
	if len(accounts) == 0 {
		return result, nil
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Stage:  "balance_reconstruction",
		Total:  int64(len(accounts)),
		Logger: r.logger,
	})

	p := pool.NewWithResults[*BalanceSeries]().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(r.config.Workers)

	for _, acc := range accounts {
		acc := acc
		result.Accounts = append(result.Accounts, acc.account.AccountID)
		p.Go(func() (*BalanceSeries, error) {
			defer progress.Increment()
			for _, tx := range acc.rows {
				if tx.Date.IsZero() {
					return nil, errors.ValidationError(errors.CodeInvalidDate, "date", tx.ID,
						fmt.Errorf("account %s has a row without a date", acc.account.AccountID))
				}
			}
			return BuildSeries(acc.account, acc.rows), nil
		})
	}

	series, err := p.Wait()
	progress.Complete()
	if err != nil {
		return nil, err
	}

	for _, s := range series {
		result.Series[s.AccountID] = s
		switch s.Status {
		case models.BalanceUnanchored:
			result.Unanchored = append(result.Unanchored, s.AccountID)
		case models.BalanceNoSnapshot:
			result.NoSnapshot = append(result.NoSnapshot, s.AccountID)
		}
	}
	sort.Strings(result.Unanchored)
	sort.Strings(result.NoSnapshot)

	r.logger.WithFields(logger.Fields{
		"accounts":    len(result.Accounts),
		"unanchored":  len(result.Unanchored),
		"no_snapshot": len(result.NoSnapshot),
	}).Info("Balance reconstruction completed")

	return result, nil
}

// groupByAccount collects rows per account in order of first appearance and
// takes the snapshot from each account's first row.
func (r *Reconstructor) groupByAccount(transactions []*models.Transaction) ([]*accountRows, []string) {
	byID := make(map[string]*accountRows)
	var order []*accountRows
	flagged := make(map[string]bool)
	var inconsistent []string

	for _, tx := range transactions {
		acc, ok := byID[tx.AccountID]
		if !ok {
			acc = &accountRows{account: models.AccountFromTransaction(tx)}
			byID[tx.AccountID] = acc
			order = append(order, acc)
		} else if !flagged[tx.AccountID] && !acc.account.SameSnapshot(models.AccountFromTransaction(tx)) {
			flagged[tx.AccountID] = true
			inconsistent = append(inconsistent, tx.AccountID)
			r.logger.WithFields(logger.Fields{
				"account_id":     tx.AccountID,
				"transaction_id": tx.ID,
			}).Warn("Account rows disagree on balance snapshot, using first row")
		}
		acc.rows = append(acc.rows, tx)
	}

	sort.Strings(inconsistent)
	return order, inconsistent
}

// Annotate attaches to every row the balance of its account on its day.
// Rows on the same account-day share one balance.
func (r *Reconstructor) Annotate(transactions []*models.Transaction, result *Result) []*models.AnnotatedTransaction {
	out := make([]*models.AnnotatedTransaction, 0, len(transactions))
	for _, tx := range transactions {
		b := models.MissingBalance(models.BalanceUnset)
		if s, ok := result.Series[tx.AccountID]; ok {
			b = s.At(tx.Date)
		}
		out = append(out, &models.AnnotatedTransaction{Transaction: tx, Balance: b})
	}
	return out
}
