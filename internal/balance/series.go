package balance

import (
	"time"

	"transaction-integrity-engine/internal/models"

	"github.com/shopspring/decimal"
)

const secondsPerDay = 24 * 60 * 60

// daysBetween counts calendar days from start to t. Both are UTC midnights.
// It avoids time.Duration, which saturates after about 292 years.
func daysBetween(start, t time.Time) int {
	return int((t.Unix() - start.Unix()) / secondsPerDay)
}

// BalanceSeries is the daily balance of one account from its first to its
// last transaction day. Index i covers Start plus i days.
type BalanceSeries struct {
	AccountID  string
	Start      time.Time
	Flows      []decimal.Decimal
	Cumulative []decimal.Decimal
	Balances   []models.Balance
	// AnchorDay is the day whose balance equals the snapshot. Zero unless
	// Status is BalanceAvailable.
	AnchorDay time.Time
	Offset    decimal.Decimal
	Status    models.BalanceStatus
}

// Days returns the number of days covered.
func (s *BalanceSeries) Days() int {
	return len(s.Flows)
}

// End returns the last covered day.
func (s *BalanceSeries) End() time.Time {
	if len(s.Flows) == 0 {
		return s.Start
	}
	return s.Start.AddDate(0, 0, len(s.Flows)-1)
}

// Day returns the date at index i.
func (s *BalanceSeries) Day(i int) time.Time {
	return s.Start.AddDate(0, 0, i)
}

// At returns the balance on the day of t. Days outside the series are unset.
func (s *BalanceSeries) At(t time.Time) models.Balance {
	i, ok := s.index(t)
	if !ok {
		return models.MissingBalance(models.BalanceUnset)
	}
	return s.Balances[i]
}

func (s *BalanceSeries) index(t time.Time) (int, bool) {
	t = models.NormalizeDay(t)
	if len(s.Flows) == 0 || t.Before(s.Start) {
		return 0, false
	}
	i := daysBetween(s.Start, t)
	if i >= len(s.Flows) {
		return 0, false
	}
	return i, true
}

// BuildSeries reconstructs the daily balance of one account from its rows
// and snapshot. Each day's flow is the negated sum of its amounts so that
// credits raise the balance. The cumulative flow is anchored at the refresh
// day, or the last covered day before it; a refresh day after the range
// anchors at the last day. A refresh day before the range leaves every day
// unanchored, and a missing snapshot leaves every day without a snapshot.
func BuildSeries(account *models.Account, transactions []*models.Transaction) *BalanceSeries {
	s := &BalanceSeries{AccountID: account.AccountID}
	if len(transactions) == 0 {
		s.Status = models.BalanceUnset
		return s
	}

	start, end := transactions[0].Day(), transactions[0].Day()
	for _, tx := range transactions[1:] {
		d := tx.Day()
		if d.Before(start) {
			start = d
		}
		if d.After(end) {
			end = d
		}
	}

	n := daysBetween(start, end) + 1
	s.Start = start
	s.Flows = make([]decimal.Decimal, n)
	s.Cumulative = make([]decimal.Decimal, n)
	s.Balances = make([]models.Balance, n)

	for _, tx := range transactions {
		i := daysBetween(start, tx.Day())
		s.Flows[i] = s.Flows[i].Sub(tx.Amount)
	}

	running := decimal.Zero
	for i, f := range s.Flows {
		running = running.Add(f)
		s.Cumulative[i] = running
	}

	if !account.HasSnapshot() {
		s.fill(models.BalanceNoSnapshot)
		return s
	}

	refreshed := models.NormalizeDay(account.LastRefreshed)
	if refreshed.Before(start) {
		s.fill(models.BalanceUnanchored)
		return s
	}

	anchor := n - 1
	if !refreshed.After(end) {
		anchor = daysBetween(start, refreshed)
	}

	s.Status = models.BalanceAvailable
	s.AnchorDay = s.Day(anchor)
	s.Offset = account.LatestBalance.Decimal.Sub(s.Cumulative[anchor])
	for i, c := range s.Cumulative {
		s.Balances[i] = models.AvailableBalance(c.Add(s.Offset))
	}

	return s
}

func (s *BalanceSeries) fill(status models.BalanceStatus) {
	s.Status = status
	for i := range s.Balances {
		s.Balances[i] = models.MissingBalance(status)
	}
}
