package matcher

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"transaction-integrity-engine/internal/models"
	"transaction-integrity-engine/pkg/errors"
	"transaction-integrity-engine/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// DuplicateReport is the outcome of duplicate detection over one table.
type DuplicateReport struct {
	// Kept holds the surviving rows in original order.
	Kept []*models.Transaction
	// Type1Dropped holds exact duplicates, in original order.
	Type1Dropped []*models.Transaction
	// Type2Dropped holds near duplicates, in original order.
	Type2Dropped []*models.Transaction
	// CandidateGroups counts Type 2 groups with two or more members.
	CandidateGroups int
}

// TotalDropped returns the number of rows removed by both stages.
func (r *DuplicateReport) TotalDropped() int {
	return len(r.Type1Dropped) + len(r.Type2Dropped)
}

// DuplicateDetector removes exact and near duplicate transactions.
type DuplicateDetector struct {
	config *DuplicateConfig
	logger logger.Logger
}

// NewDuplicateDetector creates a detector. A nil config uses the defaults.
func NewDuplicateDetector(config *DuplicateConfig, log logger.Logger) (*DuplicateDetector, error) {
	if config == nil {
		config = DefaultDuplicateConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "duplicates", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &DuplicateDetector{
		config: config.Clone(),
		logger: log.WithComponent("duplicate_detector"),
	}, nil
}

// Detect runs Type 1 then Type 2 detection.
func (d *DuplicateDetector) Detect(transactions []*models.Transaction) (*DuplicateReport, error) {
	kept, type1 := d.exactSurvivors(transactions)

	type2, groups, err := d.DetectNearDuplicates(transactions, kept)
	if err != nil {
		return nil, err
	}

	drop := make(map[int]struct{}, len(type2))
	for _, i := range type2 {
		drop[i] = struct{}{}
	}

	report := &DuplicateReport{
		Kept:            make([]*models.Transaction, 0, len(kept)-len(type2)),
		Type1Dropped:    pick(transactions, type1),
		Type2Dropped:    pick(transactions, type2),
		CandidateGroups: groups,
	}
	for _, i := range kept {
		if _, ok := drop[i]; !ok {
			report.Kept = append(report.Kept, transactions[i])
		}
	}

	d.logger.WithFields(logger.Fields{
		"rows_in":          len(transactions),
		"type1_dropped":    len(report.Type1Dropped),
		"type2_dropped":    len(report.Type2Dropped),
		"candidate_groups": groups,
		"rows_out":         len(report.Kept),
	}).Info("Duplicate detection completed")

	return report, nil
}

// RemoveExactDuplicates keeps the first row of every set of rows identical
// in user, account, day, amount and description.
func (d *DuplicateDetector) RemoveExactDuplicates(transactions []*models.Transaction) (kept, dropped []*models.Transaction) {
	keptIdx, droppedIdx := d.exactSurvivors(transactions)
	return pick(transactions, keptIdx), pick(transactions, droppedIdx)
}

func (d *DuplicateDetector) exactSurvivors(transactions []*models.Transaction) (kept, dropped []int) {
	seen := make(map[ExactKey]struct{}, len(transactions))
	kept = make([]int, 0, len(transactions))

	for i, tx := range transactions {
		key := ExactKeyOf(tx)
		if _, dup := seen[key]; dup {
			dropped = append(dropped, i)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, i)
	}

	return kept, dropped
}

type userScan struct {
	marked []int
	groups int
}

// DetectNearDuplicates returns the ascending indices of Type 2 duplicates
// among the rows at positions indices of transactions, plus the number of
// candidate groups examined. Users are scanned concurrently.
func (d *DuplicateDetector) DetectNearDuplicates(transactions []*models.Transaction, indices []int) ([]int, int, error) {
	users := partitionByUser(transactions, indices)
	if len(users) == 0 {
		return nil, 0, nil
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Stage:  "type2_dedup",
		Total:  int64(len(users)),
		Logger: d.logger,
	})

	p := pool.NewWithResults[userScan]().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(d.config.Workers)

	for _, rows := range users {
		rows := rows
		p.Go(func() (userScan, error) {
			defer progress.Increment()
			return d.scanUser(transactions, rows)
		})
	}

	results, err := p.Wait()
	progress.Complete()
	if err != nil {
		return nil, 0, err
	}

	var marked []int
	groups := 0
	for _, r := range results {
		marked = append(marked, r.marked...)
		groups += r.groups
	}
	sort.Ints(marked)

	return dedupeSorted(marked), groups, nil
}

func (d *DuplicateDetector) scanUser(transactions []*models.Transaction, rows []int) (userScan, error) {
	var result userScan

	for _, group := range NewCandidateIndex(transactions, rows).Candidates() {
		for _, i := range group.Indices {
			if !utf8.ValidString(transactions[i].Description) {
				return userScan{}, errors.ValidationError(errors.CodeMalformedInput, "description", transactions[i].ID,
					fmt.Errorf("cannot compare description of row %d", i))
			}
		}

		result.groups++
		result.marked = append(result.marked, d.scanGroup(transactions, group)...)
	}

	return result, nil
}

// scanGroup visits every unordered pair of the group in index order. A pair
// whose first description is contained in the second marks the first and,
// unless ExamineAllPairs is set, ends the group. Otherwise a second
// description contained in the first marks the second. Marked rows stay in
// later pairs.
func (d *DuplicateDetector) scanGroup(transactions []*models.Transaction, group *DuplicateCandidateGroup) []int {
	var marked []int
	idx := group.Indices

	for a := 0; a < len(idx)-1; a++ {
		first := transactions[idx[a]]
		firstWords := DescriptionWords(first.Description)

		for b := a + 1; b < len(idx); b++ {
			second := transactions[idx[b]]

			if MatchWords(firstWords, second.Description) {
				marked = append(marked, idx[a])
				if !d.config.ExamineAllPairs {
					return marked
				}
				continue
			}

			if MatchWords(DescriptionWords(second.Description), first.Description) {
				marked = append(marked, idx[b])
			}
		}
	}

	return marked
}

// partitionByUser splits indices by user, keeping row order within a user.
func partitionByUser(transactions []*models.Transaction, indices []int) [][]int {
	byUser := make(map[string]int)
	var users [][]int

	for _, i := range indices {
		u := transactions[i].UserID
		pos, ok := byUser[u]
		if !ok {
			pos = len(users)
			byUser[u] = pos
			users = append(users, nil)
		}
		users[pos] = append(users[pos], i)
	}

	return users
}

func pick(transactions []*models.Transaction, indices []int) []*models.Transaction {
	out := make([]*models.Transaction, 0, len(indices))
	for _, i := range indices {
		out = append(out, transactions[i])
	}
	return out
}

func dedupeSorted(indices []int) []int {
	if len(indices) < 2 {
		return indices
	}
	out := indices[:1]
	for _, i := range indices[1:] {
		if i != out[len(out)-1] {
			out = append(out, i)
		}
	}
	return out
}
