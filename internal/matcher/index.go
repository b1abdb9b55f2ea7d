package matcher

import (
	"transaction-integrity-engine/internal/models"
)

// ExactKey identifies Type 1 duplicates.
type ExactKey struct {
	UserID      string
	AccountID   string
	Day         string
	Amount      string
	Description string
}

// CandidateKey identifies a Type 2 candidate group.
type CandidateKey struct {
	Day       string
	UserID    string
	AccountID string
	Amount    string
}

// ExactKeyOf builds the Type 1 key of a transaction. Amounts compare by
// value, so 10 and 10.00 share a key.
func ExactKeyOf(tx *models.Transaction) ExactKey {
	return ExactKey{
		UserID:      tx.UserID,
		AccountID:   tx.AccountID,
		Day:         models.DayKey(tx.Date),
		Amount:      tx.Amount.String(),
		Description: tx.Description,
	}
}

// CandidateKeyOf builds the Type 2 group key of a transaction.
func CandidateKeyOf(tx *models.Transaction) CandidateKey {
	return CandidateKey{
		Day:       models.DayKey(tx.Date),
		UserID:    tx.UserID,
		AccountID: tx.AccountID,
		Amount:    tx.Amount.String(),
	}
}

// DuplicateCandidateGroup holds the row indices that share a CandidateKey,
// in original row order.
type DuplicateCandidateGroup struct {
	Key     CandidateKey
	Indices []int
}

// CandidateIndex is a multimap from CandidateKey to row indices. Rows are
// referenced by their position in the transaction slice it was built from.
type CandidateIndex struct {
	groups map[CandidateKey]*DuplicateCandidateGroup
	order  []CandidateKey
}

// NewCandidateIndex indexes the rows at the given positions of transactions.
// Indices must be in ascending order for groups to keep row order.
func NewCandidateIndex(transactions []*models.Transaction, indices []int) *CandidateIndex {
	ci := &CandidateIndex{
		groups: make(map[CandidateKey]*DuplicateCandidateGroup),
	}

	for _, i := range indices {
		key := CandidateKeyOf(transactions[i])
		group, exists := ci.groups[key]
		if !exists {
			group = &DuplicateCandidateGroup{Key: key}
			ci.groups[key] = group
			ci.order = append(ci.order, key)
		}
		group.Indices = append(group.Indices, i)
	}

	return ci
}

// Candidates returns the groups with two or more members, ordered by the
// position of their first member.
func (ci *CandidateIndex) Candidates() []*DuplicateCandidateGroup {
	var result []*DuplicateCandidateGroup
	for _, key := range ci.order {
		if g := ci.groups[key]; len(g.Indices) > 1 {
			result = append(result, g)
		}
	}
	return result
}

// Get returns the group for key, or nil.
func (ci *CandidateIndex) Get(key CandidateKey) *DuplicateCandidateGroup {
	return ci.groups[key]
}

// Size returns the number of distinct keys, singletons included.
func (ci *CandidateIndex) Size() int {
	return len(ci.order)
}
