// Package matcher detects duplicate transaction records injected by upstream
// export and merge processes.
//
// Detection runs in two stages over a per-user transaction stream:
//  1. Type 1 (exact): rows identical in user, account, day, amount and
//     description collapse to the first occurrence.
//  2. Type 2 (near): rows sharing user, account, day and amount form a
//     candidate group; within a group, a row whose description words are
//     all contained in another member's description is dropped.
//
// Example usage:
//
//	config := matcher.DefaultDuplicateConfig()
//	detector, err := matcher.NewDuplicateDetector(config, log)
//	if err != nil {
//		return err
//	}
//	report, err := detector.Detect(transactions)
package matcher

import (
	"fmt"
)

// DuplicateConfig controls duplicate detection.
type DuplicateConfig struct {
	// ExamineAllPairs disables the early exit taken when the first member of
	// a pair matches forward. With the default (false) the rest of the
	// candidate group is skipped after the first forward match.
	ExamineAllPairs bool `json:"examine_all_pairs" mapstructure:"examine_all_pairs"`

	// Workers bounds the number of users processed concurrently.
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultDuplicateConfig returns a configuration with sensible defaults
func DefaultDuplicateConfig() *DuplicateConfig {
	return &DuplicateConfig{
		ExamineAllPairs: false,
		Workers:         4,
	}
}

// Validate checks if the duplicate configuration is valid
func (c *DuplicateConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	return nil
}

// Clone creates a copy of the configuration
func (c *DuplicateConfig) Clone() *DuplicateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
