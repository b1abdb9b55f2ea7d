// Package balance reconstructs daily account balances from the single
// balance snapshot recorded for each account.
package balance

import "fmt"

// Config controls balance reconstruction.
type Config struct {
	// Workers bounds the number of accounts processed concurrently.
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{Workers: 4}
}

// Validate checks if the balance configuration is valid
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	return nil
}
