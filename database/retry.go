package database

import (
	"fmt"
	"time"
)

// RetryPolicy bounds connection-establishment retries. It only applies
// before a sync call begins, never mid-transaction.
type RetryPolicy struct {
	// Attempts is the maximum number of connection attempts; zero or
	// negative means retry without bound.
	Attempts int

	// Delay is the pause between attempts.
	Delay time.Duration
}

// Connect establishes the client connection, retrying per policy.
func Connect(client Client, policy RetryPolicy, logger Logger) error {
	attempt := 0
	for {
		attempt++
		err := client.Connect()
		if err == nil {
			return nil
		}
		if policy.Attempts > 0 && attempt >= policy.Attempts {
			return fmt.Errorf("connecting after %d attempts: %w", attempt, err)
		}
		logger.Printf("-- Connection attempt %d failed: %s --\n", attempt, err)
		time.Sleep(policy.Delay)
	}
}
