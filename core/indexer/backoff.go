package indexer

import "time"

const (
	backoffBase = 30 * time.Second
	backoffMax  = 10 * time.Minute
)

// Backoff returns the retry delay after the given attempt, doubling from 30s
// and capped at 10 minutes. Attempts are 1-based.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}
