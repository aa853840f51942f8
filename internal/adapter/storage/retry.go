package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries a failing operation with exponential backoff: the
// first wait is InitialInterval and every following one doubles.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, InitialInterval: time.Second}
}

// Do runs op until it succeeds, the attempts are exhausted or ctx is done.
// notify is called before every wait.
func (r RetryPolicy) Do(ctx context.Context, op func() error, notify func(error, time.Duration)) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.InitialInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Hour
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
