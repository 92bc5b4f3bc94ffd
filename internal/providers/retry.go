package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const transientRetries = 2

// retryTransient runs fn with exponential backoff for transient failures.
// fn signals a non-retryable failure by wrapping it in backoff.Permanent.
func retryTransient(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(bo, transientRetries), ctx))
}

// statusError classifies an HTTP status for the retry policy: 429 and 5xx
// are transient, everything else is permanent.
func statusError(provider string, code int) error {
	err := fmt.Errorf("%s returned HTTP %d", provider, code)
	if code == 429 || code >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
