package apperr

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrLimitReached        = errors.New("daily limit reached")
	ErrPremiumRequired     = errors.New("premium required")
)

const (
	DefaultConflictAttempts = 5
	conflictBackoff         = 10 * time.Millisecond
)

// RetryOnConflict runs fn until it returns something other than ErrConflict,
// at most attempts times. fn must re-read state on every call.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultConflictAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * conflictBackoff):
		}
	}
	return err
}
