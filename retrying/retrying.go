// Package retrying provides the single retry policy shared by every
// external-provider call (embedding API, vector index). Only errors marked
// transient are retried; everything else fails immediately.
package retrying

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUpstreamUnavailable wraps the last transient error once the attempt
// budget is exhausted. Callers surface it as a single failed operation.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Typed failure classes for provider boundaries.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrTimeout      = errors.New("timeout")
	ErrInvalidInput = errors.New("invalid input")
	ErrProvider     = errors.New("provider error")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Rate limits and timeouts are transient
// by classification; use this for other errors worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// Policy bounds exponential backoff with jitter. The zero value is not
// usable; construct with DefaultPolicy or fill every field.
type Policy struct {
	MaxAttempts  uint64
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		BaseInterval: 500 * time.Millisecond,
		MaxInterval:  10 * time.Second,
	}
}

// Do runs op, retrying transient failures with exponential backoff and
// jitter until MaxAttempts is reached or ctx is done. The backoff library
// randomizes each interval, so concurrent retries do not synchronize.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseInterval
	expo.MaxInterval = p.MaxInterval
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, attempts-1), ctx)

	err := backoff.Retry(func() error {
		opErr := op()
		if opErr == nil {
			return nil
		}
		if !IsTransient(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, policy)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUpstreamUnavailable, attempts, err)
}
