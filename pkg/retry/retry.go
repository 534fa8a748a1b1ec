// Package retry implements bounded retry with exponential backoff and jitter
// for outbound calls. Only errors marked Transient are retried; everything
// else propagates immediately. After the retry budget is exhausted the last
// error is returned, never swallowed.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	DefaultRetries   = 5
	DefaultBaseDelay = 800 * time.Millisecond
	DefaultMaxJitter = 250 * time.Millisecond
)

// Policy configures one call site. The zero value gets the defaults above,
// so different integrations can tune their budgets independently.
type Policy struct {
	// Retries is the number of retries after the first attempt, so a call
	// makes at most Retries+1 attempts.
	Retries   int
	BaseDelay time.Duration
	// MaxJitter bounds the random component added to every backoff delay.
	MaxJitter time.Duration
	// Notify, if set, is called before each backoff sleep. Callers use it to
	// surface retry warnings into job logs.
	Notify func(attempt, retries int, delay time.Duration, err error)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) withDefaults() Policy {
	if p.Retries <= 0 {
		p.Retries = DefaultRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxJitter <= 0 {
		p.MaxJitter = DefaultMaxJitter
	}
	if p.sleep == nil {
		p.sleep = sleepCtx
	}
	return p
}

// Do runs fn, retrying transient failures with delay = BaseDelay * 2^attempt
// plus a random jitter in [0, MaxJitter).
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= p.Retries {
			return err
		}

		delay := p.BaseDelay*(1<<attempt) + time.Duration(rand.Int63n(int64(p.MaxJitter)))
		if p.Notify != nil {
			p.Notify(attempt+1, p.Retries, delay, err)
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retriable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
