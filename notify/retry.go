// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultAttemptTimeout = 5 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ClockSleep returns a SleepFunc waiting on clock.
func ClockSleep(clock quartz.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		t := clock.NewTimer(d, "retry")
		defer t.Stop()
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-t.C:
			return nil
		}
	}
}

// Sleep waits on the wall clock.
var Sleep = ClockSleep(quartz.NewReal())

// RetryPolicy bounds delivery attempts to a single channel. Delays between
// attempts grow exponentially from Base, capped at Max. Every attempt runs
// with its own timeout.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts    int
	Base           time.Duration
	Max            time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration

	sleep SleepFunc
}

// NewRetryPolicy returns a policy using the defaults for every zero value.
// Unless WithSleep is used, the policy waits on the clock of the Router it is
// given to.
func NewRetryPolicy(maxAttempts int, base, maxDelay, attemptTimeout time.Duration) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts:    maxAttempts,
		Base:           base,
		Max:            maxDelay,
		Multiplier:     2,
		AttemptTimeout: attemptTimeout,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.Max <= 0 {
		p.Max = DefaultBackoffMax
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	return p
}

// WithSleep returns a copy of the policy waiting through fn.
func (p *RetryPolicy) WithSleep(fn SleepFunc) *RetryPolicy {
	c := *p
	c.sleep = fn
	return &c
}

// Delays returns the waits that precede attempts 2 to MaxAttempts.
func (p *RetryPolicy) Delays() []time.Duration {
	b := p.backOff()
	res := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		res = append(res, b.NextBackOff())
	}
	return res
}

func (p *RetryPolicy) backOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.Base),
		backoff.WithMaxInterval(p.Max),
		backoff.WithMultiplier(p.Multiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

// AttemptFunc performs the attempt with the given 1-based number. A failed
// attempt reports whether it may be retried.
type AttemptFunc func(ctx context.Context, attempt int) (retry bool, err error)

// Do runs fn until it succeeds, reports a non-retryable error, the attempts
// are exhausted or ctx is done. It returns the number of attempts made and
// the last error.
func (p *RetryPolicy) Do(ctx context.Context, fn AttemptFunc) (int, error) {
	sleep := p.sleep
	if sleep == nil {
		sleep = Sleep
	}
	b := p.backOff()
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeoutCause(ctx, p.AttemptTimeout,
			fmt.Errorf("attempt timeout reached (%s)", p.AttemptTimeout))
		retry, err := fn(actx, attempt)
		if err != nil && actx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", err, context.Cause(actx))
			retry = true
		}
		cancel()

		if err == nil {
			return attempt, nil
		}
		if !retry || attempt >= p.MaxAttempts {
			return attempt, err
		}
		if serr := sleep(ctx, b.NextBackOff()); serr != nil {
			return attempt, err
		}
	}
}
