// Package retry evaluates per-activity retry policy. A Policy bounds the
// attempt count and names the backoff strategy; Evaluate decides, for a
// classified failure, whether another attempt is allowed and how long to
// wait before it.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/craftedsys/durable/backoff"
)

// Class classifies an activity failure for retry purposes.
type Class string

const (
	// ClassTransient marks failures worth retrying: network errors,
	// timeouts, rate limits. Unclassified errors default to transient.
	ClassTransient Class = "transient"
	// ClassPermanent marks failures that retrying cannot fix: malformed
	// input, schema violations. Never retried.
	ClassPermanent Class = "permanent"
)

// classifiedError tags an error with a failure class.
type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) Unwrap() error { return e.err }

// Transient wraps err as a transient failure. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTransient, err: err}
}

// Permanent wraps err as a permanent failure. Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassPermanent, err: err}
}

// ClassOf returns the failure class of err. Errors that carry no explicit
// class are treated as transient, matching the policy that only failures
// an activity explicitly marks permanent skip the retry loop. Context
// cancellation and deadline expiry are transient: the deadline belongs to
// one attempt, not to the whole invocation.
func ClassOf(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassTransient
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool {
	return ClassOf(err) == ClassPermanent
}

// Policy bounds retries for one scheduled activity.
type Policy struct {
	// MaxAttempts is the total number of attempts allowed, including
	// the first. Zero or negative means a single attempt.
	MaxAttempts int

	// Backoff computes the delay before each retry. Nil means no delay.
	Backoff backoff.Strategy
}

// DefaultPolicy allows a single attempt with no backoff.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 1, Backoff: backoff.DefaultStrategy()}
}

// Decision is the outcome of evaluating a failure against a policy.
type Decision struct {
	// Retry reports whether another attempt is allowed.
	Retry bool

	// Delay is how long to wait before the next attempt. Zero when
	// Retry is false.
	Delay time.Duration
}

// Evaluate decides whether the failure of the given attempt (1-indexed)
// warrants another try. Permanent failures and cancellation of the
// workflow itself are never retried; transient failures retry while
// attempts remain, waiting Backoff.Delay(attempt).
func (p Policy) Evaluate(attempt int, err error) Decision {
	if err == nil {
		return Decision{}
	}
	if IsPermanent(err) {
		return Decision{}
	}
	// A cancelled parent context means the run is shutting down, not
	// that the attempt timed out.
	if errors.Is(err, context.Canceled) {
		return Decision{}
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return Decision{}
	}

	var delay time.Duration
	if p.Backoff != nil {
		delay = p.Backoff.Delay(attempt)
	}
	return Decision{Retry: true, Delay: delay}
}
