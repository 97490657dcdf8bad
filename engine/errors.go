package engine

import (
	"fmt"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/retry"
)

// ActivityError is returned to workflow definitions when a scheduled
// activity fails terminally: either its failure was permanent or its
// retry budget is spent. The underlying failure is available via Unwrap.
type ActivityError struct {
	// Activity is the registered activity name.
	Activity string

	// Key is the history position key of the invocation.
	Key string

	// Attempts is the total number of attempts recorded, across process
	// restarts.
	Attempts int

	// Class is the failure class of the final attempt.
	Class retry.Class

	// Exhausted is true when the retry budget ran out, false when the
	// failure was permanent and retrying was never an option.
	Exhausted bool

	// Err is the final attempt's error.
	Err error
}

func (e *ActivityError) Error() string {
	switch {
	case e.Exhausted:
		return fmt.Sprintf("activity %s failed after %d attempts: %v", e.Activity, e.Attempts, e.Err)
	case e.Class == retry.ClassPermanent:
		return fmt.Sprintf("activity %s failed permanently: %v", e.Activity, e.Err)
	}
	return fmt.Sprintf("activity %s failed: %v", e.Activity, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, durable.ErrAttemptsExhausted) match exhausted
// activity errors without unwrapping the concrete type.
func (e *ActivityError) Is(target error) bool {
	return target == durable.ErrAttemptsExhausted && e.Exhausted
}
