// Package engine orchestrates durable workflow runs. A workflow
// definition is ordinary Go code that schedules activities through a
// [Context]; the engine records every attempt in the run's history and
// replays completed invocations from the log instead of re-executing
// them.
//
// Workflows survive process restarts. On resume the definition re-runs
// from the top, but each scheduling call first consults the history: a
// completed invocation returns its recorded result immediately, so only
// the step that was in flight at the crash actually executes again.
//
// # Defining a Workflow
//
//	var Analyze = engine.NewWorkflow("analyze",
//	    func(c *engine.Context, input Input) (any, error) {
//	        report, err := engine.Schedule[Report](c, "build_report",
//	            engine.Options{Timeout: 2 * time.Minute}, input.File)
//	        if err != nil {
//	            return nil, err
//	        }
//	        return report, nil
//	    },
//	)
//
// # Determinism
//
// Definitions must be deterministic: given the same input they must
// schedule the same activities with the same arguments in the same
// order. Every scheduling call consumes a sequence number in issue
// order and records a digest of its arguments; replay verifies the
// digest and fails the run with durable.ErrHistoryCorrupt when a
// definition diverges from its own history.
//
// # Key Types
//
//   - [Definition] — typed workflow descriptor with Name and Handler
//   - [Context] — scheduling surface handed to definitions
//   - [Runner] — starts, resumes, and crash-recovers runs
//   - [Options] — per-invocation timeout and retry policy
package engine
