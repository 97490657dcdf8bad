package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/craftedsys/durable/engine"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/retry"
)

// Per-step budgets. Analyses get a long timeout because model calls
// over full datasets are slow; the combine step gets an extra attempt
// because it is pure and cheap to retry.
var (
	analysisOptions = engine.Options{
		Timeout: 2 * time.Minute,
		Retry:   retry.Policy{MaxAttempts: 2},
	}
	validationOptions = engine.Options{
		Timeout: 30 * time.Second,
		Retry:   retry.Policy{MaxAttempts: 2},
	}
	combineOptions = engine.Options{
		Timeout: 30 * time.Second,
		Retry:   retry.Policy{MaxAttempts: 3},
	}
)

// terminalError is the workflow's terminal payload when a validation
// gate rejects an analysis. A business rejection completes the run; it
// is not an infrastructure failure.
type terminalError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// run is the deterministic pipeline definition. Both analyses fan out
// in parallel; validations are issued in declaration order, contacts
// first, regardless of which analysis finished first.
func (p *Pipeline) run(c *engine.Context, params Params) (any, error) {
	results, err := c.ScheduleParallel(
		engine.Call{Activity: ActivityAnalyzeContacts, Args: []any{params.ContactsFile}, Opts: analysisOptions},
		engine.Call{Activity: ActivityAnalyzeOpportunities, Args: []any{params.OpportunitiesFile}, Opts: analysisOptions},
	)
	if err != nil {
		return nil, err
	}

	var contacts ContactAnalysis
	if err := json.Unmarshal(results[0], &contacts); err != nil {
		return nil, fmt.Errorf("decode contact analysis: %w", err)
	}
	var opportunities OpportunityAnalysis
	if err := json.Unmarshal(results[1], &opportunities); err != nil {
		return nil, fmt.Errorf("decode opportunity analysis: %w", err)
	}

	contactValidation, err := engine.Schedule[ValidationOutcome](
		c, ActivityValidateAnalysis, validationOptions,
		analysisTypeContacts, contacts, params.ContactsFile,
	)
	if err != nil {
		return nil, err
	}
	if !contactValidation.Passed {
		return terminalError{
			Error:  "Contact analysis validation failed",
			Reason: contactValidation.Reason,
		}, nil
	}

	oppValidation, err := engine.Schedule[ValidationOutcome](
		c, ActivityValidateAnalysis, validationOptions,
		analysisTypeOpportunities, opportunities, params.OpportunitiesFile,
	)
	if err != nil {
		return nil, err
	}
	if !oppValidation.Passed {
		return terminalError{
			Error:  "Opportunity analysis validation failed",
			Reason: oppValidation.Reason,
		}, nil
	}

	return engine.Schedule[Report](
		c, ActivityCombineAnalysis, combineOptions,
		contacts, opportunities,
	)
}

// Result is the shaped terminal payload of one pipeline run. Exactly
// one of Report and Error is set.
type Result struct {
	Report *Report
	Error  string
	Reason string
}

// Failed reports whether the run ended with an error payload, either a
// validation rejection or an infrastructure failure.
func (r *Result) Failed() bool { return r.Error != "" }

// MarshalJSON renders the terminal payload in its wire shape: the
// report object on success, {error, reason} otherwise.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(terminalError{Error: r.Error, Reason: r.Reason})
	}
	return json.Marshal(r.Report)
}

// Execute starts a pipeline run and shapes its terminal state into a
// Result. Callers never see a raw error: exhausted retries and
// validation rejections both come back as {error, reason}, telling
// them apart only by the reason text.
func Execute(ctx context.Context, runner *engine.Runner, params Params) *Result {
	run, err := engine.Start(ctx, runner, WorkflowName, params)
	if err != nil {
		return &Result{Error: "Workflow execution failed", Reason: err.Error()}
	}
	return shapeResult(run)
}

// ShapeRun converts a terminal run into a Result, for callers that
// resumed a run instead of starting one.
func ShapeRun(run *history.Run) *Result {
	return shapeResult(run)
}

func shapeResult(run *history.Run) *Result {
	if run.State == history.RunStateFailed {
		return &Result{Error: "Workflow execution failed", Reason: run.Error}
	}

	var terminal terminalError
	if err := json.Unmarshal(run.Output, &terminal); err == nil && terminal.Error != "" {
		return &Result{Error: terminal.Error, Reason: terminal.Reason}
	}

	var report Report
	if err := json.Unmarshal(run.Output, &report); err != nil {
		return &Result{Error: "Workflow execution failed", Reason: fmt.Sprintf("decode report: %v", err)}
	}
	return &Result{Report: &report}
}
