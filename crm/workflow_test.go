package crm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/engine"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/llm"
	"github.com/craftedsys/durable/retry"
	"github.com/craftedsys/durable/store/memory"
)

func newTestRunner(t *testing.T, model llm.Client) (*engine.Runner, *memory.Store) {
	t.Helper()
	s := memory.New()
	workflows := engine.NewRegistry()
	activities := activity.NewRegistry()

	p := NewPipeline(model, WithLogger(testLogger()))
	p.Register(workflows, activities)

	runner := engine.NewRunner(workflows, activities, s,
		engine.WithLogger(testLogger()),
		engine.WithEmitter(engine.NopEmitter{}),
	)
	return runner, s
}

func testParams(t *testing.T) Params {
	t.Helper()
	return Params{
		ContactsFile:      writeFile(t, "contacts.csv", contactsCSV),
		OpportunitiesFile: writeFile(t, "opportunities.csv", opportunitiesCSV),
	}
}

// respondWith answers each schema with a canned payload.
func respondWith(t *testing.T, contacts ContactAnalysis, opportunities OpportunityAnalysis, validation ValidationOutcome) func(llm.Request) ([]byte, error) {
	t.Helper()
	return func(req llm.Request) ([]byte, error) {
		switch req.SchemaName {
		case "contact_analysis":
			return mustJSON(t, contacts), nil
		case "opportunity_analysis":
			return mustJSON(t, opportunities), nil
		case "validation_outcome":
			return mustJSON(t, validation), nil
		}
		return nil, errors.New("unexpected schema " + req.SchemaName)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	reported := validContacts()
	reported.UniqueTitles = 2 // model miscount, must be overridden from the data

	model := &fakeLLM{respond: respondWith(t, reported, validOpportunities(),
		ValidationOutcome{Passed: true, Reason: "Semantically valid"})}
	runner, _ := newTestRunner(t, model)

	result := Execute(context.Background(), runner, testParams(t))

	require.False(t, result.Failed(), "unexpected failure: %s / %s", result.Error, result.Reason)
	report := result.Report
	require.NotNil(t, report)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, 5, report.CRMSummary.Contacts.UniqueTitles, "title count comes from the data, not the model")
	assert.Equal(t, []string{
		"Managing 5 contacts across 3 companies",
		"Top customer: Acme (3 contacts)",
		"Pipeline value: $130,000 across 4 opportunities",
		"Closed revenue: $80,000 (Win rate: 61.5%)",
	}, report.KeyInsights)

	// Two analyses plus the opportunities semantic validation. The
	// contacts validation and the combine step never touch the model.
	assert.Equal(t, 3, model.callCount())
}

func TestPipeline_ContactValidationFailFast(t *testing.T) {
	reported := validContacts()
	reported.TotalContacts = 6 // source data has 5 rows
	reported.CompaniesDistribution["Acme"] = 4

	model := &fakeLLM{respond: respondWith(t, reported, validOpportunities(),
		ValidationOutcome{Passed: true, Reason: "Semantically valid"})}
	runner, s := newTestRunner(t, model)

	run, err := engine.Start(context.Background(), runner, WorkflowName, testParams(t))
	require.NoError(t, err)
	require.Equal(t, history.RunStateCompleted, run.State)

	result := ShapeRun(run)
	assert.True(t, result.Failed())
	assert.Equal(t, "Contact analysis validation failed", result.Error)
	assert.Equal(t, "total_contacts mismatch: reported 6, actual 5", result.Reason)

	// Neither the opportunities validation nor the combine step was
	// ever scheduled.
	entries, err := s.ListEntries(context.Background(), run.ID)
	require.NoError(t, err)
	validations := 0
	for _, e := range entries {
		assert.NotEqual(t, ActivityCombineAnalysis, e.Activity)
		if e.Activity == ActivityValidateAnalysis {
			validations++
		}
	}
	assert.Equal(t, 1, validations)
}

func TestPipeline_OpportunityValidationFailure(t *testing.T) {
	model := &fakeLLM{respond: respondWith(t, validContacts(), validOpportunities(),
		ValidationOutcome{Passed: false, Reason: "win_rate inconsistent with values"})}
	runner, _ := newTestRunner(t, model)

	result := Execute(context.Background(), runner, testParams(t))

	assert.True(t, result.Failed())
	assert.Equal(t, "Opportunity analysis validation failed", result.Error)
	assert.Equal(t, "win_rate inconsistent with values", result.Reason)
}

func TestPipeline_ModelFailureShapedAsError(t *testing.T) {
	model := &fakeLLM{respond: func(llm.Request) ([]byte, error) {
		return nil, retry.Transient(errors.New("rate limited"))
	}}
	runner, _ := newTestRunner(t, model)

	result := Execute(context.Background(), runner, testParams(t))

	assert.True(t, result.Failed())
	assert.Equal(t, "Workflow execution failed", result.Error)
	assert.Contains(t, result.Reason, "rate limited")
}

func TestPipeline_MissingContactsFileIsPermanent(t *testing.T) {
	model := &fakeLLM{respond: respondWith(t, validContacts(), validOpportunities(),
		ValidationOutcome{Passed: true, Reason: "Semantically valid"})}
	runner, _ := newTestRunner(t, model)

	params := testParams(t)
	params.ContactsFile = "/nonexistent/contacts.csv"

	result := Execute(context.Background(), runner, params)

	assert.True(t, result.Failed())
	assert.Equal(t, "Workflow execution failed", result.Error)
	assert.Contains(t, result.Reason, "contacts.csv")
}

func TestResult_MarshalJSON(t *testing.T) {
	failed := &Result{Error: "Contact analysis validation failed", Reason: "total mismatch"}
	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Contact analysis validation failed","reason":"total mismatch"}`, string(data))

	report := BuildReport(validContacts(), validOpportunities())
	ok := &Result{Report: &report}
	data, err = json.Marshal(ok)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StatusCompleted, decoded.Status)
}
