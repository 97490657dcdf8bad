package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftedsys/durable/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLLM records requests and answers them via a configurable
// function.
type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(req llm.Request) ([]byte, error)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, req llm.Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const contactsCSV = `name,company,title
Alice,Acme,CEO
Bob,Acme,CTO
Carol,Acme,Engineer
Dan,Beta,Designer
Eve,Gamma,Analyst
`

const opportunitiesCSV = `name,stage,amount
Deal A,Closed Won,50000
Deal B,Closed Won,30000
Deal C,Negotiation,20000
Deal D,Prospecting,30000
`

func validContacts() ContactAnalysis {
	return ContactAnalysis{
		TotalContacts:   5,
		UniqueCompanies: 3,
		UniqueTitles:    5,
		TopCompany:      TopCompany{Name: "Acme", Count: 3},
		CompaniesDistribution: map[string]int{
			"Acme": 3, "Beta": 1, "Gamma": 1,
		},
	}
}

func validOpportunities() OpportunityAnalysis {
	return OpportunityAnalysis{
		TotalOpportunities: 4,
		TotalPipelineValue: 130000,
		WonValue:           80000,
		WinRate:            0.6154,
		StagesBreakdown: map[string]int{
			"Closed Won": 2, "Negotiation": 1, "Prospecting": 1,
		},
	}
}

func TestDeterministicValidate_Contacts(t *testing.T) {
	rows := []map[string]string{
		{"name": "Alice", "company": "Acme", "title": "CEO"},
		{"name": "Bob", "company": "Acme", "title": "CTO"},
		{"name": "Carol", "company": "Acme", "title": "Engineer"},
		{"name": "Dan", "company": "Beta", "title": "Designer"},
		{"name": "Eve", "company": "Gamma", "title": "Analyst"},
	}

	tests := []struct {
		name       string
		mutate     func(c *ContactAnalysis)
		wantPassed bool
		wantReason string
	}{
		{
			name:       "valid analysis passes",
			mutate:     func(*ContactAnalysis) {},
			wantPassed: true,
			wantReason: "Deterministic checks passed",
		},
		{
			name:       "total mismatch against source",
			mutate:     func(c *ContactAnalysis) { c.TotalContacts = 6; c.CompaniesDistribution["Acme"] = 4 },
			wantPassed: false,
			wantReason: "total_contacts mismatch: reported 6, actual 5",
		},
		{
			name:       "unique companies mismatch",
			mutate:     func(c *ContactAnalysis) { c.UniqueCompanies = 4 },
			wantPassed: false,
			wantReason: "unique_companies mismatch: reported 4, actual 3",
		},
		{
			name:       "unique titles mismatch",
			mutate:     func(c *ContactAnalysis) { c.UniqueTitles = 3 },
			wantPassed: false,
			wantReason: "unique_titles mismatch: reported 3, actual 5",
		},
		{
			name:       "distribution sum mismatch",
			mutate:     func(c *ContactAnalysis) { c.CompaniesDistribution["Acme"] = 2 },
			wantPassed: false,
			wantReason: "companies_distribution sum (4) doesn't match total_contacts (5)",
		},
		{
			name: "total below unique companies",
			mutate: func(c *ContactAnalysis) {
				c.TotalContacts = 2
				c.UniqueCompanies = 3
			},
			wantPassed: false,
			wantReason: "total_contacts < unique_companies",
		},
		{
			name:       "negative count",
			mutate:     func(c *ContactAnalysis) { c.TotalContacts = -1 },
			wantPassed: false,
			wantReason: "Negative value for total_contacts: -1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validContacts()
			tt.mutate(&c)

			outcome, err := deterministicValidate(analysisTypeContacts, mustJSON(t, c), rows)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, outcome.Passed)
			assert.Equal(t, tt.wantReason, outcome.Reason)
		})
	}
}

func TestDeterministicValidate_Opportunities(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(o *OpportunityAnalysis)
		wantPassed bool
		wantReason string
	}{
		{
			name:       "valid analysis passes",
			mutate:     func(*OpportunityAnalysis) {},
			wantPassed: true,
			wantReason: "Deterministic checks passed",
		},
		{
			name:       "won exceeds pipeline",
			mutate:     func(o *OpportunityAnalysis) { o.WonValue = 200000 },
			wantPassed: false,
			wantReason: "won_value > total_pipeline_value",
		},
		{
			name:       "rate above one",
			mutate:     func(o *OpportunityAnalysis) { o.WinRate = 1.5 },
			wantPassed: false,
			wantReason: "Invalid rate win_rate: 1.5",
		},
		{
			name:       "negative value",
			mutate:     func(o *OpportunityAnalysis) { o.WonValue = -5 },
			wantPassed: false,
			wantReason: "Negative value for won_value: -5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOpportunities()
			tt.mutate(&o)

			outcome, err := deterministicValidate(analysisTypeOpportunities, mustJSON(t, o), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, outcome.Passed)
			assert.Equal(t, tt.wantReason, outcome.Reason)
		})
	}
}

func TestDeterministicValidate_MissingFields(t *testing.T) {
	outcome, err := deterministicValidate(analysisTypeContacts,
		json.RawMessage(`{"total_contacts": 5}`), nil)
	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.Equal(t, "Missing fields: unique_companies, top_company, companies_distribution, unique_titles", outcome.Reason)
}

func TestValidateAnalysis_ContactsSkipsModel(t *testing.T) {
	model := &fakeLLM{respond: func(llm.Request) ([]byte, error) {
		return nil, errors.New("should not be called")
	}}
	p := NewPipeline(model, WithLogger(testLogger()))
	file := writeFile(t, "contacts.csv", contactsCSV)

	out, err := p.validateAnalysis(context.Background(), []json.RawMessage{
		mustJSON(t, analysisTypeContacts),
		mustJSON(t, validContacts()),
		mustJSON(t, file),
	})
	require.NoError(t, err)

	outcome := out.(ValidationOutcome)
	assert.True(t, outcome.Passed)
	assert.Equal(t, "Deterministic validation passed - all counts verified against source data", outcome.Reason)
	assert.Zero(t, model.callCount())
}

func TestValidateAnalysis_OpportunitiesUsesModel(t *testing.T) {
	model := &fakeLLM{respond: func(req llm.Request) ([]byte, error) {
		return mustJSON(t, ValidationOutcome{Passed: false, Reason: "win_rate does not match won_value / total_pipeline_value"}), nil
	}}
	p := NewPipeline(model, WithLogger(testLogger()))
	file := writeFile(t, "opportunities.csv", opportunitiesCSV)

	out, err := p.validateAnalysis(context.Background(), []json.RawMessage{
		mustJSON(t, analysisTypeOpportunities),
		mustJSON(t, validOpportunities()),
		mustJSON(t, file),
	})
	require.NoError(t, err)

	outcome := out.(ValidationOutcome)
	assert.False(t, outcome.Passed)
	assert.Equal(t, "win_rate does not match won_value / total_pipeline_value", outcome.Reason)
	assert.Equal(t, 1, model.callCount())
	assert.Contains(t, model.requests[0].Prompt, "VALUE-BASED")
}

func TestValidateAnalysis_FailFastBeforeModel(t *testing.T) {
	model := &fakeLLM{respond: func(llm.Request) ([]byte, error) {
		return nil, errors.New("should not be called")
	}}
	p := NewPipeline(model, WithLogger(testLogger()))

	o := validOpportunities()
	o.WonValue = 200000

	out, err := p.validateAnalysis(context.Background(), []json.RawMessage{
		mustJSON(t, analysisTypeOpportunities),
		mustJSON(t, o),
		mustJSON(t, ""),
	})
	require.NoError(t, err)

	outcome := out.(ValidationOutcome)
	assert.False(t, outcome.Passed)
	assert.Zero(t, model.callCount())
}

func TestValidateAnalysis_UnknownType(t *testing.T) {
	p := NewPipeline(&fakeLLM{}, WithLogger(testLogger()))

	_, err := p.validateAnalysis(context.Background(), []json.RawMessage{
		mustJSON(t, "accounts"),
		mustJSON(t, validContacts()),
		mustJSON(t, ""),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown analysis type")
}
