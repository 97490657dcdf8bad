package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/llm"
	"github.com/craftedsys/durable/retry"
)

const contactsPrompt = `Analyze this CRM contacts data:

%s

Extract:
- total_contacts: total number of contacts (count all rows)
- unique_companies: number of unique companies (count distinct company values)
- top_company: company with most contacts (name and count)
- companies_distribution: all companies with their contact counts (dict of company_name: count)
- unique_titles: number of unique job titles (count distinct title values - be careful to count each unique title exactly once)

IMPORTANT: Count unique_titles by examining each distinct title value in the data. Do not skip any titles.`

const opportunitiesPrompt = `Analyze this CRM opportunities data:

%s

Extract:
- total_opportunities: total number of opportunities
- total_pipeline_value: sum of all amounts
- won_value: sum of amounts where stage is "Closed Won"
- stages_breakdown: all stages with their opportunity counts
- win_rate: won_value / total_pipeline_value (between 0 and 1)`

var contactAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"total_contacts":   map[string]any{"type": "integer"},
		"unique_companies": map[string]any{"type": "integer"},
		"top_company": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer"},
			},
			"required": []string{"name", "count"},
		},
		"companies_distribution": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "integer"},
		},
		"unique_titles": map[string]any{"type": "integer"},
	},
	"required": []string{
		"total_contacts", "unique_companies", "top_company",
		"companies_distribution", "unique_titles",
	},
}

var opportunityAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"total_opportunities":  map[string]any{"type": "integer"},
		"total_pipeline_value": map[string]any{"type": "number"},
		"won_value":            map[string]any{"type": "number"},
		"stages_breakdown": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "integer"},
		},
		"win_rate": map[string]any{"type": "number"},
	},
	"required": []string{
		"total_opportunities", "total_pipeline_value", "won_value",
		"stages_breakdown", "win_rate",
	},
}

func (p *Pipeline) analyzeContacts(ctx context.Context, args []json.RawMessage) (any, error) {
	var file string
	if err := activity.Decode(args, &file); err != nil {
		return nil, retry.Permanent(err)
	}
	p.logger.Info("analyzing contacts", slog.String("file", file))

	rows, err := readRows(file)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	// The title count is computed from the data, not the model; model
	// counting drifts on long lists.
	uniqueTitles := countUnique(rows, "title")

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode contacts: %w", err))
	}

	out, err := p.llm.GenerateJSON(ctx, llm.Request{
		Instructions: "You are a CRM data analyst. Analyze contact data and extract key insights.",
		Prompt:       fmt.Sprintf(contactsPrompt, data),
		SchemaName:   "contact_analysis",
		Schema:       contactAnalysisSchema,
	})
	if err != nil {
		return nil, err
	}

	var analysis ContactAnalysis
	if err := json.Unmarshal(out, &analysis); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode contact analysis: %w", err))
	}

	analysis.UniqueTitles = uniqueTitles
	return analysis, nil
}

func (p *Pipeline) analyzeOpportunities(ctx context.Context, args []json.RawMessage) (any, error) {
	var file string
	if err := activity.Decode(args, &file); err != nil {
		return nil, retry.Permanent(err)
	}
	p.logger.Info("analyzing opportunities", slog.String("file", file))

	rows, err := readRows(file)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode opportunities: %w", err))
	}

	out, err := p.llm.GenerateJSON(ctx, llm.Request{
		Instructions: "You are a sales pipeline analyst. Analyze opportunity data and extract revenue insights.",
		Prompt:       fmt.Sprintf(opportunitiesPrompt, data),
		SchemaName:   "opportunity_analysis",
		Schema:       opportunityAnalysisSchema,
	})
	if err != nil {
		return nil, err
	}

	var analysis OpportunityAnalysis
	if err := json.Unmarshal(out, &analysis); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode opportunity analysis: %w", err))
	}
	return analysis, nil
}
