package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/llm"
	"github.com/craftedsys/durable/retry"
)

const opportunitiesValidationPrompt = `Validate this opportunities analysis for semantic correctness.

Data: %s

IMPORTANT CONTEXT:
- win_rate is calculated as VALUE-BASED, not count-based: win_rate = won_value / total_pipeline_value
- This means win_rate represents the percentage of revenue won, not the percentage of opportunities won
- For example: if won_value=$80,000 and total_pipeline_value=$130,000, then win_rate=0.6154 (61.54%%)
- Do NOT expect win_rate to equal (number of Closed Won opportunities) / (total opportunities)

Check for:
1. Hallucinated or nonsensical values (e.g., impossible company names, weird numbers)
2. Semantic inconsistencies (e.g., distributions don't match totals)
3. win_rate should equal won_value / total_pipeline_value (value-based calculation)

The data already passed basic checks (fields exist, no negatives, rates are 0-1).
Focus ONLY on semantic/logical issues an LLM might introduce.

Return passed=true if semantically valid, passed=false if you detect hallucinations.`

var validationOutcomeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"passed": map[string]any{"type": "boolean"},
		"reason": map[string]any{"type": "string"},
	},
	"required": []string{"passed", "reason"},
}

var requiredFields = map[string][]string{
	analysisTypeContacts: {
		"total_contacts", "unique_companies", "top_company",
		"companies_distribution", "unique_titles",
	},
	analysisTypeOpportunities: {
		"total_opportunities", "total_pipeline_value", "won_value",
		"stages_breakdown", "win_rate",
	},
}

// validateAnalysis is the hybrid validation gate: deterministic checks
// first, then a model-based semantic pass for opportunities only.
// Contacts short-circuit once cross-referencing against the source data
// succeeds, since every reported count has already been verified.
func (p *Pipeline) validateAnalysis(ctx context.Context, args []json.RawMessage) (any, error) {
	var (
		analysisType string
		analysis     json.RawMessage
		sourceFile   string
	)
	if err := activity.Decode(args, &analysisType, &analysis, &sourceFile); err != nil {
		return nil, retry.Permanent(err)
	}
	if analysisType != analysisTypeContacts && analysisType != analysisTypeOpportunities {
		return nil, retry.Permanent(fmt.Errorf("unknown analysis type %q", analysisType))
	}
	p.logger.Info("validating analysis", slog.String("type", analysisType))

	var rows []map[string]string
	if sourceFile != "" {
		if _, err := os.Stat(sourceFile); err == nil {
			rows, err = readRows(sourceFile)
			if err != nil {
				return nil, retry.Permanent(err)
			}
		}
	}

	outcome, err := deterministicValidate(analysisType, analysis, rows)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if !outcome.Passed {
		// Fail fast before spending a model call.
		return outcome, nil
	}

	if analysisType == analysisTypeContacts {
		return ValidationOutcome{
			Passed: true,
			Reason: "Deterministic validation passed - all counts verified against source data",
		}, nil
	}

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode analysis: %w", err))
	}

	out, err := p.llm.GenerateJSON(ctx, llm.Request{
		Instructions: "You are a data quality validator. Check for semantic issues and hallucinations.",
		Prompt:       fmt.Sprintf(opportunitiesValidationPrompt, data),
		SchemaName:   "validation_outcome",
		Schema:       validationOutcomeSchema,
	})
	if err != nil {
		return nil, err
	}

	var semantic ValidationOutcome
	if err := json.Unmarshal(out, &semantic); err != nil {
		return nil, retry.Transient(fmt.Errorf("decode validation outcome: %w", err))
	}
	return semantic, nil
}

// deterministicValidate runs the fast structural checks: required
// fields, value ranges, internal consistency, and cross-referencing
// reported counts against the source rows when available.
func deterministicValidate(analysisType string, analysis json.RawMessage, rows []map[string]string) (ValidationOutcome, error) {
	var fields map[string]any
	if err := json.Unmarshal(analysis, &fields); err != nil {
		return ValidationOutcome{}, fmt.Errorf("decode %s analysis: %w", analysisType, err)
	}

	var missing []string
	for _, name := range requiredFields[analysisType] {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fail("Missing fields: " + strings.Join(missing, ", ")), nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n, ok := fields[name].(float64)
		if !ok || strings.Contains(strings.ToLower(name), "rate") {
			continue
		}
		if n < 0 {
			return fail(fmt.Sprintf("Negative value for %s: %v", name, fields[name])), nil
		}
	}
	for _, name := range names {
		n, ok := fields[name].(float64)
		if !ok || !strings.Contains(strings.ToLower(name), "rate") {
			continue
		}
		if n < 0 || n > 1 {
			return fail(fmt.Sprintf("Invalid rate %s: %v", name, fields[name])), nil
		}
	}

	switch analysisType {
	case analysisTypeContacts:
		var c ContactAnalysis
		if err := json.Unmarshal(analysis, &c); err != nil {
			return ValidationOutcome{}, fmt.Errorf("decode contact analysis: %w", err)
		}
		return validateContacts(c, rows), nil
	case analysisTypeOpportunities:
		var o OpportunityAnalysis
		if err := json.Unmarshal(analysis, &o); err != nil {
			return ValidationOutcome{}, fmt.Errorf("decode opportunity analysis: %w", err)
		}
		return validateOpportunities(o), nil
	}
	return pass(), nil
}

func validateContacts(c ContactAnalysis, rows []map[string]string) ValidationOutcome {
	if c.TotalContacts < c.UniqueCompanies {
		return fail("total_contacts < unique_companies")
	}

	if rows != nil {
		actualTotal := len(rows)
		actualCompanies := countUnique(rows, "company")
		actualTitles := countUnique(rows, "title")

		if c.TotalContacts != actualTotal {
			return fail(fmt.Sprintf("total_contacts mismatch: reported %d, actual %d", c.TotalContacts, actualTotal))
		}
		if c.UniqueCompanies != actualCompanies {
			return fail(fmt.Sprintf("unique_companies mismatch: reported %d, actual %d", c.UniqueCompanies, actualCompanies))
		}
		if c.UniqueTitles != actualTitles {
			return fail(fmt.Sprintf("unique_titles mismatch: reported %d, actual %d", c.UniqueTitles, actualTitles))
		}

		distSum := 0
		for _, count := range c.CompaniesDistribution {
			distSum += count
		}
		if distSum != actualTotal {
			return fail(fmt.Sprintf("companies_distribution sum (%d) doesn't match total_contacts (%d)", distSum, actualTotal))
		}
	}
	return pass()
}

func validateOpportunities(o OpportunityAnalysis) ValidationOutcome {
	if o.WonValue > o.TotalPipelineValue {
		return fail("won_value > total_pipeline_value")
	}
	return pass()
}

func pass() ValidationOutcome {
	return ValidationOutcome{Passed: true, Reason: "Deterministic checks passed"}
}

func fail(reason string) ValidationOutcome {
	return ValidationOutcome{Passed: false, Reason: reason}
}
