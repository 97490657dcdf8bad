package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildReport(t *testing.T) {
	contacts := ContactAnalysis{
		TotalContacts:   5,
		UniqueCompanies: 3,
		UniqueTitles:    5,
		TopCompany:      TopCompany{Name: "Acme", Count: 3},
		CompaniesDistribution: map[string]int{
			"Acme": 3, "Beta": 1, "Gamma": 1,
		},
	}
	opportunities := OpportunityAnalysis{
		TotalOpportunities: 4,
		TotalPipelineValue: 130000,
		WonValue:           80000,
		WinRate:            0.6154,
	}

	report := BuildReport(contacts, opportunities)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, contacts, report.CRMSummary.Contacts)
	assert.Equal(t, opportunities, report.CRMSummary.Opportunities)
	assert.Equal(t, []string{
		"Managing 5 contacts across 3 companies",
		"Top customer: Acme (3 contacts)",
		"Pipeline value: $130,000 across 4 opportunities",
		"Closed revenue: $80,000 (Win rate: 61.5%)",
	}, report.KeyInsights)
}

func TestBuildReport_LargeValues(t *testing.T) {
	report := BuildReport(
		ContactAnalysis{TotalContacts: 1200, UniqueCompanies: 40, TopCompany: TopCompany{Name: "Initech", Count: 310}},
		OpportunityAnalysis{TotalOpportunities: 87, TotalPipelineValue: 2450000, WonValue: 1000000, WinRate: 0.40816},
	)

	assert.Contains(t, report.KeyInsights, "Pipeline value: $2,450,000 across 87 opportunities")
	assert.Contains(t, report.KeyInsights, "Closed revenue: $1,000,000 (Win rate: 40.8%)")
}
