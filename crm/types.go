package crm

// TopCompany identifies the company with the most contacts.
type TopCompany struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ContactAnalysis is the structured result of the contacts analysis.
type ContactAnalysis struct {
	TotalContacts         int            `json:"total_contacts"`
	UniqueCompanies       int            `json:"unique_companies"`
	TopCompany            TopCompany     `json:"top_company"`
	CompaniesDistribution map[string]int `json:"companies_distribution"`
	UniqueTitles          int            `json:"unique_titles"`
}

// OpportunityAnalysis is the structured result of the opportunities
// analysis. WinRate is value based: won value over total pipeline
// value, not won count over opportunity count.
type OpportunityAnalysis struct {
	TotalOpportunities int            `json:"total_opportunities"`
	TotalPipelineValue float64        `json:"total_pipeline_value"`
	WonValue           float64        `json:"won_value"`
	StagesBreakdown    map[string]int `json:"stages_breakdown"`
	WinRate            float64        `json:"win_rate"`
}

// ValidationOutcome is a first-class pass/fail decision with a
// human-readable reason. A failed outcome is a business result, not an
// activity failure, and is never retried.
type ValidationOutcome struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Summary groups both analyses in the final report.
type Summary struct {
	Contacts      ContactAnalysis     `json:"contacts"`
	Opportunities OpportunityAnalysis `json:"opportunities"`
}

// Report is the pipeline's terminal success payload.
type Report struct {
	CRMSummary  Summary  `json:"crm_summary"`
	KeyInsights []string `json:"key_insights"`
	Status      string   `json:"status"`
}

// StatusCompleted is the Status value of a successful report.
const StatusCompleted = "analysis_completed_successfully"
