package crm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/retry"
)

func (p *Pipeline) combineAnalysis(_ context.Context, args []json.RawMessage) (any, error) {
	var (
		contacts      ContactAnalysis
		opportunities OpportunityAnalysis
	)
	if err := activity.Decode(args, &contacts, &opportunities); err != nil {
		return nil, retry.Permanent(err)
	}
	p.logger.Info("combining analyses into final report")

	return BuildReport(contacts, opportunities), nil
}

// BuildReport aggregates both analyses into the final report. Pure, no
// model call.
func BuildReport(contacts ContactAnalysis, opportunities OpportunityAnalysis) Report {
	return Report{
		CRMSummary: Summary{
			Contacts:      contacts,
			Opportunities: opportunities,
		},
		KeyInsights: []string{
			fmt.Sprintf("Managing %d contacts across %d companies",
				contacts.TotalContacts, contacts.UniqueCompanies),
			fmt.Sprintf("Top customer: %s (%d contacts)",
				contacts.TopCompany.Name, contacts.TopCompany.Count),
			fmt.Sprintf("Pipeline value: $%s across %d opportunities",
				humanize.CommafWithDigits(opportunities.TotalPipelineValue, 0),
				opportunities.TotalOpportunities),
			fmt.Sprintf("Closed revenue: $%s (Win rate: %.1f%%)",
				humanize.CommafWithDigits(opportunities.WonValue, 0),
				opportunities.WinRate*100),
		},
		Status: StatusCompleted,
	}
}
