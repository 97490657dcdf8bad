// Package crm implements the CRM analysis pipeline: two model-driven
// analyses fanned out in parallel, a validation gate per analysis, and
// a final pure aggregation step, all executed durably so that a crash
// never re-bills a completed model call.
package crm

import (
	"log/slog"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/engine"
	"github.com/craftedsys/durable/llm"
)

// Activity and workflow names. These are the wire contract: they key
// history entries, so renaming them breaks replay of existing runs.
const (
	WorkflowName = "crm_analysis"

	ActivityAnalyzeContacts      = "analyze_contacts"
	ActivityAnalyzeOpportunities = "analyze_opportunities"
	ActivityValidateAnalysis     = "validate_analysis"
	ActivityCombineAnalysis      = "combine_analysis"
)

const (
	analysisTypeContacts      = "contacts"
	analysisTypeOpportunities = "opportunities"
)

// Params are the inputs of one pipeline run.
type Params struct {
	ContactsFile      string `json:"contacts_file"`
	OpportunitiesFile string `json:"opportunities_file"`
}

// Pipeline bundles the pipeline's activities and workflow definition
// around a shared model client.
type Pipeline struct {
	llm    llm.Client
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline's activities.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a pipeline backed by the given model client.
func NewPipeline(client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:    client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register registers the workflow definition and all four activities.
func (p *Pipeline) Register(workflows *engine.Registry, activities *activity.Registry) {
	activities.Register(ActivityAnalyzeContacts, p.analyzeContacts)
	activities.Register(ActivityAnalyzeOpportunities, p.analyzeOpportunities)
	activities.Register(ActivityValidateAnalysis, p.validateAnalysis)
	activities.Register(ActivityCombineAnalysis, p.combineAnalysis)

	engine.RegisterDefinition(workflows, engine.NewWorkflow(WorkflowName, p.run))
}
