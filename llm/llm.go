// Package llm is the model-call boundary for analysis activities. A
// Client turns a prompt into a JSON document conforming to a named
// schema; failures come back classified so the retry loop can tell a
// rate limit from a rejected request.
package llm

import (
	"context"
	"errors"
)

// Request describes one structured generation call.
type Request struct {
	// Instructions is the system-level description of the model's role.
	Instructions string

	// Prompt is the user-level task, usually carrying the data to
	// analyze inline.
	Prompt string

	// SchemaName names the output schema for the provider.
	SchemaName string

	// Schema is a JSON Schema object constraining the model output.
	Schema map[string]any
}

// Client generates structured JSON from a prompt.
type Client interface {
	// GenerateJSON returns the raw JSON document produced by the model.
	// Errors are classified with retry.Transient or retry.Permanent.
	GenerateJSON(ctx context.Context, req Request) ([]byte, error)
}

// ErrEmptyOutput is returned when the model produced no output text.
var ErrEmptyOutput = errors.New("llm: model returned empty output")
