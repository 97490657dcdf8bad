package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/craftedsys/durable/retry"
)

// DefaultModel is the model used when none is configured.
var DefaultModel = openai.ChatModelGPT4oMini

var _ Client = (*OpenAI)(nil)

// OpenAI is a Client backed by the OpenAI Responses API with JSON
// schema structured outputs.
type OpenAI struct {
	client  openai.Client
	model   openai.ChatModel
	options []option.RequestOption
}

// Option configures the OpenAI client.
type Option func(*OpenAI)

// WithAPIKey sets the API key. The SDK falls back to OPENAI_API_KEY
// when unset.
func WithAPIKey(apiKey string) Option {
	return func(o *OpenAI) {
		o.options = append(o.options, option.WithAPIKey(apiKey))
	}
}

// WithBaseURL points the client at a different endpoint, such as a
// proxy or a compatible local server.
func WithBaseURL(baseURL string) Option {
	return func(o *OpenAI) {
		o.options = append(o.options, option.WithBaseURL(baseURL))
	}
}

// WithModel sets the model used for generation.
func WithModel(model string) Option {
	return func(o *OpenAI) {
		o.model = openai.ChatModel(model)
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAI) {
		o.options = append(o.options, option.WithHTTPClient(client))
	}
}

// NewOpenAI creates an OpenAI-backed client. SDK-level retries are
// disabled; the workflow engine owns the retry policy.
func NewOpenAI(opts ...Option) *OpenAI {
	o := &OpenAI{model: DefaultModel}
	o.options = append(o.options, option.WithMaxRetries(0))
	for _, opt := range opts {
		opt(o)
	}
	o.client = openai.NewClient(o.options...)
	return o
}

// ModelName returns the configured model identifier.
func (o *OpenAI) ModelName() string { return string(o.model) }

// GenerateJSON runs one structured generation call and returns the
// model's JSON output text.
func (o *OpenAI) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Prompt),
		},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
				},
			},
		}
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	text := resp.OutputText()
	if text == "" {
		return nil, retry.Transient(ErrEmptyOutput)
	}
	return []byte(text), nil
}

// classify maps API errors to retry classes. Client-side request
// errors cannot succeed on retry; rate limits, server errors and
// transport failures can.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return retry.Transient(err)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return retry.Permanent(err)
		}
	}
	return retry.Transient(err)
}
