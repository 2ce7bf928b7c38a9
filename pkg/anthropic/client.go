// Package anthropic wraps the Messages API for single-turn prompts.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StopMaxTokens is the stop reason for a reply cut off by the token limit.
const StopMaxTokens = "max_tokens"

// Client sends one system+user prompt and returns the reply.
type Client interface {
	Complete(ctx context.Context, p Prompt) (*Reply, error)
}

// Prompt is a single-turn request.
type Prompt struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature float64
}

// Reply is the model's answer with its text blocks already joined.
type Reply struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Truncated reports whether the reply hit the token limit.
func (r *Reply) Truncated() bool { return r.StopReason == StopMaxTokens }

// Usage counts the tokens billed for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// pricing is {input, output} in USD per million tokens.
var pricing = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost returns the USD cost of u under model, or 0 for models
// without a price.
func (u Usage) EstimateCost(model string) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(u.InputTokens)/1e6*p[0] + float64(u.OutputTokens)/1e6*p[1]
}

// LogCost writes a cost attribution line for one call.
func (u Usage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by anthropic-sdk-go. opts are passed to
// the SDK after the API key.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) Complete(ctx context.Context, p Prompt) (*Reply, error) {
	msg, err := c.client.Messages.New(ctx, toParams(p))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromMessage(msg), nil
}

func toParams(p Prompt) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(p.Model),
		MaxTokens:   p.MaxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(p.User))},
		Temperature: sdk.Float(p.Temperature),
	}
	if p.System != "" {
		params.System = []sdk.TextBlockParam{{Text: p.System}}
	}
	return params
}

func fromMessage(msg *sdk.Message) *Reply {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Reply{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
