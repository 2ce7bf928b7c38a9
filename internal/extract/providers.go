package extract

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rabatt-cli/pkg/anthropic"
	"github.com/sells-group/rabatt-cli/pkg/gateway"
)

// AnthropicCompleter sends completions through the Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter wraps an Anthropic client for a fixed model.
func NewAnthropicCompleter(client anthropic.Client, model string) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: model}
}

// Name implements Completer.
func (a *AnthropicCompleter) Name() string { return "anthropic" }

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	reply, err := a.client.Complete(ctx, anthropic.Prompt{
		Model:       a.model,
		System:      req.System,
		User:        req.User,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}
	reply.Usage.LogCost(a.model, "extract")
	return &Completion{
		Text:         reply.Text,
		Model:        reply.Model,
		InputTokens:  reply.Usage.InputTokens,
		OutputTokens: reply.Usage.OutputTokens,
		Truncated:    reply.Truncated(),
	}, nil
}

// GatewayCompleter sends completions through an OpenAI-compatible gateway.
type GatewayCompleter struct {
	client gateway.Client
	model  string
}

// NewGatewayCompleter wraps a gateway client. An empty model uses the
// client's default.
func NewGatewayCompleter(client gateway.Client, model string) *GatewayCompleter {
	return &GatewayCompleter{client: client, model: model}
}

// Name implements Completer.
func (g *GatewayCompleter) Name() string { return "gateway" }

// Complete implements Completer.
func (g *GatewayCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	temp := req.Temperature
	maxTokens := req.MaxTokens
	resp, err := g.client.ChatCompletion(ctx, gateway.ChatCompletionRequest{
		Model: g.model,
		Messages: []gateway.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, err
	}
	usage := anthropic.Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	usage.LogCost(g.model, "extract")
	return &Completion{
		Text:         resp.Content(),
		Model:        resp.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Truncated:    resp.FinishReason() == gateway.FinishLength,
	}, nil
}

// ProviderConfig selects and configures a completion backend.
type ProviderConfig struct {
	Provider       string
	AnthropicKey   string
	AnthropicModel string
	GatewayKey     string
	GatewayBaseURL string
	GatewayModel   string
}

// NewCompleter builds the Completer named by cfg.Provider. An empty provider
// selects anthropic.
func NewCompleter(cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicCompleter(anthropic.NewClient(cfg.AnthropicKey, option.WithMaxRetries(2)), cfg.AnthropicModel), nil
	case "gateway":
		opts := []gateway.Option{}
		if cfg.GatewayBaseURL != "" {
			opts = append(opts, gateway.WithBaseURL(cfg.GatewayBaseURL))
		}
		return NewGatewayCompleter(gateway.NewClient(cfg.GatewayKey, opts...), cfg.GatewayModel), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Provider)
	}
}
