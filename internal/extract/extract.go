// Package extract asks a language model for discount-code candidates found
// in scraped page text.
package extract

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/model"
)

// Completion is a single model reply.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	// Truncated is set when the provider stopped at the token limit.
	Truncated bool
}

// Completer sends one system+user exchange to a model provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Name() string
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Config tunes the extraction call.
type Config struct {
	MaxChars    int
	MaxTokens   int
	Temperature float64
}

// DefaultConfig matches the production extraction parameters.
func DefaultConfig() Config {
	return Config{MaxChars: 8000, MaxTokens: 2000, Temperature: 0.1}
}

// Extractor turns page text into validated candidates.
type Extractor struct {
	completer Completer
	cfg       Config
}

// New creates an Extractor. Zero config fields take defaults.
func New(c Completer, cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = def.Temperature
	}
	return &Extractor{completer: c, cfg: cfg}
}

// Extract returns the candidates the model finds for a store. Any failure
// yields an empty list.
func (e *Extractor) Extract(ctx context.Context, storeID, storeName, text string) []model.Candidate {
	log := zap.L().With(zap.String("store", storeID), zap.String("provider", e.completer.Name()))

	resp, err := e.completer.Complete(ctx, Request{
		System:      systemPrompt,
		User:        userPrompt(storeName, truncateRunes(text, e.cfg.MaxChars)),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		log.Warn("extract: completion failed", zap.Error(err))
		return []model.Candidate{}
	}

	if resp.Truncated {
		log.Warn("extract: reply hit the token limit", zap.Int("max_tokens", e.cfg.MaxTokens))
	}

	candidates, err := ParseCandidates(resp.Text)
	if err != nil {
		log.Warn("extract: unparseable reply", zap.Error(err))
		return []model.Candidate{}
	}

	log.Info("extract: candidates found", zap.Int("count", len(candidates)))
	return candidates
}

// ErrNoArray is returned when a reply contains no bracketed array.
var ErrNoArray = eris.New("extract: no JSON array in reply")

type rawCandidate struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Probability float64  `json:"probability"`
	Context     []string `json:"context"`
	Savings     string   `json:"savings"`
}

// ParseCandidates decodes the span from the first '[' to the last ']' of a
// reply and validates each element. Elements without code text are dropped.
func ParseCandidates(reply string) ([]model.Candidate, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, ErrNoArray
	}

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: decode candidates")
	}

	out := make([]model.Candidate, 0, len(raw))
	for _, r := range raw {
		code := strings.TrimSpace(r.Code)
		if code == "" {
			continue
		}
		ctx := r.Context
		if ctx == nil {
			ctx = []string{}
		}
		out = append(out, model.Candidate{
			Code:        code,
			Description: r.Description,
			Probability: model.ClampProbability(int(math.Floor(r.Probability + 0.5))),
			Context:     ctx,
			Savings:     r.Savings,
		})
	}
	return out, nil
}
