package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rabatt-cli/pkg/anthropic"
	"github.com/sells-group/rabatt-cli/pkg/gateway"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Name() string { return "mock" }

func (m *mockCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Completion), args.Error(1)
}

func TestExtract_ParsesReply(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.System == systemPrompt &&
			strings.HasPrefix(r.User, "Finn alle gyldige rabattkoder for Zalando fra dette innholdet:\n\n") &&
			r.MaxTokens == 2000 && r.Temperature == 0.1
	})).Return(&Completion{Text: "Her er kodene:\n```json\n" +
		`[{"code":"VELKOMST10","description":"10% rabatt på første ordre","probability":85,"context":["Ny kunde"],"savings":"10%"}]` +
		"\n```"}, nil)

	got := New(mc, DefaultConfig()).Extract(context.Background(), "zalando", "Zalando", "# side")
	require.Len(t, got, 1)
	assert.Equal(t, "VELKOMST10", got[0].Code)
	assert.Equal(t, 85, got[0].Probability)
	assert.Equal(t, []string{"Ny kunde"}, got[0].Context)
	assert.Equal(t, "10%", got[0].Savings)
	mc.AssertExpectations(t)
}

func TestExtract_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name  string
		reply *Completion
		err   error
	}{
		{name: "provider error", err: errors.New("HTTP 500")},
		{name: "no array", reply: &Completion{Text: "Ingen koder funnet."}},
		{name: "invalid json", reply: &Completion{Text: `[{"code": "X",}]`}},
		{name: "empty array", reply: &Completion{Text: "[]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := new(mockCompleter)
			mc.On("Complete", mock.Anything, mock.Anything).Return(tt.reply, tt.err)

			got := New(mc, Config{}).Extract(context.Background(), "boozt", "Boozt", "text")
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestExtract_TruncatesInput(t *testing.T) {
	mc := new(mockCompleter)
	var sent Request
	mc.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(Request) }).
		Return(&Completion{Text: "[]"}, nil)

	text := strings.Repeat("ø", 9000)
	New(mc, Config{MaxChars: 8000}).Extract(context.Background(), "s", "S", text)

	body := strings.TrimPrefix(sent.User, userPrompt("S", ""))
	assert.Equal(t, 8000, utf8.RuneCountInString(body))
	assert.True(t, utf8.ValidString(body))
}

func TestParseCandidates_Validation(t *testing.T) {
	got, err := ParseCandidates(`[
		{"code":"  ","description":"blank"},
		{"code":"HIGH","probability":140},
		{"code":"NEG","probability":-5},
		{"code":"HALF","probability":72.5},
		{"code":"NOCTX","probability":70,"context":null}
	]`)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 100, got[0].Probability)
	assert.Equal(t, 0, got[1].Probability)
	assert.Equal(t, 73, got[2].Probability)
	assert.Equal(t, []string{}, got[3].Context)
	assert.Equal(t, []string{}, got[0].Context)
}

func TestParseCandidates_FirstToLastBracket(t *testing.T) {
	got, err := ParseCandidates(`tekst [{"code":"A","context":["x"]}] mer [ikke]`)
	// The span runs to the last bracket, so trailing prose breaks the decode.
	require.Error(t, err)
	assert.Nil(t, got)

	_, err = ParseCandidates("] før [")
	assert.ErrorIs(t, err, ErrNoArray)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abcdef", 3))
	assert.Equal(t, "æø", truncateRunes("æøå", 2))
	assert.Equal(t, "short", truncateRunes("short", 100))
	assert.Equal(t, "unbounded", truncateRunes("unbounded", 0))
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) Complete(ctx context.Context, p anthropic.Prompt) (*anthropic.Reply, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.Reply), args.Error(1)
}

func TestAnthropicCompleter(t *testing.T) {
	ma := new(mockAnthropic)
	ma.On("Complete", mock.Anything, anthropic.Prompt{
		Model:       "claude-haiku-4-5-20251001",
		System:      "sys",
		User:        "u",
		MaxTokens:   2000,
		Temperature: 0.1,
	}).Return(&anthropic.Reply{
		Model:      "claude-haiku-4-5-20251001",
		Text:       "[]",
		StopReason: anthropic.StopMaxTokens,
		Usage:      anthropic.Usage{InputTokens: 1200, OutputTokens: 4},
	}, nil)

	c := NewAnthropicCompleter(ma, "claude-haiku-4-5-20251001")
	got, err := c.Complete(context.Background(), Request{System: "sys", User: "u", MaxTokens: 2000, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "[]", got.Text)
	assert.Equal(t, int64(1200), got.InputTokens)
	assert.True(t, got.Truncated)
	assert.Equal(t, "anthropic", c.Name())
	ma.AssertExpectations(t)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ChatCompletion(ctx context.Context, req gateway.ChatCompletionRequest) (*gateway.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ChatCompletionResponse), args.Error(1)
}

func TestGatewayCompleter(t *testing.T) {
	mg := new(mockGateway)
	mg.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r gateway.ChatCompletionRequest) bool {
		return len(r.Messages) == 2 && r.Messages[0].Role == "system" && r.Messages[1].Role == "user" &&
			r.MaxTokens != nil && *r.MaxTokens == 2000
	})).Return(&gateway.ChatCompletionResponse{
		Choices: []gateway.Choice{{Message: gateway.Message{Role: "assistant", Content: `[{"code":"A"}]`}, FinishReason: "stop"}},
		Usage:   gateway.Usage{PromptTokens: 900, CompletionTokens: 10},
	}, nil)

	c := NewGatewayCompleter(mg, "google/gemini-3-flash-preview")
	got, err := c.Complete(context.Background(), Request{System: "sys", User: "u", MaxTokens: 2000, Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, `[{"code":"A"}]`, got.Text)
	assert.Equal(t, int64(10), got.OutputTokens)
	assert.False(t, got.Truncated)
	mg.AssertExpectations(t)
}

func TestGatewayCompleter_Error(t *testing.T) {
	mg := new(mockGateway)
	mg.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, &gateway.APIError{StatusCode: 429})

	_, err := NewGatewayCompleter(mg, "").Complete(context.Background(), Request{})
	require.Error(t, err)
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(ProviderConfig{AnthropicKey: "k", AnthropicModel: "m"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = NewCompleter(ProviderConfig{Provider: "gateway", GatewayKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gateway", c.Name())

	_, err = NewCompleter(ProviderConfig{Provider: "llama"})
	require.Error(t, err)
}
