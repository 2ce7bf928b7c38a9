package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMessage_JoinsTextBlocks(t *testing.T) {
	reply := fromMessage(&sdk.Message{
		ID:         "msg_1",
		Model:      "claude-haiku-4-5-20251001",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `[{"code":"VELKOMST10"`},
			{Type: "thinking", Text: "ignored"},
			{Type: "text", Text: `}]`},
		},
		Usage: sdk.Usage{InputTokens: 100, OutputTokens: 50},
	})

	require.NotNil(t, reply)
	assert.Equal(t, "msg_1", reply.ID)
	assert.Equal(t, `[{"code":"VELKOMST10"}]`, reply.Text)
	assert.False(t, reply.Truncated())
	assert.Equal(t, Usage{InputTokens: 100, OutputTokens: 50}, reply.Usage)
}

func TestFromMessage_Truncated(t *testing.T) {
	reply := fromMessage(&sdk.Message{ID: "msg_2", StopReason: StopMaxTokens})
	assert.Empty(t, reply.Text)
	assert.True(t, reply.Truncated())
}

func TestToParams(t *testing.T) {
	params := toParams(Prompt{Model: "m", System: "sys", User: "u", MaxTokens: 2000, Temperature: 0.1})
	assert.Equal(t, sdk.Model("m"), params.Model)
	assert.Equal(t, int64(2000), params.MaxTokens)
	require.Len(t, params.Messages, 1)
	require.Len(t, params.System, 1)
	assert.Equal(t, "sys", params.System[0].Text)

	assert.Empty(t, toParams(Prompt{User: "u"}).System)
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{"haiku", "claude-haiku-4-5-20251001", Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 6.00},
		{"sonnet extraction call", "claude-sonnet-4-5-20250929", Usage{InputTokens: 3_000, OutputTokens: 400}, 0.015},
		{"gateway model has no price", "google/gemini-3-flash-preview", Usage{InputTokens: 1_000_000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 0.0001)
		})
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Usage{InputTokens: 100, OutputTokens: 50}.LogCost("claude-haiku-4-5-20251001", "extract")
		Usage{}.LogCost("unknown-model", "")
	})
}
