package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func TestComplete(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":          "msg_rabatt",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": `[{"code":"ZAPP10","probability":78}]`},
			},
			"usage": map[string]any{"input_tokens": 2100, "output_tokens": 40},
		})
	}))
	defer ts.Close()

	reply, err := newTestClient(ts.URL).Complete(context.Background(), Prompt{
		Model:       "claude-haiku-4-5-20251001",
		System:      "Du er en ekspert på norske rabattkoder.",
		User:        "Finn alle gyldige rabattkoder for Zalando",
		MaxTokens:   2000,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_rabatt", reply.ID)
	assert.Equal(t, `[{"code":"ZAPP10","probability":78}]`, reply.Text)
	assert.Equal(t, int64(2100), reply.Usage.InputTokens)

	assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 0.0001)
	assert.EqualValues(t, 2000, body["max_tokens"])
	require.Len(t, body["system"], 1)
	require.Len(t, body["messages"], 1)
}

func TestComplete_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Complete(context.Background(), Prompt{Model: "m", User: "u", MaxTokens: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}
