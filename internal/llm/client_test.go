package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/config"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"timeout", fmt.Errorf("request timeout"), true},
		{"rate limit", fmt.Errorf("rate limit exceeded (429)"), true},
		{"service unavailable", fmt.Errorf("status 503"), true},
		{"unauthorized", fmt.Errorf("401 unauthorized"), false},
		{"bad api key", fmt.Errorf("invalid api key"), false},
		{"unknown defaults to retry", fmt.Errorf("something odd"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "carrier-pigeon"

	_, err := New(cfg, "any-model")
	assert.Error(t, err)
}

func TestNew_DefaultsToOpenAICompat(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = ""

	c, err := New(cfg, "test-model")
	require.NoError(t, err)
	_, ok := c.(*OpenAICompatClient)
	assert.True(t, ok)
}

func TestOpenAICompatClient_CompleteWithSystem(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  {\"ok\": true}  "}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})

	out, err := c.CompleteWithSystem(context.Background(), "be terse", "hello")
	require.NoError(t, err)

	assert.Equal(t, `{"ok": true}`, out, "response should be trimmed")
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, "test-model", gotReq.Model)
}

func TestOpenAICompatClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found"},
		})
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{BaseURL: srv.URL, Model: "missing"})

	_, err := c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAICompatClient_NonOKStatusIsNotRetriedForever(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(OpenAICompatConfig{BaseURL: srv.URL, Model: "m"})

	_, err := c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
