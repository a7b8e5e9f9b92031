package chatclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/chatclient"
	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/digragerr"
)

func TestComplete_ParsesFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		require.Equal(t, "digrag-summarizer", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "a concise summary"}},
			},
		})
	}))
	defer srv.Close()

	c := chatclient.New(srv.URL, config.Secret{}, 3)
	text, err := c.Complete(context.Background(), chatclient.Request{
		Model: "digrag-summarizer",
		Messages: []chatclient.Message{
			{Role: "system", Content: "summarise the following text concisely"},
			{Role: "user", Content: "long text"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "a concise summary", text)
}

func TestComplete_ForwardsProviderRoutingVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		provider, ok := body["provider"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, []any{"openai", "anthropic"}, provider["order"])
		require.Equal(t, "price", provider["sort"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	allowFallbacks := false
	c := chatclient.New(srv.URL, config.Secret{}, 1)
	_, err := c.Complete(context.Background(), chatclient.Request{
		Model:    "m",
		Messages: []chatclient.Message{{Role: "user", Content: "x"}},
		Provider: &chatclient.Provider{
			Order:          []string{"openai", "anthropic"},
			AllowFallbacks: &allowFallbacks,
			Sort:           "price",
		},
	})
	require.NoError(t, err)
}

func TestComplete_NonRetryable4xxReturnsImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := chatclient.New(srv.URL, config.Secret{}, 3)
	_, err := c.Complete(context.Background(), chatclient.Request{
		Model:    "m",
		Messages: []chatclient.Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, digragerr.ErrEmbeddingServer)
	require.Equal(t, 1, attempts)
}

func TestComplete_EmptyChoicesIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := chatclient.New(srv.URL, config.Secret{}, 1)
	_, err := c.Complete(context.Background(), chatclient.Request{
		Model:    "m",
		Messages: []chatclient.Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, digragerr.ErrEmbeddingParse)
}
