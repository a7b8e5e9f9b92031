package embedclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nekowasabi/digrag/internal/config"
	"github.com/nekowasabi/digrag/internal/digragerr"
	"github.com/nekowasabi/digrag/internal/embedclient"
)

func TestEmbedBatch_ParsesVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2}},
				{"embedding": []float32{0.3, 0.4}},
			},
		})
	}))
	defer srv.Close()

	c := embedclient.New(srv.URL, "test-model", config.NewSecret("test-token"), 4, 3)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{0.1, 0.2}, vecs[0])
}

func TestEmbedBatch_EmptyInputIsNoOp(t *testing.T) {
	c := embedclient.New("http://unused.invalid", "m", config.Secret{}, 1, 1)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestEmbedBatch_ServerErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := embedclient.New(srv.URL, "m", config.Secret{}, 1, 1)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	require.ErrorIs(t, err, digragerr.ErrEmbeddingServer)
}

func TestEmbedBatch_RetriesOn429ThenSucceeds(t *testing.T) {
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}}},
		})
	}))
	defer srv.Close()

	c := embedclient.New(srv.URL, "m", config.Secret{}, 4, 3)
	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 2, attempt)
}

func TestEmbedMany_ReturnsInInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float32{float32(len(req.Input[i]))}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := embedclient.New(srv.URL, "m", config.Secret{}, 4, 2)
	results, err := c.EmbedMany(context.Background(), [][]string{{"a"}, {"bb"}, {"ccc"}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, []float32{1}, results[0][0])
	require.Equal(t, []float32{2}, results[1][0])
	require.Equal(t, []float32{3}, results[2][0])
}
