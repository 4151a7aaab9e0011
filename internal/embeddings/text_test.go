package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEmbedder_Embed(t *testing.T) {
	var gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, gotPrompt = body["model"], body["prompt"]
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	e := NewTextEmbedder(srv.URL, "test-embed", time.Second)
	vec, err := e.Embed(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "test-embed", gotModel)
	assert.Equal(t, "hello", gotPrompt)
}

func TestTextEmbedder_EmptyText(t *testing.T) {
	e := NewTextEmbedder("http://127.0.0.1:1", "", time.Second)
	_, err := e.Embed(context.Background(), "   ")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrProvider)
}

func TestTextEmbedder_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
		},
		{
			name: "empty embedding",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"embedding":[]}`))
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewTextEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), "x")
			assert.ErrorIs(t, err, ErrProvider)
		})
	}
}

func TestTextEmbedder_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"embedding":[1]}`))
	}))
	defer srv.Close()

	_, err := NewTextEmbedder(srv.URL, "m", 20*time.Millisecond).Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrProvider)
}

func TestTextEmbedder_EmbedBatchKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(len(body["prompt"]))}})
	}))
	defer srv.Close()

	vecs, err := NewTextEmbedder(srv.URL, "m", time.Second).EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}, {2}}, vecs)
}
