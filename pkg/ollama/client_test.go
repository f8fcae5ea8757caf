package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var gotReq GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(GenerateResponse{
			Model:    gotReq.Model,
			Response: `{"relevance":"irrelevant"}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithModel("llama3.2"))

	resp, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:  "classify this",
		Options: &Options{Temperature: 0.1},
	})
	require.NoError(t, err)

	assert.Equal(t, "llama3.2", gotReq.Model, "default model applied")
	assert.False(t, gotReq.Stream)
	require.NotNil(t, gotReq.Options)
	assert.InDelta(t, 0.1, gotReq.Options.Temperature, 0.0001)

	assert.True(t, resp.Done)
	assert.Contains(t, resp.Response, "irrelevant")
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
}
