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
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "  hello  "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.Generate(context.Background(), "llama3.2", "say hello", Options{Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "llama3.2", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.InDelta(t, 0.1, gotReq.Options.Temperature, 0.0001)
}

func TestGenerateVisionEncodesImage(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(generateResponse{Response: "[]"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GenerateVision(context.Background(), "llama3.2-vision", "extract", []byte{0x89, 0x50}, Options{})
	require.NoError(t, err)
	require.Len(t, gotReq.Images, 1)
	assert.Equal(t, "iVA=", gotReq.Images[0])
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Generate(context.Background(), "missing", "x", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGenerateUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Generate(context.Background(), "llama3.2", "x", Options{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestListModelsAndHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"llama3.2-vision:latest"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	names, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "llama3.2-vision:latest"}, names)

	ok, err := c.HasModel(context.Background(), "llama3.2-vision")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasModel(context.Background(), "mistral")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `[{"a":1}]`, `[{"a":1}]`, true},
		{"fenced", "```json\n[1,2]\n```", "[1,2]", true},
		{"fenced no lang", "```\n[1]\n```", "[1]", true},
		{"prose around", `Here you go: [1, 2] done`, `[1, 2]`, true},
		{"no array", "sorry, I cannot", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONArray(tt.in)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := ExtractJSONObject("```json\n{\"0\": \"Food\"}\n```")
	require.True(t, ok)
	assert.Equal(t, `{"0": "Food"}`, got)

	_, ok = ExtractJSONObject("no object here")
	assert.False(t, ok)
}
