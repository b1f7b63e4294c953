// Package ollama is a minimal client for a local Ollama-compatible
// generation service. The tracker treats the service as unreliable: every
// call has a bounded timeout, failures come back as typed errors, and the
// model's output is always validated by the caller.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable means the service could not be reached at all. Callers
// decide whether to retry; the client never does.
var ErrUnavailable = errors.New("generation service unavailable")

// Options tunes a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Generator is the capability the categorization engine needs. Backends
// are pluggable; tests swap in a fake.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts Options) (string, error)
}

// VisionGenerator extends Generator with image input for the visual
// extractor.
type VisionGenerator interface {
	Generator
	GenerateVision(ctx context.Context, model, prompt string, image []byte, opts Options) (string, error)
}

// Client talks to an Ollama server over its REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g.
// "http://localhost:11434").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Local models can be slow on first load.
		http: &http.Client{Timeout: 3 * time.Minute},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends a prompt and returns the raw response text.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts Options) (string, error) {
	return c.generate(ctx, generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
}

// GenerateVision sends a prompt plus one base64-embedded image.
func (c *Client) GenerateVision(ctx context.Context, model, prompt string, image []byte, opts Options) (string, error) {
	return c.generate(ctx, generateRequest{
		Model:  model,
		Prompt: prompt,
		Images: []string{encodeImage(image)},
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("generation service returned %d: %s", resp.StatusCode, snippet)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of locally pulled models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation service returned %d", resp.StatusCode)
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether a model (or a tagged variant like
// "llama3.2:latest") is pulled locally.
func (c *Client) HasModel(ctx context.Context, model string) (bool, error) {
	names, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.Contains(n, model) {
			return true, nil
		}
	}
	return false, nil
}
