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

// ErrProvider marks failures of the generation backend
var ErrProvider = errors.New("generation provider error")

// Generator produces a single-turn completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Client wraps Ollama API interactions
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Ollama client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // upper bound; callers set tighter deadlines via ctx
		},
	}
}

// GenerateRequest represents a generation request
type GenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// GenerateResponse represents a generation response
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// send issues a JSON request against path and returns the response once
// Ollama has answered 200. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute request: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama API error: %d - %s", ErrProvider, resp.StatusCode, string(msg))
	}
	return resp, nil
}

// Generate generates text using Ollama
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/generate", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Non-streaming responses are a single object; streaming ones are NDJSON
	var result strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var genResp GenerateResponse
		if err := decoder.Decode(&genResp); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("%w: failed to decode response: %v", ErrProvider, err)
		}
		if genResp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrProvider, genResp.Error)
		}

		result.WriteString(genResp.Response)

		if genResp.Done {
			break
		}
	}

	return result.String(), nil
}

// TextGenerator binds a Client to one model and a per-call timeout
type TextGenerator struct {
	client  *Client
	model   string
	timeout time.Duration
}

var _ Generator = (*TextGenerator)(nil)

// NewTextGenerator creates a Generator for model
func NewTextGenerator(client *Client, model string, timeout time.Duration) *TextGenerator {
	return &TextGenerator{client: client, model: model, timeout: timeout}
}

// Model returns the model used for generation
func (g *TextGenerator) Model() string {
	return g.model
}

// Generate runs one non-streaming completion
func (g *TextGenerator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.client.Generate(ctx, &GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": temperature,
		},
	})
}
