// Package client talks to a running docsift API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/documents"
	"github.com/docsift/docsift/internal/rag"
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docsift API error: %d - %s", e.StatusCode, e.Message)
}

// SubmitResult is returned by Upload and Process
type SubmitResult struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename,omitempty"`
	Status   string    `json:"status"`
}

// Client wraps docsift API interactions
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client; queries can take minutes so the timeout is generous
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// BaseURL returns the API address
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil {
			if e.Error != "" {
				msg = e.Error
			} else if e.Message != "" {
				msg = e.Message
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", body, out)
}

// Status checks the API is up and returns its version
func (c *Client) Status(ctx context.Context) (string, error) {
	var out struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/v1/status", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// ListDocuments returns every document, newest first
func (c *Client) ListDocuments(ctx context.Context) ([]db.Document, error) {
	var out struct {
		Documents []db.Document `json:"documents"`
	}
	if err := c.getJSON(ctx, "/api/v1/documents", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// GetDocument returns one document
func (c *Client) GetDocument(ctx context.Context, id uuid.UUID) (*db.Document, error) {
	var doc db.Document
	if err := c.getJSON(ctx, "/api/v1/documents/"+id.String(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Pages returns the extracted pages of a document
func (c *Client) Pages(ctx context.Context, id uuid.UUID) ([]documents.Page, error) {
	var out struct {
		Pages []documents.Page `json:"pages"`
	}
	if err := c.getJSON(ctx, "/api/v1/documents/"+id.String()+"/pages", &out); err != nil {
		return nil, err
	}
	return out.Pages, nil
}

// Upload sends the file at path and starts its processing
func (c *Client) Upload(ctx context.Context, path string) (*SubmitResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents/upload", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Process asks the API to (re)process a document
func (c *Client) Process(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	var out SubmitResult
	if err := c.postJSON(ctx, "/api/v1/documents/"+id.String()+"/process", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query asks a question; nil docIDs searches every processed document
func (c *Client) Query(ctx context.Context, question string, docIDs []uuid.UUID) (*rag.QueryResult, error) {
	req := map[string]any{"question": question}
	if docIDs != nil {
		req["document_ids"] = docIDs
	}

	var out rag.QueryResult
	if err := c.postJSON(ctx, "/api/v1/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
