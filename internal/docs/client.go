package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// defaultBaseURL is the Google Docs REST endpoint.
const defaultBaseURL = "https://docs.googleapis.com/v1"

// Client implements Service over the Document Service REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client using the given authenticated http client.
// baseURL is overridable for tests; empty means the production endpoint.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// Create implements Service.
func (c *Client) Create(ctx context.Context, title string) (string, error) {
	var out Document
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPost, "/documents", body, &out); err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	if out.DocumentID == "" {
		return "", fmt.Errorf("document service returned no document id")
	}
	return out.DocumentID, nil
}

// Get implements Service.
func (c *Client) Get(ctx context.Context, documentID string) (*Document, error) {
	var out Document
	if err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", documentID, err)
	}
	return &out, nil
}

// BatchUpdate implements Service.
func (c *Client) BatchUpdate(ctx context.Context, documentID string, requests []Request) error {
	body := map[string][]Request{"requests": requests}
	path := "/documents/" + url.PathEscape(documentID) + ":batchUpdate"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to update document %s: %w", documentID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("document service returned %d: %s", resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	}
	return nil
}
