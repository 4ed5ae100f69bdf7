// Package api implements the HTTP client for the analysis backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/marcobitx/procwatch/internal/model"
	"github.com/marcobitx/procwatch/internal/sse"
)

// DefaultServer is used when no --server flag or environment override is set.
const DefaultServer = "http://127.0.0.1:8420"

// Client talks to the analysis backend's REST and push-stream endpoints.
type Client struct {
	baseURL string
	hc      *http.Client
	sse     *sse.Client
}

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	hc := &http.Client{Timeout: 60 * time.Second}
	return &Client{
		baseURL: baseURL,
		hc:      hc,
		// Streams are long-lived; they get a client without a timeout.
		sse: &sse.Client{HTTPClient: &http.Client{}},
	}
}

// CreateAnalysis uploads documents and starts a new analysis run.
func (c *Client) CreateAnalysis(ctx context.Context, name, modelID string, files []string) (*model.Analysis, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			return nil, fmt.Errorf("building upload: %w", err)
		}
	}
	if modelID != "" {
		if err := mw.WriteField("model", modelID); err != nil {
			return nil, fmt.Errorf("building upload: %w", err)
		}
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		part, err := mw.CreateFormFile("documents", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("attaching %s: %w", path, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyses", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())

	var out model.Analysis
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAnalysis fetches one analysis by ID.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	var out model.Analysis
	if err := c.getJSON(ctx, "/api/analyses/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAnalyses fetches all analyses, newest first.
func (c *Client) ListAnalyses(ctx context.Context) ([]model.Analysis, error) {
	var out struct {
		Analyses []model.Analysis `json:"analyses"`
	}
	if err := c.getJSON(ctx, "/api/analyses", &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

// CancelAnalysis asks the backend to stop a running analysis.
func (c *Client) CancelAnalysis(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/analyses/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return c.do(req, nil)
}

// DeleteAnalysis removes an analysis and its stored documents.
func (c *Client) DeleteAnalysis(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/analyses/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ExportAnalysis downloads the backend-rendered report (pdf or docx) into w.
func (c *Client) ExportAnalysis(ctx context.Context, id, format string, w io.Writer) error {
	u := fmt.Sprintf("%s/api/analyses/%s/export?format=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("requesting export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading export: %w", err)
	}
	return nil
}

// ListModels fetches the backend's model catalog.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	var out struct {
		Models []model.ModelInfo `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// StreamURL returns the push endpoint for an analysis.
func (c *Client) StreamURL(id string) string {
	return c.baseURL + "/api/analyses/" + url.PathEscape(id) + "/stream"
}

// Stream opens the push stream for an analysis. It satisfies the session's
// Transport interface.
func (c *Client) Stream(ctx context.Context, analysisID string) (<-chan sse.Event, error) {
	return c.sse.Stream(ctx, c.StreamURL(analysisID))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// do runs the request and decodes a JSON body into out when out is non-nil.
// Non-2xx responses become errors carrying the backend's error message.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// decodeError extracts the backend's {"error": ...} envelope, falling back to
// the HTTP status when the body is not in that shape.
func decodeError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("backend: %s", e.Error)
	}
	return fmt.Errorf("backend returned %s", resp.Status)
}
