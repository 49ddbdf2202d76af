// Package apiclient talks to a running listvault API server. listctl uses it
// for its remote subcommands.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/pkg/httpretry"
	"github.com/ignite/listvault/internal/worker"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("listvault api: %d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("listvault api: %d %s", e.Status, e.Message)
}

// Client is a listvault API client.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
}

// New creates a client for baseURL (for example http://localhost:8080).
// A nil doer selects a retrying client with a 5 minute timeout.
func New(baseURL string, doer httpretry.HTTPDoer) *Client {
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 5 * time.Minute}, 3)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// Batch is an import batch with its live progress, when known.
type Batch struct {
	domain.ImportBatch
	Progress *worker.Progress `json:"progress,omitempty"`
}

// CheckResult answers whether an address would be suppressed on import.
type CheckResult struct {
	Email         string                  `json:"email"`
	Valid         bool                    `json:"valid"`
	InvalidReason string                  `json:"invalid_reason,omitempty"`
	Suppressed    bool                    `json:"suppressed"`
	Scope         domain.SuppressionScope `json:"scope,omitempty"`
	Known         *bool                   `json:"known,omitempty"`
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out struct {
		Categories []domain.Category `json:"categories"`
	}
	if err := c.getJSON(ctx, "/api/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Upload submits a file for import into categoryID.
func (c *Client) Upload(ctx context.Context, categoryID int64, filename string, r io.Reader) (*domain.ImportBatch, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("category_id", strconv.FormatInt(categoryID, 10)); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/imports", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var b domain.ImportBatch
	if err := c.do(req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBatch returns an import batch with live progress.
func (c *Client) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	var b Batch
	if err := c.getJSON(ctx, "/api/imports/"+strconv.FormatInt(id, 10), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CheckSuppression asks whether email would be suppressed.
func (c *Client) CheckSuppression(ctx context.Context, email string) (*CheckResult, error) {
	var out CheckResult
	if err := c.getJSON(ctx, "/api/suppressions/check", url.Values{"email": {email}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartExport queues a background export job.
func (c *Client) StartExport(ctx context.Context, format domain.ExportFormat, f export.Filter) (*domain.ExportJob, error) {
	q := f.Values()
	q.Set("format", string(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/exports?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var job domain.ExportJob
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetExport returns the state of an export job.
func (c *Client) GetExport(ctx context.Context, publicID string) (*domain.ExportJob, error) {
	var job domain.ExportJob
	if err := c.getJSON(ctx, "/api/exports/"+url.PathEscape(publicID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitExport polls until the job is completed or failed.
func (c *Client) WaitExport(ctx context.Context, publicID string, every time.Duration) (*domain.ExportJob, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		job, err := c.GetExport(ctx, publicID)
		if err != nil {
			return nil, err
		}
		if job.Status == domain.ExportCompleted || job.Status == domain.ExportFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DownloadExport copies a completed job's file to w.
func (c *Client) DownloadExport(ctx context.Context, publicID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/exports/"+url.PathEscape(publicID)+"/download", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error, Code: body.Code}
}
