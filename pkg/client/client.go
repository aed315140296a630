// Package client is a Go client for the podscribe API. It offers both halves
// of the progress channel: an SSE watcher and a bounded polling loop. Neither
// polls forever; both respect context cancellation and a hard deadline.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/podscribe/podscribe/internal/domain"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

// NewWithHTTPClient allows injecting a custom transport (tests, timeouts).
func NewWithHTTPClient(baseURL string, httpc *http.Client) *Client {
	c := New(baseURL)
	if httpc != nil {
		c.httpc = httpc
	}
	return c
}

type UploadResponse struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	IsDemo   bool   `json:"is_demo"`
}

// APIError is a non-2xx response decoded from the server's error payload.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Detail)
}

// Submit uploads an audio file and returns the created job id.
func (c *Client) Submit(ctx context.Context, filename string, file io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitDemo starts a job backed by the fixed synthetic input.
func (c *Client) SubmitDemo(ctx context.Context) (*UploadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/demo/start", nil)
	if err != nil {
		return nil, err
	}
	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current job snapshot (pull mode).
func (c *Client) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var out domain.Job
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Results fetches the final result of a completed job.
func (c *Client) Results(ctx context.Context, jobID string) (*domain.AnalysisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/results/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var out domain.AnalysisResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportFile mirrors the server's download payload.
type ExportFile struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// Export downloads the result in the requested format.
func (c *Client) Export(ctx context.Context, jobID, format string) (*ExportFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/download/%s/%s", c.baseURL, jobID, format), nil)
	if err != nil {
		return nil, err
	}

	// JSON downloads are the raw result, not the content/filename wrapper.
	if format == "json" {
		raw, err := c.doRaw(req)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Content: string(raw), Filename: "transcript.json"}, nil
	}

	var out ExportFile
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation and returns once the job is terminally
// cancelled.
func (c *Client) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs/"+jobID+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var out domain.Job
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a finished job (explicit cleanup).
func (c *Client) Delete(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/jobs/"+jobID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	raw, err := c.doRaw(req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}
	return raw, nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
