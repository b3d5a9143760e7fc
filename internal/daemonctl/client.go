package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"pastiche/internal/api"
	"pastiche/internal/preflight"
)

// ErrDaemonNotRunning indicates nothing answers at the configured address.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx response from the daemon. JobID is set when the
// request already created a job, e.g. on timeout.
type APIError struct {
	Status   int
	Category api.ErrorCategory
	Message  string
	JobID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("daemon returned %d (%s)", e.Status, e.Category)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	if e.JobID != "" {
		msg += fmt.Sprintf(" (job %s)", e.JobID)
	}
	return msg
}

// Client talks to a running daemon over its HTTP adapter.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the daemon listening at bind. Requests wait
// up to requestTimeout, which should exceed the daemon's job timeout.
func NewClient(bind string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 3 * time.Minute
	}
	return &Client{
		baseURL: preflight.BaseURL(strings.TrimSpace(bind)),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the daemon URL the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping reports whether the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	return c.do(ctx, http.MethodGet, "/ping", nil, "", &resp)
}

// Process uploads image data and applies filter.
func (c *Client) Process(ctx context.Context, data []byte, filename, filter string) (api.ProcessResult, error) {
	body, contentType, err := multipartImage(data, filename, map[string]string{"filter": filter})
	if err != nil {
		return api.ProcessResult{}, err
	}
	var res api.ProcessResult
	err = c.do(ctx, http.MethodPost, "/", body, contentType, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		res.JobID = apiErr.JobID
	}
	return res, err
}

// Size reports the pixel dimensions of image data.
func (c *Client) Size(ctx context.Context, data []byte, filename string) (api.Dimensions, error) {
	body, contentType, err := multipartImage(data, filename, nil)
	if err != nil {
		return api.Dimensions{}, err
	}
	var dims api.Dimensions
	err = c.do(ctx, http.MethodPost, "/get_size", body, contentType, &dims)
	return dims, err
}

// Save persists artifact id. It reports false when the daemon does not know id.
func (c *Client) Save(ctx context.Context, id string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return false, err
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/save_image", bytes.NewReader(payload), "application/json", &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// LastSaved returns the persisted image path, if one exists.
func (c *Client) LastSaved(ctx context.Context) (string, bool, error) {
	var resp struct {
		Error string `json:"error"`
		Path  string `json:"path"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_last_saved", nil, "", &resp); err != nil {
		return "", false, err
	}
	if resp.Error != "NO" {
		return "", false, nil
	}
	return resp.Path, true, nil
}

// Filters lists the daemon's loaded filters.
func (c *Client) Filters(ctx context.Context) ([]api.FilterInfo, error) {
	var resp struct {
		Filters []api.FilterInfo `json:"filters"`
	}
	err := c.do(ctx, http.MethodGet, "/filters", nil, "", &resp)
	return resp.Filters, err
}

// Artifacts lists indexed artifacts, optionally filtered by kind.
func (c *Client) Artifacts(ctx context.Context, kinds ...string) ([]api.ArtifactInfo, error) {
	query := url.Values{}
	for _, kind := range kinds {
		query.Add("kind", kind)
	}
	path := "/artifacts"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp struct {
		Artifacts []api.ArtifactInfo `json:"artifacts"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, "", &resp)
	return resp.Artifacts, err
}

// Jobs lists the newest journal entries.
func (c *Client) Jobs(ctx context.Context, limit int) ([]api.JobInfo, error) {
	var resp struct {
		Jobs []api.JobInfo `json:"jobs"`
	}
	err := c.do(ctx, http.MethodGet, "/jobs?limit="+strconv.Itoa(limit), nil, "", &resp)
	return resp.Jobs, err
}

// Job fetches one job by id.
func (c *Client) Job(ctx context.Context, id string) (api.JobInfo, error) {
	var info api.JobInfo
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, "", &info)
	return info, err
}

// Status fetches the daemon's runtime summary.
func (c *Client) Status(ctx context.Context) (api.StatusSummary, error) {
	var summary api.StatusSummary
	err := c.do(ctx, http.MethodGet, "/status", nil, "", &summary)
	return summary, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, unix.ECONNREFUSED) {
			return fmt.Errorf("%w at %s; start it with `pastiche start`", ErrDaemonNotRunning, c.baseURL)
		}
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			ID      string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Category = api.ErrorCategory(payload.Error)
			apiErr.Message = payload.Message
			apiErr.JobID = payload.ID
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func multipartImage(data []byte, filename string, fields map[string]string) (io.Reader, string, error) {
	if filename == "" {
		filename = "image"
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
