package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vocald/pkg/types"
)

// Client is a thin HTTP client for the vocald daemon API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for addr. A bare ":8088" or "host:port" is
// normalized to an http URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListModels(ctx context.Context, status, task string) ([]types.ModelInfo, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if task != "" {
		q.Set("task", task)
	}
	path := "/v1/models"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp types.ModelsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

func (c *Client) GetModel(ctx context.Context, modelID string) (types.ModelInfo, error) {
	var m types.ModelInfo
	err := c.do(ctx, http.MethodGet, "/v1/models/info?model="+url.QueryEscape(modelID), nil, &m)
	return m, err
}

func (c *Client) StartDownload(ctx context.Context, modelID string) (types.DownloadProgress, error) {
	var p types.DownloadProgress
	err := c.do(ctx, http.MethodPost, "/v1/models/download", types.ModelRequest{Model: modelID}, &p)
	return p, err
}

// DownloadStatus returns the current progress; ok is false once the daemon
// no longer tracks a task for the model.
func (c *Client) DownloadStatus(ctx context.Context, modelID string) (types.DownloadProgress, bool, error) {
	var p types.DownloadProgress
	err := c.do(ctx, http.MethodGet, "/v1/models/download/status?model="+url.QueryEscape(modelID), nil, &p)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Code == http.StatusNotFound {
			return types.DownloadProgress{}, false, nil
		}
		return types.DownloadProgress{}, false, err
	}
	return p, true, nil
}

func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/models", types.ModelRequest{Model: modelID}, nil)
}

func (c *Client) UnloadModel(ctx context.Context, modelID string) error {
	return c.do(ctx, http.MethodPost, "/v1/models/unload", types.ModelRequest{Model: modelID}, nil)
}

func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// APIError is a non-2xx daemon response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr types.ErrorResponse
		if jerr := json.NewDecoder(resp.Body).Decode(&apiErr); jerr == nil && apiErr.Error != "" {
			return &APIError{Code: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{Code: resp.StatusCode, Message: resp.Status}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
