package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/micro-nova/lms-announce/internal/models"
)

// client is a minimal HTTP client for the daemon API.
type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newHTTPClient(base, apiKey string, timeout time.Duration) *client {
	return &client{
		base:   strings.TrimSuffix(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and decodes the response into out. Non-2xx
// responses are returned as *models.AppError when the body carries one.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	slog.Debug("request", "method", method, "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		appErr := &models.AppError{Status: resp.StatusCode}
		if json.Unmarshal(data, appErr) != nil || appErr.Message == "" {
			appErr.Message = fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		return appErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) announce(ctx context.Context, req models.AnnounceRequest) (models.AnnounceResponse, error) {
	var resp models.AnnounceResponse
	err := c.do(ctx, http.MethodPost, "/api/announce", req, &resp)
	return resp, err
}

func (c *client) status(ctx context.Context) (models.CoordinatorStatus, error) {
	var st models.CoordinatorStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}
