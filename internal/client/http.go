package client

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
)

// HTTPClient makes REST calls to the device inventory API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given API base URL
// (e.g. "http://127.0.0.1:8080/api").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ListDevices fetches /devices.
func (c *HTTPClient) ListDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDevice fetches /devices/{id}.
func (c *HTTPClient) GetDevice(ctx context.Context, id string) (*Device, error) {
	var d Device
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateStatus sends PATCH /devices/{id}/status.
func (c *HTTPClient) UpdateStatus(ctx context.Context, id, status string) (*Device, error) {
	var d Device
	path := "/devices/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, http.MethodPatch, path, StatusUpdate{Status: status}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
