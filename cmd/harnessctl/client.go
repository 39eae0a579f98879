package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// client is a thin wrapper over the operation surface's HTTP API. There
// is exactly one instance per process, installed by the root command's
// PersistentPreRunE once --addr is known.
type client struct {
	baseURL string
	http    *http.Client
}

var activeClient *client

func newClientFromFlag(addr string) *client {
	activeClient = &client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 35 * time.Second},
	}
	return activeClient
}

// apiError mirrors operationsurface's errorResponse envelope.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (e *apiError) asError() error {
	if e.Code != "" {
		return fmt.Errorf("%s (%s)", e.Error, e.Code)
	}
	return fmt.Errorf("%s", e.Error)
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("harnessctl: request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return apiErr.asError()
		}
		return fmt.Errorf("harnessctl: %s returned %s", path, resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *client) get(path string, out any) error  { return c.do(http.MethodGet, path, nil, out) }
func (c *client) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}
