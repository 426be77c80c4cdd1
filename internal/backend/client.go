// Package backend is the HTTP client for the hospital application API that
// owns appointment data and every aggregate the dashboards show.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hospitaltm/citas-dashboard/pkg/config"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// CSRFHeader carries the request-forgery token on write calls.
const CSRFHeader = "X-CSRFToken"

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client calls the hospital backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a backend client from config.
func NewClient(cfg *config.BackendConfig, log *logger.Logger) *Client {
	return NewClientWithHTTP(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, log)
}

// NewClientWithHTTP creates a backend client with a caller-supplied http.Client.
func NewClientWithHTTP(baseURL string, hc *http.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		logger:     log.WithComponent("backend"),
	}
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET and returns the raw body of a 2xx response.
// Any other outcome is a transport error.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Transport(path, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	forwardCookies(ctx, req)

	return c.do(req, path)
}

// GetJSON issues a GET and decodes the body into v. Decode failures are payload errors.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Payload(path, err)
	}
	return nil
}

// WriteResult is the envelope every write endpoint answers with.
type WriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Mensaje string `json:"mensaje,omitempty"`
	Message string `json:"message,omitempty"`
}

// PostJSON sends body as JSON with the CSRF token from tokens and decodes the reply into out.
// A reply with success=false is returned as a transport error carrying the server message.
func (c *Client) PostJSON(ctx context.Context, path string, tokens TokenSource, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Transport(path, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	forwardCookies(ctx, req)

	if tokens != nil {
		token, err := tokens.Token(ctx)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("path", path).Msg("csrf token unavailable, sending without it")
		case token != "":
			req.Header.Set(CSRFHeader, token)
		}
	}

	raw, err := c.do(req, path)
	if err != nil {
		return err
	}

	var result WriteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.Payload(path, err)
	}
	if !result.Success {
		return serverFailure(path, http.StatusOK, firstNonEmpty(result.Error, result.Mensaje, result.Message))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Payload(path, err)
		}
	}
	return nil
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("backend request failed")
		return nil, errors.Transport(path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := extractServerMessage(raw)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("server_message", msg).
			Msg("backend returned an error status")
		return nil, serverFailure(path, resp.StatusCode, msg)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transport(path, resp.StatusCode, err)
	}

	c.logger.Debug().Str("path", path).Int("bytes", len(raw)).Msg("backend response")
	return raw, nil
}

func serverFailure(path string, status int, msg string) *errors.AppError {
	e := errors.Transport(path, status, nil)
	if msg != "" {
		e.Details[detailServerMessage] = msg
	}
	return e
}

const detailServerMessage = "server_message"

// ServerMessage returns the error text the backend put in its reply, or "".
func ServerMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Details[detailServerMessage]
	}
	return ""
}

func extractServerMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Mensaje string `json:"mensaje"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return firstNonEmpty(body.Error, body.Mensaje, body.Message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
