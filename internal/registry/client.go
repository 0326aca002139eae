// Package registry is the HTTP client for the session registry, the backend
// authority for stream session identity and lifecycle state.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/models"
)

// Error is a failed registry call. StatusCode is zero for transport failures.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("registry %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("registry %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Client talks to the session registry over HTTP with bearer auth.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a registry client. timeout bounds each request.
func New(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateSession registers a new broadcast and returns its session descriptor.
func (c *Client) CreateSession(ctx context.Context, cfg models.StreamConfig) (*models.StreamSession, error) {
	var sess models.StreamSession
	if err := c.do(ctx, http.MethodPost, "/streams/create", cfg, &sess); err != nil {
		return nil, err
	}
	c.logger.Info("session created",
		zap.String("session_id", sess.SessionID),
		zap.String("stream_id", sess.StreamID),
	)
	return &sess, nil
}

// StartSession transitions the backend session to live.
func (c *Client) StartSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/streams/"+sessionID+"/start", nil, nil)
}

// EndSession ends the backend session. Callers must run local cleanup even
// when this returns an error; ending an already-ended session may be rejected
// by the registry but is harmless locally.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/streams/"+sessionID+"/end", nil, nil)
}

// StreamAnalytics fetches the authoritative counter snapshot for a stream.
func (c *Client) StreamAnalytics(ctx context.Context, streamID string) (*models.AnalyticsSnapshot, error) {
	var snap models.AnalyticsSnapshot
	if err := c.do(ctx, http.MethodGet, "/streams/"+streamID+"/analytics", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: method + " " + path, Message: err.Error()}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: method + " " + path, Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &Error{Op: method + " " + path, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: method + " " + path, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: method + " " + path, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
		}
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return "request rejected"
}
