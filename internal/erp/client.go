package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the Service Layer connection settings.
type Config struct {
	BaseURL   string
	CompanyDB string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client talks to the SAP Business One Service Layer. Sessions are cookie
// based; an expired session is renewed once per request before giving up.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	cookie string
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("erp: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// UnavailableError marks transport-level failures. Callers may retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service layer unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RequestError is a non-2xx Service Layer response.
type RequestError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("service layer request failed [%d] %s %s: %s", e.Status, e.Method, e.Path, e.Body)
}

// Code extracts the SAP error code from the response body, 0 if absent.
func (e *RequestError) Code() int {
	var parsed struct {
		Error struct {
			Code json.Number `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &parsed); err != nil {
		return 0
	}
	n, err := parsed.Error.Code.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

// IsNegativeStock reports whether the error is the ERP's insufficient-stock
// rejection (code -10).
func IsNegativeStock(err error) bool {
	var reqErr *RequestError
	if !AsRequestError(err, &reqErr) {
		return false
	}
	return reqErr.Code() == -10
}

// AsRequestError is errors.As for *RequestError, kept here so callers do not
// need the errors import just for this check.
func AsRequestError(err error, target **RequestError) bool {
	for err != nil {
		if re, ok := err.(*RequestError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *Client) login(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cookie != "" && !force {
		return nil
	}

	payload, _ := json.Marshal(map[string]string{
		"CompanyDB": c.cfg.CompanyDB,
		"UserName":  c.cfg.Username,
		"Password":  c.cfg.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/Login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Op: "login", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return &RequestError{Status: res.StatusCode, Method: http.MethodPost, Path: "/Login", Body: string(body)}
	}

	var parts []string
	for _, ck := range res.Cookies() {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	if len(parts) == 0 {
		return fmt.Errorf("service layer returned no cookies on login")
	}
	c.cookie = strings.Join(parts, "; ")
	c.logger.Info("service layer login successful")
	return nil
}

func (c *Client) currentCookie() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookie
}

func sessionExpired(body []byte) bool {
	msg := strings.ToLower(string(body))
	if !strings.Contains(msg, "session") {
		return false
	}
	return strings.Contains(msg, "expired") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "not found")
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", c.currentCookie())

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &UnavailableError{Op: method + " " + path, Err: err}
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, &UnavailableError{Op: method + " " + path, Err: err}
	}
	return res.StatusCode, data, nil
}

func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.login(ctx, false); err != nil {
		return err
	}

	status, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized || sessionExpired(data) {
		c.logger.Warn("service layer session expired, re-logging in")
		if err := c.login(ctx, true); err != nil {
			return err
		}
		status, data, err = c.do(ctx, method, path, body)
		if err != nil {
			return err
		}
	}

	if status >= 400 {
		c.logger.Error("service layer request failed",
			zap.Int("status", status),
			zap.String("method", method),
			zap.String("path", path))
		return &RequestError{Status: status, Method: method, Path: path, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response of %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.request(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.request(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}) error {
	return c.request(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.request(ctx, http.MethodDelete, path, nil, nil)
}
