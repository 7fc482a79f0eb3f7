// Package client talks to the status server started by "foxy serve".
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with the status server
type Client struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	token    string
	username string
	password string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	Token    string       // bearer token, takes precedence over Username
	Username string
	Password string
	CACert   string // PEM file trusted in addition to the system pool
	Insecure bool   // Skip TLS verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:9105",
		Timeout: 10 * time.Second,
	}
}

// New creates a new status API client
func New(config Config) (*Client, error) {
	d := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = d.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = d.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.CACert != "" || config.Insecure {
		tc, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tc
	}

	return &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		logger:   config.Logger,
		token:    config.Token,
		username: config.Username,
		password: config.Password,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	// #nosec G402 -- InsecureSkipVerify is an explicit opt-in
	tc := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: config.Insecure}
	if config.CACert != "" {
		pem, err := os.ReadFile(config.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in " + config.CACert)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

// Healthy reports whether the server answers /healthz.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		c.logger.Debug("status server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// ListLocks returns every lock record; aliveOnly limits it to running owners.
func (c *Client) ListLocks(ctx context.Context, aliveOnly bool) ([]LockEntry, error) {
	var q url.Values
	if aliveOnly {
		q = url.Values{"alive": {"true"}}
	}
	var out []LockEntry
	if err := c.getJSON(ctx, "/locks", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLock returns the record with identifier id.
func (c *Client) GetLock(ctx context.Context, id string) (LockEntry, error) {
	var e LockEntry
	err := c.getJSON(ctx, "/locks/"+url.PathEscape(id), nil, &e)
	return e, err
}

// DeleteLock removes a stale record. It returns ErrAlive while the owner runs.
func (c *Client) DeleteLock(ctx context.Context, id string) (LockEntry, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/locks/"+url.PathEscape(id), nil)
	if err != nil {
		return LockEntry{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return LockEntry{}, err
	}
	var d deleteResp
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return LockEntry{}, fmt.Errorf("decode response: %w", err)
	}
	return d.Entry, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

func checkStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlive
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResp
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return &APIError{StatusCode: resp.StatusCode}
}
