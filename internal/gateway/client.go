// Package gateway talks to the remote messaging gateway. Every capability is
// served by a fixed, ordered list of candidate endpoints that covers the
// response shapes of several gateway releases.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/config"
)

const (
	maxBodySize  = 4 << 20
	maxErrorBody = 256
)

// Client is a gateway client shared by every tenant. Credentials are
// deployment-wide.
type Client struct {
	baseURL     string
	apiKey      string
	integration string
	http        *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a client from the gateway section of the config.
func New(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		integration: cfg.Integration,
		http:        &http.Client{Timeout: timeout},
		logger:      logger.Named("gateway"),
		now:         time.Now,
	}
}

// request describes one remote call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// response is a raw remote answer.
type response struct {
	status      int
	contentType string
	body        []byte
}

// exchange performs req and returns the raw answer. Non-2xx answers and
// network failures become *TransportError.
func (c *Client) exchange(ctx context.Context, req request) (*response, string, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, u, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, u, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, u, &TransportError{Method: req.method, URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, u, &TransportError{Method: req.method, URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, u, &TransportError{
			Method:     req.method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBody),
		}
	}
	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}, u, nil
}

// do performs req and decodes the JSON answer. The content type is checked
// before parsing; anything but JSON is *UnstructuredResponseError.
func (c *Client) do(ctx context.Context, req request) (any, error) {
	resp, u, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	if !isJSON(resp.contentType) {
		return nil, &UnstructuredResponseError{Method: req.method, URL: u, ContentType: resp.contentType}
	}

	dec := json.NewDecoder(bytes.NewReader(resp.body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return doc, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func instancePath(prefix, instance string) string {
	return prefix + "/" + url.PathEscape(instance)
}
