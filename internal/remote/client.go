// Package remote is the JSON-over-HTTP transport shared by the listing,
// contact and taxonomy resources.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/ratelimit"
)

const (
	// RequestIDHeader carries a per-request uuid for correlating client and
	// server logs.
	RequestIDHeader = "X-Request-ID"

	// ModelField is the form field holding the JSON record when bodies are
	// emulated as form posts.
	ModelField = "model"

	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	EmulateJSON       bool
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	// HTTPClient defaults to a client with no timeout; requests rely on the
	// transport defaults and the caller's context.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues JSON requests against one backend.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *ratelimit.KeyedRateLimiter
	emulateJSON bool
	userAgent   string
	logger      *slog.Logger
}

// New creates a Client. BaseURL must be absolute.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Validation(fmt.Sprintf("base url %q must be absolute", opts.BaseURL))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        httpClient,
		limiter:     ratelimit.New(opts.RequestsPerSecond, opts.Burst),
		emulateJSON: opts.EmulateJSON,
		userAgent:   opts.UserAgent,
		logger:      log,
	}, nil
}

// Close releases resources held by the client. Requests issued afterwards
// fail with a NETWORK error.
func (c *Client) Close() {
	c.limiter.Stop()
}

// EscapeSegment escapes s for use as one path segment, escaping everything
// except unreserved characters (so "@" becomes "%40" and " " becomes "%20").
func EscapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// UnescapeSegment reverses EscapeSegment and also accepts "+" as a space.
func UnescapeSegment(s string) (string, error) {
	return url.QueryUnescape(s)
}

// JoinPath joins already-escaped segments with single slashes.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// GetJSON fetches path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, resource, path string, out any) error {
	body, err := c.do(ctx, resource, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(resource, http.MethodGet, path, body, out)
}

// SendJSON encodes in as the request body of a PUT or POST and decodes the
// response into out when out is non-nil and the body is not empty.
func (c *Client) SendJSON(ctx context.Context, resource, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "encode %s body", resource)
	}
	body, err := c.do(ctx, resource, method, path, payload)
	if err != nil {
		return err
	}
	return decode(resource, method, path, body, out)
}

// Delete issues a DELETE. Any response body is ignored.
func (c *Client) Delete(ctx context.Context, resource, path string) error {
	_, err := c.do(ctx, resource, http.MethodDelete, path, nil)
	return err
}

// do executes a request with rate limiting and maps failures to NETWORK
// errors.
func (c *Client) do(ctx context.Context, resource, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx, resource); err != nil {
		return nil, errors.Networkf("%s %s", method, path).WithCause(fmt.Errorf("rate limit wait: %w", err))
	}

	var reqBody io.Reader
	contentType := ""
	if payload != nil {
		if c.emulateJSON {
			form := url.Values{ModelField: {string(payload)}}
			reqBody = strings.NewReader(form.Encode())
			contentType = contentTypeForm
		} else {
			reqBody = bytes.NewReader(payload)
			contentType = contentTypeJSON
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "create %s request", resource)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("remote request",
		"resource", resource,
		"method", method,
		"path", path,
		"request_id", requestID,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Networkf("%s %s", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Networkf("%s %s: read response", method, path).WithCause(err)
	}

	if code := errors.FromStatus(resp.StatusCode); code != "" {
		c.logger.Debug("remote request failed",
			"resource", resource,
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
		)
		return nil, (&errors.Error{
			Code:    code,
			Message: fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode),
		}).WithDetails(StatusDetails{Status: resp.StatusCode, Body: truncate(string(body), 256)})
	}

	return body, nil
}

// StatusDetails is attached to errors caused by a non-2xx response.
type StatusDetails struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

func decode(resource, method, path string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Networkf("%s %s: decode %s", method, path, resource).WithCause(err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
