package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// Session is the part of the session store the client needs.
type Session interface {
	Token() string
	ClearSession(ctx context.Context) error
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:8001".
	BaseURL string
	// APIPrefix is prepended to device paths; "/api" when empty.
	APIPrefix string
	// Timeout is DefaultTimeout when zero.
	Timeout time.Duration
	// HTTPClient overrides the default client; its Timeout is left as is.
	HTTPClient *http.Client
	// Session supplies the bearer token and is cleared on rejection.
	Session Session
	// OnUnauthorized runs after the session is cleared on a 401.
	OnUnauthorized func()
	Logger         Logger
}

// Client calls the fleet server. It is safe for concurrent use.
type Client struct {
	baseURL        string
	prefix         string
	http           *http.Client
	session        Session
	onUnauthorized func()
	logger         Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("fleetapi: invalid base URL %q", opts.BaseURL)
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	prefix = "/" + strings.Trim(prefix, "/")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Client{
		baseURL:        base,
		prefix:         prefix,
		http:           httpClient,
		session:        opts.Session,
		onUnauthorized: opts.OnUnauthorized,
		logger:         logger,
	}, nil
}

// BaseURL returns the server root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// token, when set, is sent instead of the session token.
	token string
	// session marks calls whose 401 ends the session.
	session bool
}

// jsonBody encodes v for a request body.
func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return bytes.NewReader(b), nil
}

// do performs req and decodes a 2xx JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return fmt.Errorf("fleetapi: building %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	token := req.token
	if token == "" && req.session && c.session != nil {
		token = c.session.Token()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fleetapi: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(ctx, req, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fleetapi: decoding %s %s: %w", req.method, req.path, err)
	}
	return nil
}

// handleErrorResponse maps a non-2xx response to an error.
func (c *Client) handleErrorResponse(ctx context.Context, req request, resp *http.Response) error {
	statusErr := &StatusError{
		Method: req.method,
		Path:   req.path,
		Status: resp.StatusCode,
		Detail: readDetail(resp.Body),
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if req.session {
			c.rejectSession(ctx)
		}
		return fmt.Errorf("%w: %w", ErrUnauthorized, statusErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, statusErr)
	default:
		return statusErr
	}
}

// rejectSession clears the session and runs the redirect hook.
func (c *Client) rejectSession(ctx context.Context) {
	c.logger.Warn("server rejected session, signing out")

	if c.session != nil {
		// Clearing must finish even if the request context is done.
		clearCtx := context.WithoutCancel(ctx)
		if err := c.session.ClearSession(clearCtx); err != nil {
			c.logger.Warn("clearing rejected session failed", "error", err)
		}
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// readDetail extracts FastAPI-style {"detail": "..."} messages.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	// Validation errors carry a list; keep it as JSON.
	return string(payload.Detail)
}

// IsUnauthorized reports whether err came from a rejected session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
