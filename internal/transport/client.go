// Package transport provides the timeout-bound, venue-configured HTTP client
// shared by the REST connectors. One Client per connector; signing is
// delegated to the composed auth.Signer so call sites stay identical across
// authentication schemes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quantport/brokerlink/internal/auth"
	"github.com/quantport/brokerlink/internal/broker"
)

const defaultTimeout = 10 * time.Second

// Client wraps an http.Client with a fixed per-venue timeout, a venue rate
// limit and request signing. Timeouts are not configurable per call; the
// context passed to each request can only shorten the deadline.
type Client struct {
	venue   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type Option func(*Client)

// WithTimeout overrides the default 10s venue timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func New(venue, baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		venue:   venue,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an unauthenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, auth.None{}, "", out)
}

// GetSigned performs a GET authenticated by the signer (bearer-style venues).
func (c *Client) GetSigned(ctx context.Context, path string, query url.Values, signer auth.Signer, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, signer, "", out)
}

// PostForm performs a signed form-encoded POST (HMAC-style venues). The body
// passed here must be the exact values covered by the signature.
func (c *Client) PostForm(ctx context.Context, path string, body url.Values, signer auth.Signer, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, signer, "application/x-www-form-urlencoded", out)
}

// PostJSON performs a signed JSON POST.
func (c *Client) PostJSON(ctx context.Context, path string, payload any, signer auth.Signer, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode request payload")
	}
	return c.doRaw(ctx, http.MethodPost, path, nil, raw, signer, "application/json", out)
}

// Delete performs a signed DELETE.
func (c *Client) Delete(ctx context.Context, path string, signer auth.Signer, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, signer, "", out)
}

func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, signer auth.Signer, contentType string, out any) error {
	var raw []byte
	if form != nil {
		raw = []byte(form.Encode())
	}
	return c.doSigned(ctx, method, path, query, raw, form, signer, contentType, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, raw []byte, signer auth.Signer, contentType string, out any) error {
	return c.doSigned(ctx, method, path, query, raw, nil, signer, contentType, out)
}

func (c *Client) doSigned(ctx context.Context, method, path string, query url.Values, raw []byte, form url.Values, signer auth.Signer, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(broker.ErrTransport, err.Error())
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if raw != nil {
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if signer != nil {
		if err := signer.Sign(req, path, form); err != nil {
			return errors.Wrapf(err, "failed to sign %s request", c.venue)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("venue request failed",
			zap.String("venue", c.venue),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return errors.Wrapf(broker.ErrTransport, "%s %s %s: %v", c.venue, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(broker.ErrTransport, "%s %s %s: read body: %v", c.venue, method, path, err)
	}

	c.logger.Debug("venue request",
		zap.String("venue", c.venue),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return broker.NewVenueError(c.venue, method+" "+path, broker.ErrAuth, resp.StatusCode, truncate(payload))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return broker.NewVenueError(c.venue, method+" "+path, broker.ErrTransport, resp.StatusCode, truncate(payload))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return errors.Wrapf(err, "failed to decode %s response for %s", c.venue, path)
		}
	}
	return nil
}

func truncate(payload []byte) string {
	const max = 256
	s := string(payload)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
