// Package quotes is the HTTP client for the remote quotes API.
package quotes

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

	"github.com/google/uuid"
	"github.com/kofalt/go-memoize"
	"github.com/sirupsen/logrus"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/domain"
	"github.com/waabox/quotedeck/internal/logging"
)

const (
	organizationsKey = "organizations"
	quotesKeyPrefix  = "quotes:"
)

// HeaderSource returns the authorization headers for one call.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Client implements domain.QuoteService over the quotes REST API.
type Client struct {
	baseURL string
	headers HeaderSource
	client  *http.Client
	cache   *memoize.Memoizer
	log     logrus.FieldLogger
}

// Ensure Client fully implements domain.QuoteService.
var _ domain.QuoteService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 15 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithCacheTTL caches organization and quote lists for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) {
		if ttl > 0 {
			cl.cache = memoize.NewMemoizer(ttl, 2*ttl)
		} else {
			cl.cache = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// NewClient creates a quotes API client rooted at baseURL, e.g. "https://api.example.com/v1".
func NewClient(baseURL string, headers HeaderSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "quotes-client")
	return c
}

// ListOrganizations returns the organizations the signed-in user belongs to.
func (c *Client) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	v, err := c.memoize(ctx, organizationsKey, func(ctx context.Context) (interface{}, error) {
		var raw []apiOrganization
		if err := c.do(ctx, http.MethodGet, "/organizations", nil, &raw); err != nil {
			return nil, err
		}
		orgs := make([]domain.Organization, len(raw))
		for i, o := range raw {
			orgs[i] = o.toOrganization()
		}
		return orgs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Organization(nil), v.([]domain.Organization)...), nil
}

// ListQuotes returns the quotes of an organization.
func (c *Client) ListQuotes(ctx context.Context, orgID string) ([]domain.Quote, error) {
	v, err := c.memoize(ctx, quotesKeyPrefix+orgID, func(ctx context.Context) (interface{}, error) {
		var raw []apiQuote
		path := fmt.Sprintf("/organizations/%s/quotes", url.PathEscape(orgID))
		if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
			return nil, err
		}
		quotes := make([]domain.Quote, len(raw))
		for i, q := range raw {
			quotes[i] = q.toQuote()
		}
		return quotes, nil
	})
	if err != nil {
		return nil, err
	}
	return copyQuotes(v.([]domain.Quote)), nil
}

// copyQuotes keeps callers from modifying cached lists.
func copyQuotes(in []domain.Quote) []domain.Quote {
	out := make([]domain.Quote, len(in))
	for i, q := range in {
		q.Lines = append([]domain.QuoteLine(nil), q.Lines...)
		out[i] = q
	}
	return out
}

// GetQuote returns a single quote with its lines.
func (c *Client) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	var raw apiQuote
	if err := c.do(ctx, http.MethodGet, "/quotes/"+url.PathEscape(id), nil, &raw); err != nil {
		return domain.Quote{}, err
	}
	return raw.toQuote(), nil
}

// CreateQuote creates a quote in an organization. Each call carries a fresh
// Idempotency-Key so the server can drop duplicates of the same request.
func (c *Client) CreateQuote(ctx context.Context, orgID string, draft domain.QuoteDraft) (domain.Quote, error) {
	if err := draft.Validate(); err != nil {
		return domain.Quote{}, fmt.Errorf("invalid quote: %w", err)
	}
	var raw apiQuote
	path := fmt.Sprintf("/organizations/%s/quotes", url.PathEscape(orgID))
	if err := c.do(ctx, http.MethodPost, path, fromDraft(draft), &raw); err != nil {
		return domain.Quote{}, err
	}
	c.forget(quotesKeyPrefix + orgID)
	return raw.toQuote(), nil
}

// DeleteQuote deletes a quote.
func (c *Client) DeleteQuote(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/quotes/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	// the owning organization is unknown here
	c.Invalidate()
	return nil
}

// Invalidate drops every cached list.
func (c *Client) Invalidate() {
	if c.cache != nil {
		c.cache.Storage.Flush()
	}
}

func (c *Client) forget(key string) {
	if c.cache != nil {
		c.cache.Storage.Delete(key)
	}
}

// memoize runs fn once per key for concurrent callers. The shared fetch does
// not inherit the first caller's cancellation; each caller still stops on its own ctx.
func (c *Client) memoize(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if c.cache == nil {
		return fn(ctx)
	}
	shared := context.WithoutCancel(ctx)
	v, err, cached := c.cache.Memoize(key, func() (interface{}, error) { return fn(shared) })
	if cached {
		c.log.WithField("key", key).Debug("served from cache")
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err == nil {
		return nil, ctxErr
	}
	return v, err
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, target interface{}) error {
	headers, err := c.headers.Headers(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrAuthRequired) {
			return &domain.AuthExpiredError{Cause: err}
		}
		return fmt.Errorf("authorizing request: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	log := logging.FromContext(ctx, c.log).WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("quotes API call")

	if err := classify(resp, requestID); err != nil {
		return err
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classify maps a non-2xx response onto the domain error taxonomy.
func classify(resp *http.Response, requestID string) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.AuthExpiredError{Cause: fmt.Errorf("quotes API error: %s: %w", resp.Status, domain.ErrUnauthorized)}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("quotes API error: %s: %w", resp.Status, domain.ErrNotFound)
	}

	remote := &domain.RemoteError{StatusCode: resp.StatusCode, RequestID: requestID}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var detail apiError
	if json.Unmarshal(body, &detail) == nil {
		remote.Code = detail.Error
		remote.Message = detail.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		remote.Message = text
	}
	return remote
}
