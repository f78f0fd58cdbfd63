package jquants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// J-Quants is the Japan Exchange Group's market data API. Every data
// endpoint requires a bearer ID token obtained from a refresh token.
// https://jpx.gitbook.io/j-quants-en/api-reference
const DefaultBaseURL = "https://api.jquants.com"

// Client is an HTTP client for the J-Quants API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy

	email    string
	password string

	mu        sync.RWMutex
	idToken   string
	refreshes singleflight.Group
	fatal     atomic.Pointer[AuthError]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client,
// leaving any client passed to WithHTTPClient untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithCredentials sets the account used to mint new ID tokens.
func WithCredentials(email, password string) Option {
	return func(c *Client) {
		c.email = email
		c.password = password
	}
}

// WithIDToken seeds the client with an existing ID token.
func WithIDToken(token string) Option {
	return func(c *Client) {
		c.idToken = token
	}
}

// NewClient creates a new J-Quants client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves every record of an endpoint, following pagination_key
// until the server stops returning one. The records live under the key
// named by the endpoint's last path segment. Any page failure discards
// the pages already read.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	entity := path.Base(endpoint)
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}

	var all []json.RawMessage
	seen := map[string]bool{}
	for {
		body, err := c.getWithRetry(ctx, endpoint, query)
		if err != nil {
			return nil, err
		}
		records, next, err := decodePage(body, entity)
		if err != nil {
			return nil, &APIError{StatusCode: http.StatusOK, Endpoint: endpoint, Message: err.Error()}
		}
		all = append(all, records...)
		if next == "" {
			return all, nil
		}
		if seen[next] {
			return nil, &APIError{StatusCode: http.StatusOK, Endpoint: endpoint, Message: fmt.Sprintf("pagination key %q repeated", next)}
		}
		seen[next] = true
		query.Set("pagination_key", next)
	}
}

// decodePage splits a response body into its records and pagination key.
func decodePage(body []byte, entity string) ([]json.RawMessage, string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	var records []json.RawMessage
	if data, ok := raw[entity]; ok && string(data) != "null" {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal %s: %w", entity, err)
		}
	}
	var next string
	if pk, ok := raw["pagination_key"]; ok && string(pk) != "null" {
		if err := json.Unmarshal(pk, &next); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal pagination_key: %w", err)
		}
	}
	return records, next, nil
}

// getWithRetry performs one authorized GET, retrying transient failures.
func (c *Client) getWithRetry(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, endpoint, func(ctx context.Context) error {
		b, err := c.getAuthorized(ctx, endpoint, params)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	return body, err
}

// withRetry runs fn under the client's retry policy. Only TransientError is retried.
func (c *Client) withRetry(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, c.retry.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		var te *TransientError
		if errors.As(err, &te) {
			log.WithFields(log.Fields{"endpoint": endpoint, "attempt": attempts}).Warnf("Transient failure: %v", err)
			return retry.RetryableError(err)
		}
		return err
	})
	var te *TransientError
	if errors.As(err, &te) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
	return err
}

// getAuthorized performs one GET with the current token. An unauthorized
// response triggers one shared credential refresh and one replay.
func (c *Client) getAuthorized(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if ae := c.fatal.Load(); ae != nil {
		return nil, ae
	}

	token, err := c.ensureToken(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, endpoint, params, token)
	if !errors.Is(err, errUnauthorized) {
		return body, err
	}

	log.Warnf("Unauthorized response from %s, refreshing ID token", endpoint)
	if err := c.refresh(ctx, token); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(endpoint, "credential refresh failed", err)
	}

	body, err = c.doRequest(ctx, endpoint, params, c.token())
	if errors.Is(err, errUnauthorized) {
		return nil, c.fail(endpoint, "still unauthorized after credential refresh", nil)
	}
	return body, err
}

// doRequest sends a single GET and classifies the response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, token string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.send(ctx, endpoint, req)
}

// send executes req and maps the status code onto the error taxonomy.
func (c *Client) send(ctx context.Context, endpoint string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{StatusCode: resp.StatusCode, Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{StatusCode: resp.StatusCode, Endpoint: endpoint, Err: errors.New(responseMessage(body))}
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: responseMessage(body)}
	}
}

// responseMessage extracts the API's {"message": ...} body, or the raw text.
func responseMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
