package jquants

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	authUserEndpoint    = "/v1/token/auth_user"
	authRefreshEndpoint = "/v1/token/auth_refresh"

	refreshTimeout = 2 * time.Minute
)

var errNoCredentials = errors.New("no email/password configured")

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idToken
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idToken = tok
}

// ensureToken returns the current ID token, minting one if none is held yet.
func (c *Client) ensureToken(ctx context.Context, endpoint string) (string, error) {
	if tok := c.token(); tok != "" {
		return tok, nil
	}
	if err := c.refresh(ctx, ""); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", c.fail(endpoint, "could not obtain ID token", err)
	}
	return c.token(), nil
}

// refresh replaces stale with a new ID token. Concurrent callers share one
// refresh, and a caller whose token was already replaced does nothing. The
// shared exchange runs detached from the caller that started it, so one
// caller's cancellation cannot fail the others.
func (c *Client) refresh(ctx context.Context, stale string) error {
	ch := c.refreshes.DoChan("id_token", func() (any, error) {
		if cur := c.token(); cur != "" && cur != stale {
			return cur, nil
		}
		authCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		tok, err := c.authenticate(authCtx)
		if err != nil {
			return nil, err
		}
		c.setToken(tok)
		log.Info("Obtained new J-Quants ID token")
		return tok, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records a fatal AuthError so later calls short-circuit.
func (c *Client) fail(endpoint, reason string, err error) *AuthError {
	ae := &AuthError{Endpoint: endpoint, Reason: reason, Err: err}
	c.fatal.CompareAndSwap(nil, ae)
	log.Errorf("%v", ae)
	return ae
}

// authenticate exchanges email/password for a refresh token, then the
// refresh token for an ID token.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", errNoCredentials
	}

	payload, err := json.Marshal(map[string]string{"mailaddress": c.email, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	var user struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.post(ctx, authUserEndpoint, nil, payload, &user); err != nil {
		return "", err
	}
	if user.RefreshToken == "" {
		return "", fmt.Errorf("%s returned no refreshToken", authUserEndpoint)
	}

	var refreshed struct {
		IDToken string `json:"idToken"`
	}
	params := url.Values{"refreshtoken": {user.RefreshToken}}
	if err := c.post(ctx, authRefreshEndpoint, params, nil, &refreshed); err != nil {
		return "", err
	}
	if refreshed.IDToken == "" {
		return "", fmt.Errorf("%s returned no idToken", authRefreshEndpoint)
	}
	return refreshed.IDToken, nil
}

// post sends an unauthenticated POST with retry and decodes the JSON reply into out.
func (c *Client) post(ctx context.Context, endpoint string, params url.Values, payload []byte, out any) error {
	return c.withRetry(ctx, endpoint, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		reqURL := c.baseURL + endpoint
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		body, err := c.send(ctx, endpoint, req)
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				return &APIError{StatusCode: http.StatusUnauthorized, Endpoint: endpoint, Message: "credentials rejected"}
			}
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", endpoint, err)
		}
		return nil
	})
}
