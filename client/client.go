// Package client is the HTTP SDK for the platform: it owns the token pair
// and serializes re-authentication. Under N concurrent calls hitting an
// expired access token, exactly one refresh request goes out and every caller
// resumes on the new token, or all fail uniformly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrSessionExpired is fatal: refresh was rejected, credentials are cleared,
// the user must log in again.
var ErrSessionExpired = errors.New("authentication session expired")

// codeTokenExpired marks the 401 the server sends for an expired (but
// refresh-worthy) access token.
const codeTokenExpired = "TOKEN_EXPIRED"

const defaultTimeout = 10 * time.Second

type refreshResult struct {
	token string
	err   error
}

type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore

	// mu guards the session plus the refreshing flag and waiter queue; the
	// pair is only ever mutated together, which is what keeps a single
	// refresh in flight under real parallelism.
	mu         sync.Mutex
	session    *Session
	refreshing bool
	waiters    []chan refreshResult
}

type Option func(*Client)

// WithTimeout overrides the per-request deadline applied to every outbound
// call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
	}
	for _, o := range opts {
		o(c)
	}
	s, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	c.session = s
	return c, nil
}

// Session snapshots the current token pair, nil when logged out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

type authResponse struct {
	Success bool           `json:"success"`
	User    map[string]any `json:"user"`
	Tokens  struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	} `json:"tokens"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login authenticates and persists the issued pair.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.obtainSession(ctx, "/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

// Register creates the account and persists the issued pair.
func (c *Client) Register(ctx context.Context, email, password, name, userType string) error {
	return c.obtainSession(ctx, "/auth/register", map[string]string{
		"email": email, "password": password, "name": name, "type": userType,
	})
}

// Logout destroys the session locally.
func (c *Client) Logout() error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return c.store.Clear()
}

// Request performs an authenticated call. On a TOKEN_EXPIRED response it
// triggers (or joins) the refresh and retries the original request exactly
// once with the new token. out, when non-nil, receives the decoded JSON body.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	token := c.accessToken()

	status, respBody, err := c.do(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && isTokenExpired(respBody) {
		newToken, rerr := c.handleExpiry(ctx)
		if rerr != nil {
			return rerr
		}
		status, respBody, err = c.do(ctx, method, path, body, newToken)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, status, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// handleExpiry serializes refresh attempts: the first caller performs the
// refresh HTTP call, everyone else parks on a waiter channel and resumes on
// the shared outcome.
func (c *Client) handleExpiry(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.session == nil || c.session.RefreshToken == "" {
		c.mu.Unlock()
		return "", ErrSessionExpired
	}
	c.refreshing = true
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	// The refresh call runs on its own deadline, not the initiating
	// caller's: queued waiters must not fail because one caller gave up.
	rctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()
	token, err := c.doRefresh(rctx, refreshToken)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	if err != nil {
		c.session = nil
	}
	c.mu.Unlock()

	if err != nil {
		_ = c.store.Clear()
	}
	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	return token, err
}

// doRefresh performs the single refresh HTTP call and installs the new pair.
// Any rejection is fatal for the session.
func (c *Client) doRefresh(ctx context.Context, refreshToken string) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/auth/refresh",
		map[string]string{"refreshToken": refreshToken}, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	if status != http.StatusOK {
		return "", ErrSessionExpired
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Tokens.AccessToken == "" {
		return "", ErrSessionExpired
	}
	// A pair that cannot be persisted is as fatal as a rejected refresh:
	// every caller and waiter sees the same terminal error.
	if err := c.installSession(&resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return resp.Tokens.AccessToken, nil
}

func (c *Client) obtainSession(ctx context.Context, path string, body any) error {
	status, respBody, err := c.do(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return err
	}
	var resp authResponse
	if uerr := json.Unmarshal(respBody, &resp); uerr != nil {
		return fmt.Errorf("decode auth response: %w", uerr)
	}
	if status != http.StatusOK || !resp.Success {
		if resp.Message != "" {
			return errors.New(resp.Message)
		}
		return fmt.Errorf("auth failed with status %d", status)
	}
	return c.installSession(&resp)
}

func (c *Client) installSession(resp *authResponse) error {
	s := &Session{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.Tokens.ExpiresIn) * time.Second),
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return c.store.Save(s)
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func isTokenExpired(body []byte) bool {
	var probe struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Code == codeTokenExpired
}
