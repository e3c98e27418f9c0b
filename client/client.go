// Package client is the Go consumer of the fleet auth API. Every outgoing
// request passes through an interceptor that, on a 401, exchanges the
// stored refresh token for a new access token and retries the original
// call exactly once. Concurrent 401s share a single in-flight refresh.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	autherrors "github.com/roadlog/fleet-auth/internal/errors"
	"github.com/roadlog/fleet-auth/users"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"
)

// Envelope mirrors the server's uniform response shape.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Client wraps an http.Client with bearer injection and the transparent
// refresh-and-retry protocol.
type Client struct {
	baseURL string
	http    *http.Client
	store   SessionStore
	log     zerolog.Logger

	// refreshGroup enforces single-flight: the first 401 triggers one
	// refresh call and all concurrent 401s await its result.
	refreshGroup singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithSessionStore(store SessionStore) Option {
	return func(c *Client) { c.store = store }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   NewMemoryStore(),
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Session returns the current client-held session state.
func (c *Client) Session() (Session, error) {
	return c.store.Load()
}

// request is an immutable descriptor of an outgoing call. Retries copy it
// with an incremented attempt counter instead of mutating shared state.
type request struct {
	method  string
	path    string
	body    []byte
	attempt int
}

type loginData struct {
	User         *users.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Login authenticates and stores both tokens and the identity
// (Anonymous -> Authenticated).
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Session{}, errors.Wrap(err, "[Client.Login] marshal")
	}

	var data loginData
	if err := c.do(ctx, request{method: http.MethodPost, path: loginPath, body: body}, &data); err != nil {
		return Session{}, err
	}

	session := Session{
		User:          data.User,
		AccessToken:   data.AccessToken,
		RefreshToken:  data.RefreshToken,
		Authenticated: true,
	}
	if err := c.store.Save(session); err != nil {
		return Session{}, errors.Wrap(err, "[Client.Login] save session")
	}
	c.log.Info().Str("email", email).Msg("logged in")
	return session, nil
}

// Logout tells the server to drop its cookies and destroys the local
// session regardless of the call outcome.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodPost, path: logoutPath}, nil)
	if clearErr := c.store.Clear(); clearErr != nil && err == nil {
		err = errors.Wrap(clearErr, "[Client.Logout] clear session")
	}
	return err
}

// Get performs an authenticated GET and decodes the envelope data into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, request{method: http.MethodGet, path: path}, out)
}

// Post performs an authenticated POST and decodes the envelope data into out.
func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "[Client.Post] marshal")
	}
	return c.do(ctx, request{method: http.MethodPost, path: path, body: raw}, out)
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	status, env, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusTooManyRequests:
		// Rate limiting is terminal and non-retryable.
		return autherrors.Wrapf(autherrors.ErrRateLimited, "[Client.do] %s %s", req.method, req.path)

	case status == http.StatusUnauthorized && req.path == loginPath:
		// Login is exempt from the refresh/retry protocol.
		return autherrors.Wrapf(autherrors.ErrInvalidCredentials, "[Client.do] %s", envelopeError(env))

	case status == http.StatusUnauthorized && req.attempt == 0:
		if _, err := c.refreshAccessToken(ctx); err != nil {
			return err
		}
		retry := req
		retry.attempt++
		c.log.Debug().Str("path", req.path).Msg("retrying after refresh")
		return c.do(ctx, retry, out)

	case status == http.StatusUnauthorized:
		// Second 401 after the single retry: terminal, no loop.
		return autherrors.Wrapf(autherrors.ErrUnauthenticated, "[Client.do] %s", envelopeError(env))

	case status == http.StatusForbidden:
		return autherrors.Wrapf(autherrors.ErrForbidden, "[Client.do] %s", envelopeError(env))

	case status >= 400 || !env.Success:
		return fmt.Errorf("[Client.do] %s %s: %d %s", req.method, req.path, status, envelopeError(env))
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "[Client.do] decode data")
		}
	}
	return nil
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token, single-flighted across concurrent callers. Any failure tears the
// session down (Refreshing -> Anonymous); callers must re-authenticate.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	tokenAny, err, shared := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.callRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.log.Debug().Msg("joined in-flight refresh")
	}
	return tokenAny.(string), nil
}

func (c *Client) callRefresh(ctx context.Context) (string, error) {
	session, err := c.store.Load()
	if err != nil {
		return "", errors.Wrap(err, "[Client.callRefresh] load session")
	}
	if session.RefreshToken == "" {
		_ = c.store.Clear()
		return "", autherrors.Wrapf(autherrors.ErrRefreshFailed, "[Client.callRefresh] no refresh token")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": session.RefreshToken})
	if err != nil {
		return "", errors.Wrap(err, "[Client.callRefresh] marshal")
	}

	// Bypasses do: the refresh call itself never triggers another refresh.
	status, env, err := c.send(ctx, request{method: http.MethodPost, path: refreshPath, body: body})
	if err != nil {
		return "", errors.Wrap(err, "[Client.callRefresh]")
	}
	if status != http.StatusOK || !env.Success {
		_ = c.store.Clear()
		c.log.Warn().Int("status", status).Msg("refresh failed, session cleared")
		if status == http.StatusTooManyRequests {
			return "", autherrors.Wrapf(autherrors.ErrRateLimited, "[Client.callRefresh]")
		}
		return "", autherrors.Wrapf(autherrors.ErrRefreshFailed, "[Client.callRefresh] %s", envelopeError(env))
	}

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" {
		_ = c.store.Clear()
		return "", autherrors.Wrapf(autherrors.ErrRefreshFailed, "[Client.callRefresh] malformed response")
	}

	// New access token replaces the old one; refresh token is unchanged.
	session.AccessToken = data.AccessToken
	session.Authenticated = true
	if err := c.store.Save(session); err != nil {
		return "", errors.Wrap(err, "[Client.callRefresh] save session")
	}
	return data.AccessToken, nil
}

// send executes one HTTP round trip, injecting the current bearer token.
func (c *Client) send(ctx context.Context, req request) (int, Envelope, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bytes.NewReader(req.body))
	if err != nil {
		return 0, Envelope{}, errors.Wrap(err, "[Client.send] build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if session, err := c.store.Load(); err == nil && session.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, Envelope{}, errors.Wrapf(err, "[Client.send] %s %s", req.method, req.path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, Envelope{}, errors.Wrap(err, "[Client.send] read body")
	}

	var env Envelope
	if len(raw) > 0 {
		// A non-JSON body (proxy error page) is treated as an empty envelope.
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env, nil
}

func envelopeError(env Envelope) string {
	if env.Error != "" {
		return env.Error
	}
	return env.Message
}
