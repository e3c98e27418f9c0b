package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roadlog/fleet-auth/client"
	autherrors "github.com/roadlog/fleet-auth/internal/errors"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "admin123"
)

// fakeAPI simulates the auth endpoints with controllable failure modes
// and an atomic count of refresh calls.
type fakeAPI struct {
	server *httptest.Server

	mu          sync.Mutex
	validAccess string // token the protected route currently accepts

	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshFails bool
	alwaysReject bool // protected route 401s every token
	rateLimited  bool // protected route answers 429
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{validAccess: "access-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", api.loginHandler)
	mux.HandleFunc("POST /auth/refresh", api.refreshHandler)
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "User logged out successfully", "", nil)
	})
	mux.HandleFunc("GET /api/data", api.dataHandler)

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (api *fakeAPI) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Email != testEmail || req.Password != testPassword {
		writeEnvelope(w, http.StatusUnauthorized, false, "Login failed", "Invalid credentials", nil)
		return
	}
	api.mu.Lock()
	access := api.validAccess
	api.mu.Unlock()
	writeEnvelope(w, http.StatusOK, true, "User logged in successfully", "", map[string]interface{}{
		"user":         map[string]string{"id": "user-1", "email": testEmail, "role": "admin"},
		"accessToken":  access,
		"refreshToken": "refresh-1",
	})
}

func (api *fakeAPI) refreshHandler(w http.ResponseWriter, r *http.Request) {
	api.refreshCalls.Add(1)
	if api.refreshDelay > 0 {
		time.Sleep(api.refreshDelay)
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if api.refreshFails || req.RefreshToken != "refresh-1" {
		writeEnvelope(w, http.StatusUnauthorized, false, "Token refresh failed", "Invalid refresh token", nil)
		return
	}
	api.mu.Lock()
	api.validAccess = "access-2"
	api.mu.Unlock()
	writeEnvelope(w, http.StatusOK, true, "Access token refreshed successfully", "", map[string]interface{}{
		"accessToken": "access-2",
	})
}

func (api *fakeAPI) dataHandler(w http.ResponseWriter, r *http.Request) {
	if api.rateLimited {
		writeEnvelope(w, http.StatusTooManyRequests, false, "Too many requests", "Too many requests", nil)
		return
	}
	api.mu.Lock()
	valid := "Bearer " + api.validAccess
	api.mu.Unlock()
	if api.alwaysReject || r.Header.Get("Authorization") != valid {
		writeEnvelope(w, http.StatusUnauthorized, false, "Authentication required", "Invalid token", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "Data retrieved successfully", "", map[string]interface{}{"value": 42})
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message, errMsg string, data map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   success,
		"message":   message,
		"error":     errMsg,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *fakeAPI) invalidateAccessToken() {
	api.mu.Lock()
	api.validAccess = "access-2"
	api.mu.Unlock()
}

func loggedInClient(t *testing.T, api *fakeAPI) *client.Client {
	t.Helper()
	c := client.New(api.server.URL)
	_, err := c.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return c
}

func TestLoginStoresSession(t *testing.T) {
	api := newFakeAPI(t)
	c := client.New(api.server.URL)

	session, err := c.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.True(t, session.Authenticated)
	require.Equal(t, "access-1", session.AccessToken)
	require.Equal(t, "refresh-1", session.RefreshToken)
	require.Equal(t, testEmail, session.User.Email)
}

func TestLoginFailureIsExemptFromRefresh(t *testing.T) {
	api := newFakeAPI(t)
	c := client.New(api.server.URL)

	_, err := c.Login(context.Background(), testEmail, "wrong")
	require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
	require.Zero(t, api.refreshCalls.Load())
}

func TestTransparentRefreshRetriesOnce(t *testing.T) {
	api := newFakeAPI(t)
	c := loggedInClient(t, api)

	// Expire the access token server-side; the next call must refresh and
	// retry transparently.
	api.invalidateAccessToken()

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.Get(context.Background(), "/api/data", &out))
	require.Equal(t, 42, out.Value)
	require.Equal(t, int32(1), api.refreshCalls.Load())

	session, err := c.Session()
	require.NoError(t, err)
	require.Equal(t, "access-2", session.AccessToken)
	require.Equal(t, "refresh-1", session.RefreshToken)
	require.True(t, session.Authenticated)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api := newFakeAPI(t)
	api.refreshDelay = 200 * time.Millisecond
	c := loggedInClient(t, api)

	api.invalidateAccessToken()

	const n = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var out struct {
				Value int `json:"value"`
			}
			errs[i] = c.Get(context.Background(), "/api/data", &out)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	// All concurrent 401s must have awaited a single refresh call.
	require.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestSecond401IsTerminal(t *testing.T) {
	api := newFakeAPI(t)
	c := loggedInClient(t, api)

	api.alwaysReject = true

	err := c.Get(context.Background(), "/api/data", nil)
	require.ErrorIs(t, err, autherrors.ErrUnauthenticated)
	// Exactly one refresh attempt, then the retry's 401 surfaces; no loop.
	require.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestRefreshFailureClearsSession(t *testing.T) {
	api := newFakeAPI(t)
	c := loggedInClient(t, api)

	api.invalidateAccessToken()
	api.refreshFails = true

	err := c.Get(context.Background(), "/api/data", nil)
	require.ErrorIs(t, err, autherrors.ErrRefreshFailed)

	// Refreshing -> Anonymous: the session is destroyed.
	session, loadErr := c.Session()
	require.NoError(t, loadErr)
	require.False(t, session.Authenticated)
	require.Empty(t, session.AccessToken)
	require.Empty(t, session.RefreshToken)
}

func TestRateLimitedIsTerminal(t *testing.T) {
	api := newFakeAPI(t)
	c := loggedInClient(t, api)

	api.rateLimited = true

	err := c.Get(context.Background(), "/api/data", nil)
	require.ErrorIs(t, err, autherrors.ErrRateLimited)
	require.Zero(t, api.refreshCalls.Load())
}
