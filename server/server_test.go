package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roadlog/fleet-auth/auth"
	"github.com/roadlog/fleet-auth/internal/config"
	"github.com/roadlog/fleet-auth/server"
	"github.com/roadlog/fleet-auth/token"
	"github.com/roadlog/fleet-auth/users"
	fakeuserrepo "github.com/roadlog/fleet-auth/users/repofake"
)

const (
	adminID       = "admin-1"
	adminEmail    = "admin@example.com"
	adminPassword = "admin123"
	userID        = "user-2"
	userEmail     = "user@example.com"
	userPassword  = "user123"
)

type serverFixture struct {
	server   *server.Server
	userRepo *fakeuserrepo.FakeUserRepo
	issuer   *token.Issuer
	verifier *token.Verifier
}

func setupServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	tokenCfg := token.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	}
	issuer, err := token.NewIssuer(tokenCfg)
	require.NoError(t, err)
	verifier, err := token.NewVerifier(tokenCfg)
	require.NoError(t, err)

	userRepo := fakeuserrepo.NewFakeUserRepo()
	seedUser(t, userRepo, adminID, adminEmail, adminPassword, users.RoleAdmin)
	seedUser(t, userRepo, userID, userEmail, userPassword, users.RoleUser)

	authService, err := auth.NewService(userRepo, issuer, verifier)
	require.NoError(t, err)

	srv, err := server.New(config.New(), userRepo, authService, zerolog.Nop())
	require.NoError(t, err)

	return &serverFixture{
		server:   srv,
		userRepo: userRepo,
		issuer:   issuer,
		verifier: verifier,
	}
}

func seedUser(t *testing.T, repo users.Repo, id, email, password string, role users.Role) {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(context.Background(), &users.User{
		ID:           id,
		Email:        email,
		Name:         "Seeded",
		Role:         role,
		PasswordHash: hash,
	}))
}

// doJSON issues a request against the server mux. An empty bearer token
// leaves the request unauthenticated.
func (f *serverFixture) doJSON(t *testing.T, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func promoteUser(t *testing.T, f *serverFixture, id string) {
	t.Helper()
	u, err := f.userRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	u.Role = users.RoleAdmin
	require.NoError(t, f.userRepo.Upsert(context.Background(), u))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) server.APIResponse {
	t.Helper()
	var env server.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotEmpty(t, env.Timestamp)
	return env
}

func (f *serverFixture) login(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	rec := f.doJSON(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	accessToken, _ = data["accessToken"].(string)
	refreshToken, _ = data["refreshToken"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)
	return accessToken, refreshToken
}
