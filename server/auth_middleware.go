package server

import (
	"net/http"
	"strings"

	autherrors "github.com/roadlog/fleet-auth/internal/errors"
	"github.com/roadlog/fleet-auth/users"
)

// RequireAuth is the authentication guard. It extracts the access token
// (cookie takes precedence over the Authorization header), verifies it,
// re-resolves the current identity from the user store, and attaches the
// identity to the request context.
func (s *Server) RequireAuth() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rawToken := extractAccessToken(r)
			if rawToken == "" {
				// Fail fast, no verification attempted.
				respondError(w, http.StatusUnauthorized, "Authentication required", "Access token required")
				return
			}

			identity, err := s.auth.Authenticate(r.Context(), rawToken)
			if err != nil {
				if autherrors.Is(err, autherrors.ErrUnauthenticated) {
					respondError(w, http.StatusUnauthorized, "Authentication required", "User not found")
					return
				}
				// Malformed and expired tokens are surfaced identically;
				// the distinction stays in the error chain for logging.
				s.log.Debug().Err(err).Msg("token rejected")
				respondError(w, http.StatusUnauthorized, "Authentication required", "Invalid token")
				return
			}

			next(w, r.WithContext(WithIdentity(r.Context(), identity)))
		}
	}
}

// RequireRoles is the authorization guard: the attached identity's role
// must be a member of the permitted set.
func (s *Server) RequireRoles(permitted ...users.Role) Middleware {
	return s.requireRoles("", permitted...)
}

// RequireSelfOrRoles additionally admits the identity whose ID matches the
// named path parameter, regardless of role. Any identity may act on itself.
func (s *Server) RequireSelfOrRoles(pathParam string, permitted ...users.Role) Middleware {
	return s.requireRoles(pathParam, permitted...)
}

func (s *Server) requireRoles(selfParam string, permitted ...users.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				respondError(w, http.StatusUnauthorized, "Authentication required", "Authentication required")
				return
			}

			if selfParam != "" && identity.ID == r.PathValue(selfParam) {
				next(w, r)
				return
			}

			if !identity.Role.In(permitted...) {
				respondError(w, http.StatusForbidden, "Access denied", "Insufficient permissions")
				return
			}

			next(w, r)
		}
	}
}

// extractAccessToken reads the token preferentially from the secure
// cookie, falling back to an Authorization: Bearer header.
func extractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
