package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LoginHandler verifies credentials and issues the token pair, both in the
// body and as httpOnly cookies.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "Validation failed", "Email and password are required")
			return
		}

		result, err := s.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			// Never reveal whether the email existed.
			respondError(w, http.StatusUnauthorized, "Login failed", "Invalid credentials")
			return
		}

		s.setTokenCookie(w, AccessTokenCookie, result.AccessToken, s.config.GetAccessTokenExpiry())
		s.setTokenCookie(w, RefreshTokenCookie, result.RefreshToken, s.config.GetRefreshTokenExpiry())

		respondSuccess(w, http.StatusOK, "User logged in successfully", map[string]interface{}{
			"user":         result.User,
			"accessToken":  result.AccessToken,
			"refreshToken": result.RefreshToken,
			"loginTime":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// RefreshHandler exchanges a refresh token (body first, cookie fallback)
// for a new access token.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		refreshToken := req.RefreshToken
		if refreshToken == "" {
			if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
				refreshToken = cookie.Value
			}
		}
		if refreshToken == "" {
			respondError(w, http.StatusUnauthorized, "Token refresh failed", "Refresh token is required")
			return
		}

		accessToken, err := s.auth.Refresh(r.Context(), refreshToken)
		if err != nil {
			s.log.Debug().Err(err).Msg("refresh rejected")
			respondError(w, http.StatusUnauthorized, "Token refresh failed", "Invalid refresh token")
			return
		}

		s.setTokenCookie(w, AccessTokenCookie, accessToken, s.config.GetAccessTokenExpiry())

		respondSuccess(w, http.StatusOK, "Access token refreshed successfully", map[string]interface{}{
			"accessToken": accessToken,
			"refreshTime": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LogoutHandler clears both token cookies. The server holds no token
// state, so logout is purely a cookie teardown and always succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clearTokenCookie(w, AccessTokenCookie)
		s.clearTokenCookie(w, RefreshTokenCookie)

		respondSuccess(w, http.StatusOK, "User logged out successfully", map[string]interface{}{
			"logoutTime": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) setTokenCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearTokenCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteStrictMode,
	})
}
