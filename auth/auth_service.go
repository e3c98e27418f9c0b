// Package auth implements credential verification and the dual-token
// login/refresh exchange. The design is stateless: authority derives from
// a verifiable signature plus an expiry timestamp, never from a persisted
// session record.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	autherrors "github.com/roadlog/fleet-auth/internal/errors"
	"github.com/roadlog/fleet-auth/token"
	"github.com/roadlog/fleet-auth/users"
)

// Identity is the minimal caller identity attached to a request. It is
// derived fresh from the verified token's subject each request and never
// cached beyond request lifetime.
type Identity struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  users.Role `json:"role"`
}

// LoginResult carries the outcome of a successful credential check.
type LoginResult struct {
	User         *users.User
	AccessToken  string
	RefreshToken string
}

// Service provides login, token refresh, and request-time authentication.
type Service struct {
	users    users.Repo
	issuer   *token.Issuer
	verifier *token.Verifier
	log      zerolog.Logger
	nowTime  func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(userRepo users.Repo, issuer *token.Issuer, verifier *token.Verifier, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[NewService] user repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] token issuer is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewService] token verifier is required")
	}

	service := &Service{
		users:    userRepo,
		issuer:   issuer,
		verifier: verifier,
		log:      zerolog.Nop(),
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// Login checks the credentials and mints a token pair. A missing user and
// a wrong password both collapse into ErrInvalidCredentials so the caller
// cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || !users.CheckPasswordHash(password, user.PasswordHash) {
		s.log.Warn().Str("email", email).Msg("failed login attempt")
		return nil, autherrors.ErrInvalidCredentials
	}

	pair, err := s.issuer.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] issuer.IssuePair")
	}

	s.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("successful login")

	return &LoginResult{
		User:         user.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is never sufficient to authorize a resource
// request and is never re-minted here.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.verifier.VerifyRefresh(refreshToken)
	if err != nil {
		return "", errors.Wrap(err, "[Service.Refresh] verifier.VerifyRefresh")
	}

	// Re-resolve the user so a deletion invalidates outstanding refresh
	// tokens despite their signatures still being valid.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", autherrors.Wrapf(autherrors.ErrUnauthenticated, "[Service.Refresh] user %s", claims.UserID)
	}

	accessToken, err := s.issuer.IssueAccess(user.ID, user.Email)
	if err != nil {
		return "", errors.Wrap(err, "[Service.Refresh] issuer.IssueAccess")
	}

	s.log.Info().Str("user_id", user.ID).Msg("access token refreshed")
	return accessToken, nil
}

// Authenticate verifies an access token and resolves the current identity
// from the user store by ID, not from the token's cached claims, so a role
// change or deletion takes effect immediately. This lookup is the only
// point where statelessness is deliberately broken.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.verifier.VerifyAccess(accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Authenticate] verifier.VerifyAccess")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrUnauthenticated, "[Service.Authenticate] user %s", claims.UserID)
	}

	return &Identity{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}
