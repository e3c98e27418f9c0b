// Package token mints and verifies the two bearer credentials used by the
// fleet API: a short-lived access token authorizing individual calls and a
// long-lived refresh token exchangeable only for a new access token. The
// two kinds are signed under disjoint secrets so compromise of one signing
// domain cannot forge the other.
package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	autherrors "github.com/roadlog/fleet-auth/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultAccessExpiry  = 15 * time.Minute
	DefaultRefreshExpiry = 7 * 24 * time.Hour
)

// Kind discriminates the signing domain a token belongs to. It is embedded
// in the claims so a token presented against the wrong domain fails shape
// validation as well as signature verification.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed payload identifying the bearer. It carries only
// non-sensitive identity fields, never the credential hash, and no
// randomness: two tokens minted in the same second for the same identity
// are identical.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Kind   Kind   `json:"typ"`
	jwtlib.RegisteredClaims
}

// Pair is the result of a successful login.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Config carries the signing secrets and lifetimes. Secrets are explicit
// constructor inputs, not process-wide state.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration // defaults to DefaultAccessExpiry
	RefreshExpiry time.Duration // defaults to DefaultRefreshExpiry
}

func (c *Config) applyDefaults() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("token secrets are required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.AccessExpiry == 0 {
		c.AccessExpiry = DefaultAccessExpiry
	}
	if c.RefreshExpiry == 0 {
		c.RefreshExpiry = DefaultRefreshExpiry
	}
	return nil
}

// Issuer mints access and refresh tokens from an identity claim.
type Issuer struct {
	config Config
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, errors.Wrap(err, "[NewIssuer]")
	}
	return &Issuer{config: cfg}, nil
}

// IssuePair signs both an access and a refresh token for the identity.
func (i *Issuer) IssuePair(userID, email string) (Pair, error) {
	accessToken, err := i.IssueAccess(userID, email)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := i.sign(userID, email, KindRefresh, i.config.RefreshSecret, i.config.RefreshExpiry)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// IssueAccess signs a fresh access token only. Used by the refresh
// exchange, which never re-mints the refresh token.
func (i *Issuer) IssueAccess(userID, email string) (string, error) {
	return i.sign(userID, email, KindAccess, i.config.AccessSecret, i.config.AccessExpiry)
}

func (i *Issuer) sign(userID, email string, kind Kind, secret string, expiry time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(expiry)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrapf(err, "[Issuer.sign] failed to sign %s token", kind)
	}
	return signed, nil
}

// Verifier validates signature, expiry, and shape of a token against one
// signing domain. Verification is purely functional over the token and the
// process-held secret.
type Verifier struct {
	config Config
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, errors.Wrap(err, "[NewVerifier]")
	}
	return &Verifier{config: cfg}, nil
}

// VerifyAccess validates a token against the access signing domain.
func (v *Verifier) VerifyAccess(raw string) (*Claims, error) {
	return v.verify(raw, KindAccess, v.config.AccessSecret)
}

// VerifyRefresh validates a token against the refresh signing domain.
func (v *Verifier) VerifyRefresh(raw string) (*Claims, error) {
	return v.verify(raw, KindRefresh, v.config.RefreshSecret)
}

func (v *Verifier) verify(raw string, kind Kind, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(raw, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(NowTimeFunc))

	if err != nil {
		// Expired is the one failure where the signature is still good.
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, autherrors.Wrapf(autherrors.ErrTokenExpired, "[Verifier.verify] %s token", kind)
		}
		return nil, autherrors.Wrapf(autherrors.ErrTokenMalformed, "[Verifier.verify] %s token: %v", kind, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, autherrors.Wrapf(autherrors.ErrTokenMalformed, "[Verifier.verify] %s token claims", kind)
	}
	if claims.Kind != kind || claims.UserID == "" {
		return nil, autherrors.Wrapf(autherrors.ErrTokenMalformed, "[Verifier.verify] wrong token kind %q", claims.Kind)
	}
	return claims, nil
}
