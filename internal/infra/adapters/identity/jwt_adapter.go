package identity

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"analysis-tracker/internal/config"
	"analysis-tracker/internal/domain"
	"analysis-tracker/internal/domain/ports/adapter"

	"github.com/golang-jwt/jwt/v5"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.IdentityAdapter = (*JWTAdapter)(nil)

type sessionClaims struct {
	jwt.RegisteredClaims
}

// JWTAdapter inspects the locally held identity-provider session token.
// The token lives in a file the provider's native flow writes after sign-in;
// an absent, malformed, or expired token simply means "signed out" rather
// than an error.
type JWTAdapter struct {
	secret    []byte
	tokenPath string
	signInURL string
	grace     time.Duration
}

func NewJWTAdapter(cfg config.IdentityConfig) *JWTAdapter {
	return &JWTAdapter{
		secret:    []byte(cfg.JWTSecret),
		tokenPath: cfg.TokenPath,
		signInURL: cfg.SignInURL,
		grace:     cfg.SessionGrace,
	}
}

func (a *JWTAdapter) CurrentSession(ctx context.Context) (*adapter.Session, error) {
	if a.tokenPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(a.tokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	claims := &sessionClaims{}
	tkn, err := jwt.ParseWithClaims(strings.TrimSpace(string(raw)), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, nil
	}

	sess := &adapter.Session{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
		// A session about to lapse is as good as gone for a submission that
		// will poll for minutes.
		if time.Until(sess.ExpiresAt) < a.grace {
			return nil, nil
		}
	}
	return sess, nil
}

func (a *JWTAdapter) BeginSignIn(ctx context.Context, returnPath string) (string, error) {
	if a.signInURL == "" {
		return "", domain.ErrRedirectFailed
	}
	u, err := url.Parse(a.signInURL)
	if err != nil {
		return "", domain.ErrRedirectFailed
	}
	q := u.Query()
	q.Set("return_to", returnPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
