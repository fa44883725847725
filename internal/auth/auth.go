// Package auth resolves the acting clinician for a request: the `sub` claim
// of an HS256 bearer token, or the X-Actor header in development mode.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// ActorHeader carries the actor identity in development mode.
const ActorHeader = "X-Actor"

// Modes.
const (
	ModeDevelopment = "development"
	ModeJWT         = "jwt"
)

type ctxKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(ctxKey{}).(string)
	return a, ok && a != ""
}

// Authenticator resolves actors from requests.
type Authenticator struct {
	mode   string
	secret []byte
	issuer string
}

// New returns an Authenticator. Mode jwt requires a secret.
func New(mode string, secret []byte, issuer string) (*Authenticator, error) {
	switch mode {
	case ModeDevelopment:
	case ModeJWT:
		if len(secret) == 0 {
			return nil, domain.NewError(domain.ErrConfigInvalid, "jwt mode requires a signing secret")
		}
	default:
		return nil, domain.NewError(domain.ErrConfigInvalid, fmt.Sprintf("unknown auth mode %q", mode))
	}
	return &Authenticator{mode: mode, secret: secret, issuer: issuer}, nil
}

// Mode returns the configured mode.
func (a *Authenticator) Mode() string { return a.mode }

// Resolve returns the actor for r or an ErrUnauthenticated-derived error.
func (a *Authenticator) Resolve(r *http.Request) (string, error) {
	if a.mode == ModeDevelopment {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			return "", domain.NewError(domain.ErrUnauthenticated, "missing "+ActorHeader+" header")
		}
		return actor, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.NewError(domain.ErrUnauthenticated, "missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.NewError(domain.ErrUnauthenticated, "invalid authorization format")
	}
	return a.verify(strings.TrimSpace(parts[1]))
}

func (a *Authenticator) verify(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", domain.NewError(domain.ErrUnauthenticated, "token expired")
		}
		return "", domain.NewError(domain.ErrUnauthenticated, "invalid token")
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", domain.NewError(domain.ErrUnauthenticated, "token has no subject")
	}
	return sub, nil
}

// IssueToken signs an HS256 token for subject, valid for ttl.
func IssueToken(secret []byte, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
