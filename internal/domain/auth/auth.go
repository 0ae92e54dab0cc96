// Package auth validates session tokens and resolves tenant attribution for
// telemetry containers. Token issuance lives in the identity service; this
// package only verifies.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Container naming conventions. Personal containers are single-tenant and may
// ingest without a token; organization containers always require one.
const (
	personalContainerPrefix = "personal-"
	orgContainerPrefix      = "org-"
)

// Claims extends standard JWT claims with tenant attribution. Subject carries
// the subject (learner) identifier.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
}

// Identity is the resolved caller identity.
type Identity struct {
	SubjectID string
	TenantID  string
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenManager verifies HMAC-signed tokens issued by the identity service.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager creates a token manager for one signing secret.
func NewTokenManager(secret []byte, issuer string) *TokenManager {
	return &TokenManager{secret: secret, issuer: issuer}
}

// Verify parses and validates a token string.
func (tm *TokenManager) Verify(_ context.Context, tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{SubjectID: claims.Subject, TenantID: claims.TenantID}, nil
}

// Sign issues a token for an identity. Used by tests and the sim client; the
// production issuer is external.
func (tm *TokenManager) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: identity.TenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// IsPersonalContainer reports whether a container follows the single-tenant
// naming convention.
func IsPersonalContainer(containerID string) bool {
	return strings.HasPrefix(containerID, personalContainerPrefix) &&
		len(containerID) > len(personalContainerPrefix)
}

// SubjectFromPersonalContainer derives the owning subject from a personal
// container name.
func SubjectFromPersonalContainer(containerID string) (string, bool) {
	if !IsPersonalContainer(containerID) {
		return "", false
	}
	return containerID[len(personalContainerPrefix):], true
}

// ContainerTenant derives the owning tenant from an organization container
// name ("org-<tenant>" or "org-<tenant>-<suffix>").
func ContainerTenant(containerID string) (string, bool) {
	if !strings.HasPrefix(containerID, orgContainerPrefix) {
		return "", false
	}
	rest := containerID[len(orgContainerPrefix):]
	if rest == "" {
		return "", false
	}
	if idx := strings.Index(rest, "-"); idx > 0 {
		return rest[:idx], true
	}
	return rest, true
}

// KnownContainer reports whether the container id matches any supported
// naming convention.
func KnownContainer(containerID string) bool {
	if IsPersonalContainer(containerID) {
		return true
	}
	_, ok := ContainerTenant(containerID)
	return ok
}
