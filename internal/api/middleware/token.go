package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// minSecretLength matches the auth.jwt_secret validation rule.
const minSecretLength = 32

// clockSkew is the leeway applied to time-based claims.
const clockSkew = 2 * time.Minute

// Claims are the verified contents of an operator token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenVerifier validates operator bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// HMACVerifier verifies HS256 tokens issued by the authentication collaborator.
type HMACVerifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

var _ TokenVerifier = (*HMACVerifier)(nil)

// NewHMACVerifier creates a verifier for the shared secret. A non-empty issuer
// is required to match the token's iss claim.
func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	return &HMACVerifier{key: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify parses and validates token.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	log := logger.FromContext(ctx)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		log.Debug("token validation failed: expired")
		return nil, ErrExpiredToken
	case err != nil:
		log.Debug("token validation failed", "error", err)
		return nil, ErrInvalidToken
	case !parsed.Valid || claims.Subject == "":
		return nil, ErrInvalidToken
	}

	return &Claims{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Issue signs a token for subject valid for ttl. It is used to mint operator
// tokens from the server binary.
func (v *HMACVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}
