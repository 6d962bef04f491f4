package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is stamped on and required of every access token.
	Issuer = "airlink"

	// DefaultTTL applies when the configured TTL is not positive.
	DefaultTTL = 15 * time.Minute
)

// Claims are the access token claims. Subject is the client id.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateAccessToken signs an HS256 access token for clientID. A
// non-positive ttl uses DefaultTTL. The effective ttl is returned so
// callers can report expires_in.
func GenerateAccessToken(clientID, secret string, ttl time.Duration) (string, time.Duration, error) {
	if secret == "" {
		return "", 0, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", 0, fmt.Errorf("signing access token: %w", err)
	}
	return signed, ttl, nil
}

// ParseToken validates signature, algorithm, issuer and expiry and returns
// the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
