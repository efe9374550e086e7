package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeOps is the scope required to trigger harvesting passes over the API.
const ScopeOps = "ops"

// Claims is the token payload accepted by the API. Scope is a
// space-separated list of grants; Subject identifies the caller.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope reports whether the space-separated scope claim contains want.
func (c *Claims) HasScope(want string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == want {
			return true
		}
	}
	return false
}

// LoadRSAPublicKeyFromEnv loads an RSA public key from a PEM string stored
// in the given environment variable. Escaped newlines are tolerated so the
// PEM can live in a single-line env value.
func LoadRSAPublicKeyFromEnv(envVar string) (*rsa.PublicKey, error) {
	pemStr := os.Getenv(envVar)
	if strings.TrimSpace(pemStr) == "" {
		return nil, fmt.Errorf("%s is empty", envVar)
	}

	pemStr = strings.ReplaceAll(pemStr, `\n`, "\n")

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
	if err != nil {
		return nil, fmt.Errorf("parse RSA public key from %s: %w", envVar, err)
	}
	return key, nil
}

// ParseAndValidateRS256 parses tokenString, enforcing RS256 and standard
// time-based claims with a small leeway for clock skew.
func ParseAndValidateRS256(tokenString string, pub *rsa.PublicKey) (*Claims, error) {
	if pub == nil {
		return nil, errors.New("nil public key")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}
			return pub, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Scope) == "" {
		return nil, errors.New("scope claim missing")
	}
	return claims, nil
}

// SignRS256ForTests mints a short-lived token for tests and local tooling.
func SignRS256ForTests(priv *rsa.PrivateKey, subject, scope string, ttl time.Duration) (string, error) {
	if priv == nil {
		return "", errors.New("nil private key")
	}

	now := time.Now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "pricetrail",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
