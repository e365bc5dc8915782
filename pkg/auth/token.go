// Package auth implements the service-to-service bearer token check. The
// ledger sits behind the platform gateway; callers present a short-lived
// HS256 JWT naming the calling service.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// ServiceClaims is the typed JWT presented by internal callers.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// MintServiceToken issues a signed token for the named caller. Used by the
// local tooling and by tests; production tokens come from the gateway.
func MintServiceToken(cfg config.AuthConfig, now time.Time, service string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("auth secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("auth issuer is required")
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return "", fmt.Errorf("service name is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseServiceToken validates the token string and returns typed claims.
func ParseServiceToken(cfg config.AuthConfig, tokenString string) (*ServiceClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}

	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Service) == "" {
		return nil, fmt.Errorf("token missing service claim")
	}
	return claims, nil
}
