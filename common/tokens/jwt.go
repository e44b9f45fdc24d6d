// Package tokens issues and validates the HS256 bearer tokens used by the admin API.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "leads-admin"

// Roles recognised by the admin API.
const (
	RoleSuperAdmin    = "super_admin"
	RoleClientAdmin   = "client_admin"
	RoleAccountAdmin  = "account_admin"
	RoleAccountViewer = "account_viewer"
)

// Claims identifies an operator and the tenant scope they act in.
type Claims struct {
	UserID     string   `json:"user_id"`
	Role       string   `json:"role"`
	ClientID   string   `json:"client_id,omitempty"`
	AccountIDs []string `json:"account_ids,omitempty"`
	jwt.RegisteredClaims
}

type TokenGenerator struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenGenerator(secret string, ttl time.Duration) *TokenGenerator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenGenerator{secret: []byte(secret), ttl: ttl}
}

// Generate signs a token for the given principal.
func (tg *TokenGenerator) Generate(userID, role, clientID string, accountIDs []string) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Role:       role,
		ClientID:   clientID,
		AccountIDs: accountIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tg.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tg.secret)
}

// Validate parses tokenString and returns its claims.
func (tg *TokenGenerator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tg.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !ValidRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleClientAdmin, RoleAccountAdmin, RoleAccountViewer:
		return true
	}
	return false
}
