// Package auth mints and verifies the HS256 access tokens that carry the
// caller's verified identity.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/server/identity"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims plus the user id and role.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

// GenerateToken signs a token for id valid for validityDuration.
func GenerateToken(id identity.Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: id.UserID,
		Role:   id.Role,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies tokenString and returns the identity it carries.
// Expired tokens yield common.ErrTokenExpired; any other failure yields
// common.ErrInvalidToken (wrapping the parser error).
func ParseToken(tokenString string, secretKey []byte) (identity.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Identity{}, common.ErrTokenExpired
		}
		return identity.Identity{}, errors.Join(common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return identity.Identity{}, common.ErrInvalidToken
	}

	return identity.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
