package core

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
)

// IdentityClaims is the subset of the bearer token claims the client cares
// about. The server signs and verifies the token; client-side the claims are
// read without verification, only to know who the current user is.
type IdentityClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the current user as derived from the bearer token.
type Identity struct {
	UserID   string
	Username string
}

// IdentityFromToken extracts the current user from a bearer token without
// verifying the signature.
func IdentityFromToken(token string) (*Identity, error) {
	claims := &IdentityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrTokenInvalid
	}
	id := &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
	}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return id, nil
}
