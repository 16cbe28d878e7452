package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	UserID int64 `json:"uid"`
	Admin  bool  `json:"adm"`
	jwt.RegisteredClaims
}

var (
	// ErrInvalidToken indicates a malformed, forged or wrongly signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates the token is past its exp claim.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrMissingUser indicates a token without a user id.
	ErrMissingUser = errors.New("auth: token carries no user")
)
