package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// Verifier validates HS256 bearer tokens and turns them into identities.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier constructs a Verifier. An empty issuer skips the iss check.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 bytes")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify parses the token and returns the caller identity.
func (v *Verifier) Verify(token string) (shared.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return shared.Identity{}, ErrExpiredToken
		}
		return shared.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return shared.Identity{}, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return shared.Identity{}, ErrMissingUser
	}
	return shared.Identity{UserID: claims.UserID, Admin: claims.Admin}, nil
}

// Issue signs a token for id. Used by tests and local tooling; production
// tokens come from the identity provider.
func (v *Verifier) Issue(id shared.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		UserID: id.UserID,
		Admin:  id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
