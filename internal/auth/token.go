package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vasiliy-maslov/estore/internal/user"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity claims issued by the auth provider.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(raw string) (user.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return user.Identity{}, ErrInvalidToken
	}

	return user.Identity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		PhotoURL: claims.Picture,
	}, nil
}

// Sign issues a token for identity. Used by tests and local tooling; in
// production tokens come from the auth provider.
func (v *TokenVerifier) Sign(identity user.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:   identity.Email,
		Name:    identity.Name,
		Picture: identity.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
