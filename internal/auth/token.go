package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when the stored token cannot be parsed.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned when the stored token is past its expiry.
	ErrExpiredToken = errors.New("expired token")
)

// Claims mirrors the identity claims the hub embeds in session tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"is_guest"`
	jwt.RegisteredClaims
}

// Inspect parses the token without verifying its signature. The hub is the
// verifier; the client only needs the embedded identity and expiry to skip
// a doomed resume and to build the pre-ack sender snapshot.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// Usable reports whether a resume attempt with this token is worth making.
// Empty or malformed tokens and tokens already past expiry are not.
func Usable(token string) error {
	if token == "" {
		return ErrMalformedToken
	}
	claims, err := Inspect(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return ErrExpiredToken
	}
	return nil
}
