package auth

import "errors"

// Token verification failures are deliberately distinct: the HTTP layer
// treats a missing cookie differently from a token that fails validation.
var (
	ErrMissingToken   = errors.New("auth: missing token")
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrExpiredToken   = errors.New("auth: expired token")
)
