package services

import "errors"

var (
	// ErrInvalidToken covers missing, malformed and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for correctly signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCredentials is returned by Authenticate for an unknown email
	// or a wrong password; callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
