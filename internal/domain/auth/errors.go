package auth

import (
	"errors"
)

// Sentinel kinds for authentication errors.
var (
	ErrMissingToken   = errors.New("missing auth token")
	ErrInvalidToken   = errors.New("invalid auth token")
	ErrExpiredToken   = errors.New("expired auth token")
	ErrTenantMismatch = errors.New("token not valid for this tenant")
)
