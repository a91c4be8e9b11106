// Package auth provides caller identity resolution and admin authentication
// for the gateway.
//
// Identity derivation is a pluggable capability: the shipped BasicResolver
// trusts the claimed Basic username without verifying the password. A
// verifying resolver can replace it without touching the rotation core.
package auth

import (
	"errors"
	"net/http"
)

// Sentinel errors for authentication.
var (
	// ErrUnauthenticated indicates missing or unparseable caller credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAdminDisabled indicates that no admin secret is configured and the
	// admin surface is therefore disabled.
	ErrAdminDisabled = errors.New("admin surface disabled")

	// ErrAdminForbidden indicates an invalid admin token.
	ErrAdminForbidden = errors.New("invalid admin token")
)

// IdentityResolver extracts a caller identity from an inbound request.
type IdentityResolver interface {
	// Resolve returns the caller identity or ErrUnauthenticated.
	Resolve(r *http.Request) (string, error)
}
