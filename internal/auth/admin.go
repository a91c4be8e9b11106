package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptPrefixes identify a configured secret stored as a bcrypt hash.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// AdminAuthenticator validates the bearer token guarding the administrative
// surface. An unconfigured secret disables the surface entirely rather than
// leaving it open.
type AdminAuthenticator struct {
	secret   string
	isBcrypt bool
}

// NewAdminAuthenticator creates an authenticator for the given secret.
// A secret starting with a bcrypt version prefix is treated as a hash;
// anything else is compared in constant time.
func NewAdminAuthenticator(secret string) *AdminAuthenticator {
	a := &AdminAuthenticator{secret: secret}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(secret, p) {
			a.isBcrypt = true
			break
		}
	}
	return a
}

// Enabled reports whether the admin surface is configured at all.
func (a *AdminAuthenticator) Enabled() bool {
	return a.secret != ""
}

// Authenticate validates the request's bearer token. It returns
// ErrAdminDisabled when no secret is configured and ErrAdminForbidden when
// the token does not match.
func (a *AdminAuthenticator) Authenticate(r *http.Request) error {
	if !a.Enabled() {
		return ErrAdminDisabled
	}

	token := extractBearer(r)
	if token == "" {
		return ErrAdminForbidden
	}

	if a.isBcrypt {
		if err := bcrypt.CompareHashAndPassword([]byte(a.secret), []byte(token)); err != nil {
			return ErrAdminForbidden
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(a.secret), []byte(token)) != 1 {
		return ErrAdminForbidden
	}
	return nil
}

// extractBearer extracts a bearer token from the Authorization header.
func extractBearer(r *http.Request) string {
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}
