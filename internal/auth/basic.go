package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Credential headers checked by the BasicResolver, in order. Forward-proxy
// callers conventionally authenticate with Proxy-Authorization; plain API
// callers use Authorization.
var basicHeaders = []string{"Proxy-Authorization", "Authorization"}

// BasicResolver derives the caller identity from HTTP Basic credentials.
// The claimed username is trusted as the identity; the password is decoded
// but not verified. The name makes the trust model explicit so that a
// verifying implementation can be substituted.
type BasicResolver struct{}

// NewBasicResolver creates a BasicResolver.
func NewBasicResolver() *BasicResolver {
	return &BasicResolver{}
}

// Resolve implements IdentityResolver.
func (br *BasicResolver) Resolve(r *http.Request) (string, error) {
	for _, header := range basicHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}

		username, ok := parseBasic(value)
		if !ok {
			continue
		}
		return username, nil
	}

	return "", fmt.Errorf("%w: no basic credentials", ErrUnauthenticated)
}

// parseBasic decodes a "Basic base64(user:pass)" header value and returns
// the username.
func parseBasic(value string) (string, bool) {
	const prefix = "Basic "
	if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value[len(prefix):]))
	if err != nil {
		return "", false
	}

	username, _, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

// Ensure BasicResolver implements IdentityResolver.
var _ IdentityResolver = (*BasicResolver)(nil)
