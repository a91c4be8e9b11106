package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the client IP for the request: the first entry of
// X-Forwarded-For when present, otherwise RemoteAddr with the port stripped.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return stripPort(r.RemoteAddr)
}

// stripPort removes the port from an address string. Handles both
// "192.168.1.1:8080" and "[::1]:8080" formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
