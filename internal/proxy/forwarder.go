// Package proxy provides the forwarding layer: it moves request and response
// bytes through the upstream proxy selected by the routing decision.
package proxy

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/routing"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends requests through the upstream proxy chosen by a routing
// decision, attaching the upstream credentials the decision carries.
type Forwarder struct {
	transport     http.RoundTripper
	logger        *zap.Logger
	flushInterval time.Duration
	onResult      func(target string, err error)
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*Forwarder)

// WithTransport sets the transport used for upstream requests.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithForwarderLogger sets the logger for the forwarder.
func WithForwarderLogger(logger *zap.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithFlushInterval sets the flush interval for streaming responses.
func WithFlushInterval(interval time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.flushInterval = interval
	}
}

// WithResultCallback sets a callback invoked once per forwarding attempt with
// the upstream authority and the transport error, if any. Used for metrics.
func WithResultCallback(fn func(target string, err error)) ForwarderOption {
	return func(f *Forwarder) {
		f.onResult = fn
	}
}

// NewForwarder creates a forwarder.
func NewForwarder(opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		logger:        zap.NewNop(),
		flushInterval: -1, // Immediate flush
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = http.DefaultTransport
	}
	return f
}

// Forward proxies the request through the decision's upstream. Transport
// failures surface as 502 responses; they never terminate the process.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, decision routing.Decision) {
	var forwardErr error

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			f.director(req, decision, r)
		},
		Transport:     f.transport,
		FlushInterval: f.flushInterval,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			forwardErr = err
			f.handleUpstreamError(w, r, decision, err)
		},
	}

	rp.ServeHTTP(w, r)

	if f.onResult != nil {
		f.onResult(decision.Descriptor.Authority(), forwardErr)
	}
}

// director rewrites the request to travel through the upstream proxy: the
// authority becomes the upstream's host:port, the original path and query are
// preserved, and the upstream credentials are attached.
func (f *Forwarder) director(req *http.Request, decision routing.Decision, originalReq *http.Request) {
	req.URL.Scheme = decision.Target.Scheme
	req.URL.Host = decision.Target.Host

	if req.URL.Path == "" {
		req.URL.Path = originalReq.URL.Path
	}
	if originalReq.URL.RawQuery != "" {
		req.URL.RawQuery = originalReq.URL.RawQuery
	}

	// Remove hop-by-hop headers, then attach the upstream credentials.
	// Inbound caller credentials never travel upstream.
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Del("Authorization")
	if decision.ProxyAuthorization != "" {
		req.Header.Set("Proxy-Authorization", decision.ProxyAuthorization)
	}

	if clientIP, _, err := net.SplitHostPort(originalReq.RemoteAddr); err == nil {
		if prior := originalReq.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	if originalReq.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", originalReq.Host)

	req.Host = decision.Target.Host
}

// handleUpstreamError maps a forwarding failure to a 502 response.
func (f *Forwarder) handleUpstreamError(w http.ResponseWriter, r *http.Request, decision routing.Decision, err error) {
	f.logger.Error("upstream forwarding error",
		zap.String("target", decision.Descriptor.Authority()),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)

	body, _ := json.Marshal(map[string]string{
		"error":   "upstream forwarding error",
		"message": err.Error(),
	})
	_, _ = w.Write(body)
}
