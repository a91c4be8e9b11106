// Package routing makes the per-request forwarding decision: which upstream
// proxy a request goes through and which upstream credentials it carries.
package routing

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/pool"
	"github.com/vyrodovalexey/avproxygw/internal/rotation"
)

// Decision is the routing outcome handed to the forwarding layer. The router
// never performs byte transport itself.
type Decision struct {
	// Target is the upstream proxy authority the request is sent through.
	Target *url.URL

	// Descriptor is the selected upstream proxy.
	Descriptor pool.Descriptor

	// Index is the 1-based position of the descriptor in the pool.
	Index int

	// Total is the pool length at decision time.
	Total int

	// ProxyAuthorization is the upstream credential header value derived
	// from the descriptor's user and password.
	ProxyAuthorization string
}

// Router resolves an inbound request plus identity to a forwarding decision.
type Router struct {
	selector *rotation.Selector
	clock    rotation.Clock
	logger   *zap.Logger
}

// New creates a router over the given selector.
func New(selector *rotation.Selector, clock rotation.Clock, logger *zap.Logger) *Router {
	if clock == nil {
		clock = rotation.RealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{selector: selector, clock: clock, logger: logger}
}

// Decide selects the identity's current upstream, records the attempt in the
// identity's ledger and builds the target plus upstream credentials. An empty
// pool is rejected with pool.ErrNoProxies; the request must never be forwarded
// to a fallback destination.
func (rt *Router) Decide(r *http.Request, identity string) (Decision, error) {
	sel, err := rt.selector.CurrentFor(identity)
	if err != nil {
		return Decision{}, err
	}

	d := sel.Descriptor
	target := &url.URL{
		Scheme: "http",
		Host:   d.Authority(),
	}

	rt.selector.Store().RecordConnection(identity, rotation.Record{
		Target:    d.Authority(),
		Path:      r.URL.Path,
		Method:    r.Method,
		Timestamp: rt.clock.Now(),
		Agent:     r.UserAgent(),
	})

	rt.logger.Debug("routing decision",
		zap.String("identity", identity),
		zap.String("target", d.Authority()),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)

	return Decision{
		Target:             target,
		Descriptor:         d,
		Index:              sel.Index,
		Total:              sel.Total,
		ProxyAuthorization: ProxyAuthorization(d),
	}, nil
}

// ProxyAuthorization builds the Proxy-Authorization header value for the
// descriptor's credentials.
func ProxyAuthorization(d pool.Descriptor) string {
	creds := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", d.User, d.Pass)))
	return "Basic " + creds
}
