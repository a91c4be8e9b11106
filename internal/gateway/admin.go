package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avproxygw/internal/auth"
	"github.com/vyrodovalexey/avproxygw/internal/pool"
)

// Admin actions accepted by the proxies endpoint.
const (
	actionAdd    = "add"
	actionRemove = "remove"
	actionList   = "list"
	actionClear  = "clear"
)

// proxiesRequest is the admin request body for pool mutations.
type proxiesRequest struct {
	Action string `json:"action"`
	Proxy  *struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		User string `json:"user"`
		Pass string `json:"pass"`
	} `json:"proxy"`
}

// adminMiddleware validates the admin bearer token. An unconfigured secret
// disables the surface entirely: the endpoint answers 404 as if absent.
func (g *Gateway) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := g.adminAuth.Authenticate(c.Request)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, auth.ErrAdminDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			c.Abort()
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
		}
	}
}

// handleProxies dispatches the admin pool actions. Admin mutations bypass the
// rotation guard by design: they act on the shared pool, not on any
// identity's state.
func (g *Gateway) handleProxies(c *gin.Context) {
	var req proxiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.writeError(c, fmt.Errorf("%w: malformed body", ErrInvalidProxySpec))
		return
	}

	switch req.Action {
	case actionAdd:
		g.handleProxyAdd(c, req)
	case actionRemove:
		g.handleProxyRemove(c, req)
	case actionList:
		c.JSON(http.StatusOK, gin.H{
			"proxies": g.pool.List(),
			"total":   g.pool.Len(),
		})
	case actionClear:
		removed := g.pool.Clear()
		g.metrics.SetPoolSize(0)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"removed": removed,
		})
	default:
		g.writeError(c, fmt.Errorf("%w: unknown action %q", ErrInvalidProxySpec, req.Action))
	}
}

// handleProxyAdd validates and appends one descriptor.
func (g *Gateway) handleProxyAdd(c *gin.Context, req proxiesRequest) {
	p := req.Proxy
	if p == nil || p.Host == "" || p.Port == 0 || p.User == "" || p.Pass == "" {
		g.writeError(c, fmt.Errorf("%w: add requires host, port, user and pass", ErrInvalidProxySpec))
		return
	}

	d := pool.Descriptor{Host: p.Host, Port: p.Port, User: p.User, Pass: p.Pass}
	if err := g.pool.Add(d); err != nil {
		g.writeError(c, err)
		return
	}

	g.metrics.SetPoolSize(g.pool.Len())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"proxy":   d.Redact(),
		"total":   g.pool.Len(),
	})
}

// handleProxyRemove removes the first descriptor matching host and port.
func (g *Gateway) handleProxyRemove(c *gin.Context, req proxiesRequest) {
	p := req.Proxy
	if p == nil || p.Host == "" || p.Port == 0 {
		g.writeError(c, fmt.Errorf("%w: remove requires host and port", ErrInvalidProxySpec))
		return
	}

	removed, err := g.pool.Remove(p.Host, p.Port)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.metrics.SetPoolSize(g.pool.Len())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"proxy":   removed.Redact(),
		"total":   g.pool.Len(),
	})
}
