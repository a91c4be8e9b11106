package gateway

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avproxygw/internal/observability"
)

// identityKey is the gin context key holding the resolved caller identity.
const identityKey = "identity"

// registerRoutes wires the control surface and the catch-all forwarding path.
func (g *Gateway) registerRoutes(engine *gin.Engine) {
	engine.Use(g.metricsMiddleware())

	identified := engine.Group("/", g.identityMiddleware())
	identified.GET("/current", g.handleCurrent)
	identified.POST("/rotate", g.handleRotate)
	identified.GET("/status", g.handleStatus)
	identified.POST("/reset-cooldown", g.handleResetCooldown)

	engine.POST("/api/proxies", g.adminMiddleware(), g.handleProxies)

	engine.GET("/healthz", gin.WrapF(g.checker.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(g.checker.ReadinessHandler()))
	if g.cfg.Metrics.Enabled {
		path := g.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(g.metrics.Handler()))
	}

	// Everything else travels through the caller's bound upstream.
	engine.NoRoute(g.handleForward)
}

// metricsMiddleware records request counts and latency per endpoint. The
// forwarding path reports as "forward" to keep label cardinality bounded.
func (g *Gateway) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "forward"
		}
		g.metrics.RecordRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// identityMiddleware resolves the caller identity or rejects with 401.
func (g *Gateway) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.resolver.Resolve(c.Request)
		if err != nil {
			g.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Request = c.Request.WithContext(
			observability.ContextWithIdentity(c.Request.Context(), identity),
		)
		c.Next()
	}
}

// handleCurrent reports the identity's current upstream without side effects
// on rotation state.
func (g *Gateway) handleCurrent(c *gin.Context) {
	identity := c.GetString(identityKey)

	sel, err := g.selector.CurrentFor(identity)
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proxy":       sel.Descriptor.Redact(),
		"index":       sel.Index,
		"total":       sel.Total,
		"connections": g.store.ConnectionCount(identity),
		"timestamp":   g.clock.Now().UTC().Format(time.RFC3339),
	})
}

// handleRotate advances the identity to the next upstream, guarded by the
// cooldown and single-flight gates.
func (g *Gateway) handleRotate(c *gin.Context) {
	identity := c.GetString(identityKey)

	rot, err := g.selector.Rotate(identity)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.metrics.RecordRotation()
	g.metrics.SetTrackedIdentities(g.store.Len())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rotation": gin.H{
			"from":  rot.From.Authority(),
			"to":    rot.To.Authority(),
			"index": rot.Index,
			"total": rot.Total,
		},
		"proxy":      rot.To.Redact(),
		"cooldownMs": g.store.Cooldown().Milliseconds(),
	})
}

// handleStatus reports the identity's full rotation picture plus process
// stats. It works against an empty pool: the proxy field is simply null.
func (g *Gateway) handleStatus(c *gin.Context) {
	identity := c.GetString(identityKey)

	var proxyView interface{}
	if sel, err := g.selector.CurrentFor(identity); err == nil {
		proxyView = gin.H{
			"proxy": sel.Descriptor.Redact(),
			"index": sel.Index,
			"total": sel.Total,
		}
	}

	guard := g.store.Snapshot(identity)
	var lastRotation interface{}
	if !guard.LastRotation.IsZero() {
		lastRotation = guard.LastRotation.UTC().Format(time.RFC3339)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"proxy":       proxyView,
		"connections": g.store.ConnectionCount(identity),
		"rotation": gin.H{
			"locked":       guard.Locked,
			"lastRotation": lastRotation,
			"canRotate":    guard.CanRotate,
			"remainingMs":  guard.Remaining.Milliseconds(),
		},
		"poolSize": g.pool.Len(),
		"uptime":   g.checker.Uptime().String(),
		"memory": gin.H{
			"allocBytes": mem.Alloc,
			"sysBytes":   mem.Sys,
			"numGC":      mem.NumGC,
		},
	})
}

// handleResetCooldown clears all rotation state for the identity. Debug
// operation: the identity restarts at index 0 with a cold guard.
func (g *Gateway) handleResetCooldown(c *gin.Context) {
	identity := c.GetString(identityKey)

	cleared := g.store.Reset(identity)
	g.metrics.SetTrackedIdentities(g.store.Len())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cleared": cleared,
	})
}

// handleForward is the catch-all data path: resolve identity, decide the
// upstream, hand off to the forwarding layer. Rejections happen here, before
// any bytes move; the request is never forwarded to a fallback destination.
func (g *Gateway) handleForward(c *gin.Context) {
	identity, err := g.resolver.Resolve(c.Request)
	if err != nil {
		g.writeError(c, err)
		return
	}

	c.Request = c.Request.WithContext(
		observability.ContextWithIdentity(c.Request.Context(), identity),
	)

	decision, err := g.router.Decide(c.Request, identity)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.forwarder.Forward(c.Writer, c.Request, decision)
}
