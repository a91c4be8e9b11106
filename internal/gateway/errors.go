package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/auth"
	"github.com/vyrodovalexey/avproxygw/internal/pool"
	"github.com/vyrodovalexey/avproxygw/internal/rotation"
)

// ErrInvalidProxySpec indicates an admin add request with missing fields.
var ErrInvalidProxySpec = errors.New("invalid proxy spec")

// writeError maps a domain error to its HTTP response. Every failure is
// handled here, at the boundary where it is detected; none propagate past
// the request handler.
func (g *Gateway) writeError(c *gin.Context, err error) {
	var cooldownErr *rotation.CooldownError

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		c.Header("WWW-Authenticate", `Basic realm="proxy gateway"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})

	case errors.As(err, &cooldownErr):
		g.metrics.RecordRotationDenial("cooldown")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":           "rotation cooldown active",
			"remainingMs":     cooldownErr.Remaining.Milliseconds(),
			"cooldownSeconds": cooldownErr.Cooldown.Seconds(),
		})

	case errors.Is(err, rotation.ErrRotationInProgress):
		g.metrics.RecordRotationDenial("in_progress")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rotation already in progress"})

	case errors.Is(err, pool.ErrNoProxies):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no proxies available"})

	case errors.Is(err, pool.ErrProxyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "proxy not found"})

	case errors.Is(err, pool.ErrDuplicateProxy):
		c.JSON(http.StatusConflict, gin.H{"error": "proxy already exists"})

	case errors.Is(err, ErrInvalidProxySpec):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		g.logger.Error("internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
