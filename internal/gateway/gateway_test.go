package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/config"
	"github.com/vyrodovalexey/avproxygw/internal/pool"
)

// fakeClock is a manually advanced clock for deterministic cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testGateway builds a gateway over a static three-proxy pool with a fake
// clock and an instantly released rotation lock.
func testGateway(t *testing.T, mutate func(*config.Config)) (*Gateway, http.Handler, *fakeClock) {
	t.Helper()

	cfg := config.Default()
	cfg.Pool.Static = "10.0.0.1:3128:u1:p1,10.0.0.2:3128:u2:p2,10.0.0.3:3128:u3:p3"
	cfg.Rotation.SettleDelay = 0
	cfg.Admin.Token = "admintoken"
	if mutate != nil {
		mutate(cfg)
	}

	clock := newFakeClock()
	gw, err := New(cfg, zap.NewNop(), WithClock(clock))
	require.NoError(t, err)

	return gw, gw.Handler(), clock
}

func basicAuth(user string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":pw"))
}

func doRequest(handler http.Handler, method, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGateway_Current(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	proxy := body["proxy"].(map[string]interface{})
	assert.Equal(t, "10.0.0.1", proxy["host"])
	assert.Equal(t, "u1", proxy["user"])
	assert.NotContains(t, rec.Body.String(), "p1")
	assert.Equal(t, float64(1), body["index"])
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestGateway_Current_Unauthenticated(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/current", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestGateway_Current_EmptyPool(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	rec := doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateway_RotateLifecycle(t *testing.T) {
	t.Parallel()

	_, handler, clock := testGateway(t, nil)

	// First rotation moves alice from the first to the second proxy.
	rec := doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	rotation := body["rotation"].(map[string]interface{})
	assert.Equal(t, "10.0.0.1:3128", rotation["from"])
	assert.Equal(t, "10.0.0.2:3128", rotation["to"])
	assert.Equal(t, float64(6000), body["cooldownMs"])

	// An immediate second attempt is denied by the cooldown.
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body = decodeBody(t, rec)
	assert.Equal(t, float64(6000), body["cooldownSeconds"].(float64)*1000)
	assert.Greater(t, body["remainingMs"].(float64), float64(0))

	// The denial left the binding on the second proxy.
	rec = doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	proxy := decodeBody(t, rec)["proxy"].(map[string]interface{})
	assert.Equal(t, "10.0.0.2", proxy["host"])

	// Past the cooldown the next rotation succeeds.
	clock.Advance(6 * time.Second)
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	rotation = decodeBody(t, rec)["rotation"].(map[string]interface{})
	assert.Equal(t, "10.0.0.3:3128", rotation["to"])
}

func TestGateway_Rotate_IdentitiesIsolated(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Alice's cooldown does not apply to bob.
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("bob"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/current", basicAuth("carol"))
	require.Equal(t, http.StatusOK, rec.Code)
	proxy := decodeBody(t, rec)["proxy"].(map[string]interface{})
	assert.Equal(t, "10.0.0.1", proxy["host"])
}

func TestGateway_Rotate_EmptyPool(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	rec := doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The failed attempt consumed no cooldown.
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateway_Status(t *testing.T) {
	t.Parallel()

	_, handler, clock := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/status", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	rotation := body["rotation"].(map[string]interface{})
	assert.Equal(t, false, rotation["locked"])
	assert.Equal(t, true, rotation["canRotate"])
	assert.Nil(t, rotation["lastRotation"])
	assert.Equal(t, float64(3), body["poolSize"])
	assert.NotNil(t, body["memory"])

	// After a rotation the guard reports the cooldown.
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	clock.Advance(2 * time.Second)

	rec = doRequest(handler, http.MethodGet, "/status", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	rotation = decodeBody(t, rec)["rotation"].(map[string]interface{})
	assert.Equal(t, false, rotation["canRotate"])
	assert.Equal(t, float64(4000), rotation["remainingMs"])
	assert.NotNil(t, rotation["lastRotation"])
}

func TestGateway_Status_EmptyPool(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	// Status stays reachable without proxies; the proxy view is null.
	rec := doRequest(handler, http.MethodGet, "/status", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Nil(t, body["proxy"])
	assert.Equal(t, float64(0), body["poolSize"])
}

func TestGateway_ResetCooldown(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doRequest(handler, http.MethodPost, "/reset-cooldown", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cleared"])

	// The identity restarted at the first proxy with a cold guard.
	rec = doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	proxy := decodeBody(t, rec)["proxy"].(map[string]interface{})
	assert.Equal(t, "10.0.0.1", proxy["host"])

	rec = doRequest(handler, http.MethodPost, "/rotate", basicAuth("alice"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Resetting an untracked identity reports cleared=false.
	rec = doRequest(handler, http.MethodPost, "/reset-cooldown", basicAuth("nobody"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["cleared"])
}

func TestGateway_HealthEndpoints(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_Readiness_EmptyPool(t *testing.T) {
	t.Parallel()

	gw, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	rec := doRequest(handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Adding a proxy flips readiness without a restart.
	require.NoError(t, gw.Pool().Add(poolDescriptor("10.0.0.1", 3128)))
	rec = doRequest(handler, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_Metrics(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "proxygw_")
}

func TestGateway_Forward(t *testing.T) {
	t.Parallel()

	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("through the proxy"))
	}))
	defer upstream.Close()

	host, port := splitHostPort(t, upstream.URL)
	gw, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})
	require.NoError(t, gw.Pool().Add(poolDescriptorWithCreds(host, port, "pu", "pp")))

	rec := doRequest(handler, http.MethodGet, "/anything/else?q=1", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "through the proxy", rec.Body.String())

	require.NotNil(t, got)
	assert.Equal(t, "/anything/else", got.URL.Path)
	assert.Equal(t, "q=1", got.URL.RawQuery)

	// Upstream credentials travel out; caller credentials do not.
	assert.Equal(t, "Basic cHU6cHA=", got.Header.Get("Proxy-Authorization"))
	assert.Empty(t, got.Header.Get("Authorization"))

	// The attempt landed in alice's ledger.
	rec = doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["connections"])
}

func TestGateway_Forward_Unauthenticated(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doRequest(handler, http.MethodGet, "/anything", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateway_Forward_EmptyPool(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	rec := doRequest(handler, http.MethodGet, "/anything", basicAuth("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateway_Forward_UpstreamDown(t *testing.T) {
	t.Parallel()

	gw, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})
	require.NoError(t, gw.Pool().Add(poolDescriptor("127.0.0.1", 1)))

	rec := doRequest(handler, http.MethodGet, "/anything", basicAuth("alice"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGateway_New_SeedsFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	content := "10.1.0.1:3128:u1:p1\n10.1.0.2:3128:u2:p2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := config.Default()
	cfg.Pool.File = path
	cfg.Rotation.SettleDelay = 0

	gw, err := New(cfg, zap.NewNop(), WithClock(newFakeClock()))
	require.NoError(t, err)
	assert.Equal(t, 2, gw.Pool().Len())
}

func TestGateway_New_InvalidProxiesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o600))

	cfg := config.Default()
	cfg.Pool.File = path

	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy list file")
}

func TestGateway_New_InvalidStaticList(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Pool.Static = "not-a-proxy"

	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static proxy list")
}

func TestGateway_New_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()

	u := strings.TrimPrefix(rawURL, "http://")
	host, portStr, ok := strings.Cut(u, ":")
	require.True(t, ok)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func poolDescriptor(host string, port int) pool.Descriptor {
	return poolDescriptorWithCreds(host, port, "u", "p")
}

func poolDescriptorWithCreds(host string, port int, user, pass string) pool.Descriptor {
	return pool.Descriptor{Host: host, Port: port, User: user, Pass: pass}
}
