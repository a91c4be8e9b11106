package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/pool"
	"github.com/vyrodovalexey/avproxygw/internal/rotation"
)

func newTestRouter(t *testing.T, hosts ...string) (*Router, *rotation.Store) {
	t.Helper()

	p := pool.New()
	for _, h := range hosts {
		require.NoError(t, p.Add(pool.Descriptor{Host: h, Port: 3128, User: "pu", Pass: "pp"}))
	}

	store := rotation.NewStore(rotation.WithSettleDelay(0))
	selector := rotation.NewSelector(p, store, zap.NewNop())
	return New(selector, nil, zap.NewNop()), store
}

func TestRouter_Decide(t *testing.T) {
	t.Parallel()

	rt, store := newTestRouter(t, "10.0.0.1", "10.0.0.2")

	r := httptest.NewRequest(http.MethodGet, "http://example.com/lookup?q=1", nil)
	r.Header.Set("User-Agent", "test-agent")

	d, err := rt.Decide(r, "alice")
	require.NoError(t, err)

	assert.Equal(t, "http", d.Target.Scheme)
	assert.Equal(t, "10.0.0.1:3128", d.Target.Host)
	assert.Equal(t, 1, d.Index)
	assert.Equal(t, 2, d.Total)
	assert.Equal(t, ProxyAuthorization(d.Descriptor), d.ProxyAuthorization)

	// The decision was recorded in the identity's ledger.
	records := store.Records("alice")
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1:3128", records[0].Target)
	assert.Equal(t, "/lookup", records[0].Path)
	assert.Equal(t, http.MethodGet, records[0].Method)
	assert.Equal(t, "test-agent", records[0].Agent)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestRouter_Decide_EmptyPool(t *testing.T) {
	t.Parallel()

	rt, store := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := rt.Decide(r, "alice")
	assert.ErrorIs(t, err, pool.ErrNoProxies)

	// A rejected request leaves no ledger entry.
	assert.Equal(t, 0, store.ConnectionCount("alice"))
}

func TestRouter_Decide_FollowsRotation(t *testing.T) {
	t.Parallel()

	rt, _ := newTestRouter(t, "10.0.0.1", "10.0.0.2")

	selector := rt.selector
	_, err := selector.Rotate("alice")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	d, err := rt.Decide(r, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:3128", d.Target.Host)

	// Other identities are unaffected by alice's rotation.
	d, err = rt.Decide(r, "bob")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:3128", d.Target.Host)
}

func TestProxyAuthorization(t *testing.T) {
	t.Parallel()

	d := pool.Descriptor{Host: "10.0.0.1", Port: 3128, User: "user", Pass: "pass"}

	// base64("user:pass")
	assert.Equal(t, "Basic dXNlcjpwYXNz", ProxyAuthorization(d))
}
