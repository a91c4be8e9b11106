package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avproxygw/internal/config"
)

func doAdminRequest(handler http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/proxies", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Admin.Token = ""
	})

	// No token configured: the surface answers 404 even to valid-looking
	// requests.
	rec := doAdminRequest(handler, "whatever", `{"action":"list"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_Forbidden(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "wrongtoken", `{"action":"list"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doAdminRequest(handler, "", `{"action":"list"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_List(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken", `{"action":"list"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["total"])

	proxies := body["proxies"].([]interface{})
	require.Len(t, proxies, 3)
	first := proxies[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.1", first["host"])
	assert.Equal(t, "u1", first["user"])

	// Passwords never appear in listings.
	assert.NotContains(t, rec.Body.String(), "p1")
}

func TestAdmin_Add(t *testing.T) {
	t.Parallel()

	gw, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken",
		`{"action":"add","proxy":{"host":"10.0.0.9","port":3128,"user":"u9","pass":"p9"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, 4, gw.Pool().Len())
}

func TestAdmin_Add_Duplicate(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken",
		`{"action":"add","proxy":{"host":"10.0.0.1","port":3128,"user":"u","pass":"p"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdmin_Add_MissingFields(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "no proxy object", body: `{"action":"add"}`},
		{name: "missing host", body: `{"action":"add","proxy":{"port":3128,"user":"u","pass":"p"}}`},
		{name: "missing port", body: `{"action":"add","proxy":{"host":"10.0.0.9","user":"u","pass":"p"}}`},
		{name: "missing user", body: `{"action":"add","proxy":{"host":"10.0.0.9","port":3128,"pass":"p"}}`},
		{name: "missing pass", body: `{"action":"add","proxy":{"host":"10.0.0.9","port":3128,"user":"u"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := doAdminRequest(handler, "admintoken", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAdmin_Remove(t *testing.T) {
	t.Parallel()

	gw, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken",
		`{"action":"remove","proxy":{"host":"10.0.0.2","port":3128}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, 2, gw.Pool().Len())
}

func TestAdmin_Remove_NotFound(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken",
		`{"action":"remove","proxy":{"host":"10.9.9.9","port":3128}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_Clear(t *testing.T) {
	t.Parallel()

	gw, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken", `{"action":"clear"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["removed"])
	assert.Equal(t, 0, gw.Pool().Len())

	// Identities now see an empty pool.
	rec2 := doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rec2.Code)
}

func TestAdmin_UnknownAction(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "unknown action")
}

func TestAdmin_MalformedBody(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, nil)

	rec := doAdminRequest(handler, "admintoken", `{notjson`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_AddRestoresService(t *testing.T) {
	t.Parallel()

	_, handler, _ := testGateway(t, func(c *config.Config) {
		c.Pool.Static = ""
	})

	rec := doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec2 := doAdminRequest(handler, "admintoken",
		`{"action":"add","proxy":{"host":"10.0.0.1","port":3128,"user":"u","pass":"p"}}`)
	require.Equal(t, http.StatusOK, rec2.Code)

	rec = doRequest(handler, http.MethodGet, "/current", basicAuth("alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["index"])
	assert.Equal(t, float64(1), body["total"])
}
