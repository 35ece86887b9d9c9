package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/groupguard/groupguard/automod/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-admin-token"

func testAdminServer(t *testing.T) (*AdminServer, *engine.Engine, *engine.MockPlatform) {
	eng := engine.EngineTestFixture()
	plat, ok := eng.Platform.(*engine.MockPlatform)
	require.True(t, ok)
	srv := NewAdminServer(&eng, slog.Default(), ":0", testToken, prometheus.NewRegistry())
	return srv, &eng, plat
}

func doRequest(srv *AdminServer, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestAdminHealth(t *testing.T) {
	assert := assert.New(t)
	srv, _, _ := testAdminServer(t)

	rec := doRequest(srv, http.MethodGet, "/_health", "", "")
	assert.Equal(http.StatusOK, rec.Code)
	var status GenericStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal("ok", status.Status)
	assert.Equal("groupguard", status.Daemon)
}

func TestAdminAuth(t *testing.T) {
	assert := assert.New(t)
	srv, _, _ := testAdminServer(t)

	assert.Equal(http.StatusUnauthorized, doRequest(srv, http.MethodGet, "/admin/stats", "", "").Code)
	assert.Equal(http.StatusUnauthorized, doRequest(srv, http.MethodGet, "/admin/stats", "wrong", "").Code)
	assert.Equal(http.StatusOK, doRequest(srv, http.MethodGet, "/admin/stats", testToken, "").Code)

	// no token configured: admin routes are not served at all
	eng := engine.EngineTestFixture()
	open := NewAdminServer(&eng, slog.Default(), ":0", "", prometheus.NewRegistry())
	assert.Equal(http.StatusNotFound, doRequest(open, http.MethodGet, "/admin/stats", "", "").Code)
	assert.Equal(http.StatusOK, doRequest(open, http.MethodGet, "/_health", "", "").Code)
}

func TestAdminStats(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()
	srv, eng, _ := testAdminServer(t)

	assert.NoError(eng.Trust.IncrementGlobalBlockedCount(ctx))
	assert.NoError(eng.Trust.IncrementBlockedCount(ctx, -100123))

	rec := doRequest(srv, http.MethodGet, "/admin/stats", testToken, "")
	assert.Equal(http.StatusOK, rec.Code)
	var stats engine.GlobalStats
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(int64(1), stats.BlockedCount)

	rec = doRequest(srv, http.MethodGet, "/admin/chats/-100123", testToken, "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"blockedCount":1`)

	rec = doRequest(srv, http.MethodGet, "/admin/chats/nope", testToken, "")
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestAdminTrustOverride(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()
	srv, eng, _ := testAdminServer(t)

	rec := doRequest(srv, http.MethodPut, "/admin/chats/-100123/members/42/trust", testToken, `{"trusted": true}`)
	assert.Equal(http.StatusOK, rec.Code)
	var status engine.MemberStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(status.Known)
	assert.True(status.Trusted)

	m, err := eng.Trust.GetMember(ctx, 42, -100123)
	assert.NoError(err)
	require.NotNil(t, m)
	assert.True(m.Trusted)

	rec = doRequest(srv, http.MethodPut, "/admin/chats/-100123/members/42/trust", testToken, `{"trusted": false}`)
	assert.Equal(http.StatusOK, rec.Code)
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(status.Trusted)
	assert.NotNil(status.JoinTime)

	rec = doRequest(srv, http.MethodPut, "/admin/chats/-100123/members/0/trust", testToken, `{"trusted": true}`)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestAdminExcludeThreads(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()
	srv, eng, _ := testAdminServer(t)

	rec := doRequest(srv, http.MethodPut, "/admin/chats/-100123/threads/excluded", testToken, `{"threads": [9, 3]}`)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"excludedThreads":[3,9]`)

	threads, err := eng.Trust.GetExcludedThreads(ctx, -100123)
	assert.NoError(err)
	assert.Equal([]int{3, 9}, threads)

	rec = doRequest(srv, http.MethodPut, "/admin/chats/-100123/threads/excluded", testToken, `{"threads": [-1]}`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPut, "/admin/chats/-100123/threads/excluded", testToken, `{"threads": []}`)
	assert.Equal(http.StatusOK, rec.Code)
	threads, err = eng.Trust.GetExcludedThreads(ctx, -100123)
	assert.NoError(err)
	assert.Empty(threads)
}

func TestAdminUnban(t *testing.T) {
	assert := assert.New(t)
	srv, _, plat := testAdminServer(t)

	rec := doRequest(srv, http.MethodPost, "/admin/chats/-100123/members/42/unban", testToken, "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal([]string{"unban"}, plat.Ops())
	var status engine.MemberStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(status.Trusted)

	plat.Fail["unban"] = true
	rec = doRequest(srv, http.MethodPost, "/admin/chats/-100123/members/43/unban", testToken, "")
	assert.Equal(http.StatusBadGateway, rec.Code)
	var ge GenericError
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &ge))
	assert.Equal("PlatformActionFailed", ge.Error)
}
