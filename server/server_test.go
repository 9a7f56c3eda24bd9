package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ig "github.com/ineyio/infergate"
	"github.com/ineyio/infergate/cache"
	"github.com/ineyio/infergate/generator/mock"
	"github.com/ineyio/infergate/jobs"
	"github.com/ineyio/infergate/ledger"
	"github.com/ineyio/infergate/quota"
	"github.com/ineyio/infergate/server"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T, mutate func(*ig.Config)) *httptest.Server {
	t.Helper()
	cfg := ig.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	gw, err := ig.NewGateway(cfg, ig.Stores{
		Usage:  quota.NewMemoryUsageStore(),
		Cache:  cache.NewMemoryStore(),
		Ledger: ledger.NewMemoryStore(),
		Jobs:   jobs.NewMemoryStore(),
	}, ig.WithGenerator(mock.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close(context.Background()) })

	srv := server.New(gw, server.HeaderResolver{AdminKey: adminKey, PartnerKeys: []string{"partner-key"}},
		server.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type call struct {
	userID  string
	admin   bool
	ip      string
	agent   string
	payload any
}

func post(t *testing.T, ts *httptest.Server, c call) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(c.payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/ia/generate", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set(server.HeaderUserID, c.userID)
	}
	if c.admin {
		req.Header.Set(server.HeaderAdminKey, adminKey)
	}
	if c.ip != "" {
		req.Header.Set("X-Real-IP", c.ip)
	}
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}
	return do(t, req)
}

func get(t *testing.T, ts *httptest.Server, path string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := get(t, ts, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsMounted(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerate_SecondCallIsCached(t *testing.T) {
	ts := newTestServer(t, nil)
	payload := map[string]any{"prompt": "what is go?", "modelTier": "standard"}

	resp, first := post(t, ts, call{userID: "u1", payload: payload})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, first["cached"])
	assert.Equal(t, "standard", first["modelTier"])
	assert.NotEmpty(t, first["jobId"])
	assert.Equal(t, "100", resp.Header.Get("x-quota-limit"))
	assert.Equal(t, "1", resp.Header.Get("x-quota-used"))

	resp, second := post(t, ts, call{userID: "u1", payload: payload})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["result"], second["result"])
	assert.Equal(t, "2", resp.Header.Get("x-quota-used"))
}

func TestGenerate_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := post(t, ts, call{payload: map[string]any{"prompt": ""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "prompt is required", body["error"])

	resp, _ = post(t, ts, call{payload: map[string]any{"prompt": "x", "modelTier": "ultra"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/ia/generate", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp, _ = do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerate_QuotaSoftBlock(t *testing.T) {
	ts := newTestServer(t, func(c *ig.Config) {
		c.Quota.UserDaily = 2
		c.Quota.PartnerDaily = 20
		c.Quota.AdminDaily = 200
	})

	for i := range 3 {
		resp, _ := post(t, ts, call{userID: "u1", payload: map[string]any{"prompt": fmt.Sprintf("p%d", i)}})
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
	}

	resp, body := post(t, ts, call{userID: "u1", payload: map[string]any{"prompt": "p4"}})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, float64(3), body["used"])
	assert.Equal(t, float64(2), body["limit"])
	assert.NotEmpty(t, body["upgradeSuggestion"])

	// Other users are unaffected.
	resp, _ = post(t, ts, call{userID: "u2", payload: map[string]any{"prompt": "p4"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerate_RiskEscalation(t *testing.T) {
	ts := newTestServer(t, func(c *ig.Config) {
		c.Fraud.SpikeThreshold = 1
	})

	resp, _ := post(t, ts, call{userID: "u1", ip: "10.1.2.3", payload: map[string]any{"prompt": "a"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, "score 10 passes")

	resp, body := post(t, ts, call{userID: "u1", ip: "10.1.2.3", payload: map[string]any{"prompt": "b"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.ElementsMatch(t, []any{"usage spike", "suspicious private ip"}, body["reasons"])
	assert.Equal(t, "/api/v1/kyc/submit", body["verificationUrl"])
}

func TestGenerate_AsyncJob(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := post(t, ts, call{userID: "u1", payload: map[string]any{
		"prompt":   "summarize this",
		"metadata": map[string]any{"async": true},
	}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		_, job := get(t, ts, "/api/v1/jobs/"+jobID, nil)
		return job["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	_, job := get(t, ts, "/api/v1/jobs/"+jobID, nil)
	assert.Contains(t, job["result"], "summarize this")
}

func TestJob_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := get(t, ts, "/api/v1/jobs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := get(t, ts, "/api/v1/admin/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, ts, "/api/v1/admin/metrics", map[string]string{server.HeaderAdminKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	post(t, ts, call{userID: "u1", payload: map[string]any{"prompt": "hello"}})
	post(t, ts, call{userID: "u1", payload: map[string]any{"prompt": "hello"}})

	resp, body := get(t, ts, "/api/v1/admin/metrics", map[string]string{server.HeaderAdminKey: adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.5, body["cacheHitRate"], 1e-9)
	assert.Greater(t, body["revenueUsd"], 0.0)
	assert.Equal(t, float64(0), body["quotaViolations"])

	breaker, ok := body["circuitBreaker"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, breaker["downgraded"])
	assert.Equal(t, float64(5), breaker["budget"])
}

func TestHeaderResolver(t *testing.T) {
	r := server.HeaderResolver{AdminKey: "adm", PartnerKeys: []string{"p1", "p2"}}

	h := http.Header{}
	assert.Equal(t, ig.Identity{ID: server.AnonymousUser, Role: ig.RoleUser}, r.Resolve(h))

	h.Set(server.HeaderUserID, "alice")
	assert.Equal(t, ig.Identity{ID: "alice", Role: ig.RoleUser}, r.Resolve(h))

	h.Set(server.HeaderAPIKey, "p2")
	partner := r.Resolve(h)
	assert.Equal(t, ig.RolePartner, partner.Role)
	assert.NotContains(t, partner.ID, "p2")
	assert.Equal(t, partner, r.Resolve(h), "deterministic")

	h.Set(server.HeaderAdminKey, "adm")
	assert.Equal(t, ig.Identity{ID: "admin", Role: ig.RoleAdmin}, r.Resolve(h))

	h.Set(server.HeaderAdminKey, "nope")
	assert.Equal(t, ig.RolePartner, r.Resolve(h).Role)

	// An unset admin key never matches.
	empty := server.HeaderResolver{}
	h = http.Header{}
	h.Set(server.HeaderAdminKey, "")
	assert.Equal(t, ig.RoleUser, empty.Resolve(h).Role)
}
