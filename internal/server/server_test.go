package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/engine"
	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/fingerprint"
	"git.home.luguber.info/redpen/contentsyncd/internal/gitrepo"
	"git.home.luguber.info/redpen/contentsyncd/internal/history"
	"git.home.luguber.info/redpen/contentsyncd/internal/locker"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
)

const testSecret = "hunter2"

type okSyncer struct{}

func (okSyncer) Sync() gitrepo.Report {
	var r gitrepo.Report
	r.Add(gitrepo.StepResult{Step: "parent-checkout", Severity: gitrepo.SeverityOk})
	return r
}

type okPublisher struct{}

func (okPublisher) Publish() error { return nil }

func newTestServer(t *testing.T, secret string, hist *history.Store) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.RepoDir = t.TempDir()
	cfg.WebhookSecret = secret

	lock, err := locker.New(filepath.Join(t.TempDir(), "sync.lock"))
	require.NoError(t, err)

	prints := fingerprint.NewEngine(execx.NewFakeRunner())
	store := fingerprint.NewStore(filepath.Join(t.TempDir(), ".sync.fingerprint"))
	eng := engine.New(cfg, lock, prints, store, okSyncer{}, okPublisher{}, metrics.NoopRecorder{})

	srv := New(cfg, eng, metrics.NoopRecorder{}, prometheus.NewRegistry(), hist)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, url, body, signature, event string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_ValidSignatureRunsCycle(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)
	body := `{"ref":"refs/heads/main"}`

	resp := postWebhook(t, ts.URL+"/webhook", body, sign(testSecret, body), "push")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf [64]byte
	n, _ := resp.Body.Read(buf[:])
	assert.Contains(t, string(buf[:n]), "OK: published")
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)
	body := `{"ref":"refs/heads/main"}`

	resp := postWebhook(t, ts.URL+"/webhook", body, sign("wrong-secret", body), "push")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)

	resp := postWebhook(t, ts.URL+"/webhook", "{}", "", "push")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_EmptyConfiguredSecretRejectsEverything(t *testing.T) {
	ts := newTestServer(t, "", nil)
	body := "{}"

	// Even a correctly signed request fails when no secret is configured.
	resp := postWebhook(t, ts.URL+"/webhook", body, sign("", body), "push")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhook_NonPushEventAcknowledged(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)
	body := "{}"

	resp := postWebhook(t, ts.URL+"/webhook", body, sign(testSecret, body), "ping")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestWebhook_MissingEventHeaderIsTreatedAsPush(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)
	body := "{}"

	resp := postWebhook(t, ts.URL+"/webhook", body, sign(testSecret, body), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)

	resp, err := http.Get(ts.URL + "/webhook")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebhook_NamedHookPath(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)
	body := "{}"

	resp := postWebhook(t, ts.URL+"/.hooks/redpen-publish", body, sign(testSecret, body), "push")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postWebhook(t, ts.URL+"/.hooks/other-hook", body, sign(testSecret, body), "push")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminCycles(t *testing.T) {
	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()
	require.NoError(t, hist.Append(context.Background(), history.Record{
		CycleID: "c1", Trigger: "webhook", Outcome: "published", StartedAt: time.Now().UTC(),
	}))

	ts := newTestServer(t, testSecret, hist)

	resp, err := http.Get(ts.URL + "/admin/cycles")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []history.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "c1", records[0].CycleID)
}

func TestAdminCycles_DisabledWithoutHistory(t *testing.T) {
	ts := newTestServer(t, testSecret, nil)

	resp, err := http.Get(ts.URL + "/admin/cycles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerifySignature(t *testing.T) {
	body := []byte("payload")
	good := sign(testSecret, "payload")

	assert.True(t, verifySignature([]byte(testSecret), body, good))
	assert.False(t, verifySignature([]byte(testSecret), body, ""))
	assert.False(t, verifySignature([]byte(testSecret), body, "sha1=abcdef"))
	assert.False(t, verifySignature([]byte(testSecret), []byte("tampered"), good))
}
