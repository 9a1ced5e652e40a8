package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_CountsAndLabels(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveCycleDuration(TriggerWebhook, 2*time.Second)
	rec.IncCycleOutcome(TriggerWebhook, "published")
	rec.IncCycleOutcome(TriggerWebhook, "published")
	rec.IncCycleOutcome(TriggerMonitor, "no-change")
	rec.IncStepResult("submodule-sync", "partial")
	rec.IncWebhookRequest(401)
	rec.SetLockWait(250 * time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(rec.cycleOutcomes.WithLabelValues("webhook", "published")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.cycleOutcomes.WithLabelValues("monitor", "no-change")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.stepResults.WithLabelValues("submodule-sync", "partial")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(rec.webhookRequests.WithLabelValues("401")))
	assert.Equal(t, 0.25, testutil.ToFloat64(rec.lockWait))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "contentsync_cycle_duration_seconds")
	assert.Contains(t, names, "contentsync_cycle_outcomes_total")
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var rec *PrometheusRecorder
	rec.ObserveCycleDuration(TriggerManual, time.Second)
	rec.IncCycleOutcome(TriggerManual, "published")
	rec.IncStepResult("parent-checkout", "ok")
	rec.IncWebhookRequest(200)
	rec.SetLockWait(0)
}

func TestNoopRecorder_ImplementsRecorder(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = &PrometheusRecorder{}
}
