package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	cycleDuration   *prom.HistogramVec
	cycleOutcomes   *prom.CounterVec
	stepResults     *prom.CounterVec
	webhookRequests *prom.CounterVec
	lockWait        prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cycleDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentsync",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of full sync+publish cycles",
			Buckets:   prom.DefBuckets,
		}, []string{"trigger"})
		pr.cycleOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentsync",
			Name:      "cycle_outcomes_total",
			Help:      "Cycle outcomes by trigger and final status",
		}, []string{"trigger", "outcome"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentsync",
			Name:      "step_results_total",
			Help:      "Git synchronizer step results by severity",
		}, []string{"step", "severity"})
		pr.webhookRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentsync",
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by HTTP response status",
		}, []string{"status"})
		pr.lockWait = prom.NewGauge(prom.GaugeOpts{
			Namespace: "contentsync",
			Name:      "lock_wait_seconds",
			Help:      "Time the most recent cycle waited for the sync lock",
		})
		reg.MustRegister(pr.cycleDuration, pr.cycleOutcomes, pr.stepResults, pr.webhookRequests, pr.lockWait)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCycleDuration(trigger TriggerLabel, d time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.WithLabelValues(string(trigger)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCycleOutcome(trigger TriggerLabel, outcome string) {
	if p == nil || p.cycleOutcomes == nil {
		return
	}
	p.cycleOutcomes.WithLabelValues(string(trigger), outcome).Inc()
}

func (p *PrometheusRecorder) IncStepResult(step string, severity string) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, severity).Inc()
}

func (p *PrometheusRecorder) IncWebhookRequest(status int) {
	if p == nil || p.webhookRequests == nil {
		return
	}
	p.webhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) SetLockWait(d time.Duration) {
	if p == nil || p.lockWait == nil {
		return
	}
	p.lockWait.Set(d.Seconds())
}
