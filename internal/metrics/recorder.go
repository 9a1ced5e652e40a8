package metrics

import "time"

// TriggerLabel enumerates the sources that can start a sync cycle.
type TriggerLabel string

const (
	TriggerWebhook TriggerLabel = "webhook"
	TriggerMonitor TriggerLabel = "monitor"
	TriggerWatcher TriggerLabel = "watcher"
	TriggerManual  TriggerLabel = "manual"
)

// Recorder defines observability hooks for sync cycles. All methods must be
// safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveCycleDuration(trigger TriggerLabel, d time.Duration)
	IncCycleOutcome(trigger TriggerLabel, outcome string) // no-change|published|partial|fatal|publish-failed
	IncStepResult(step string, severity string)
	IncWebhookRequest(status int)
	SetLockWait(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// disabled).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycleDuration(TriggerLabel, time.Duration) {}
func (NoopRecorder) IncCycleOutcome(TriggerLabel, string)            {}
func (NoopRecorder) IncStepResult(string, string)                    {}
func (NoopRecorder) IncWebhookRequest(int)                           {}
func (NoopRecorder) SetLockWait(time.Duration)                       {}
