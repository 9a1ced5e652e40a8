// Package notify publishes cycle-completion events so downstream consumers
// (the annotation API cache, monitoring dashboards) can react to fresh
// publishes without polling the public tree.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
	"git.home.luguber.info/redpen/contentsyncd/internal/retry"
)

// Subject carries cycle-finished events.
const Subject = "contentsync.cycles"

// CycleEvent is the published payload.
type CycleEvent struct {
	CycleID   string    `json:"cycle_id"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSNotifier publishes CycleEvents to a NATS subject.
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier connects to the given NATS URL. The initial connection is
// retried with backoff; the broker often comes up alongside the daemon.
func NewNATSNotifier(ctx context.Context, url string) (*NATSNotifier, error) {
	var conn *nats.Conn
	policy := retry.NewPolicy(retry.BackoffLinear, time.Second, 10*time.Second, 3)
	err := policy.Do(ctx, func() error {
		var dialErr error
		conn, dialErr = nats.Connect(url,
			nats.Name("contentsyncd"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	slog.Info("NATS notifier connected", "url", url, "subject", Subject)
	return &NATSNotifier{conn: conn}, nil
}

// CycleFinished publishes one event. Failures are logged; a notification must
// never fail a cycle.
func (n *NATSNotifier) CycleFinished(cycleID, trigger, outcome string) {
	event := CycleEvent{
		CycleID:   cycleID,
		Trigger:   trigger,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to encode cycle event", logfields.CycleID(cycleID), logfields.Error(err))
		return
	}
	if err := n.conn.Publish(Subject, data); err != nil {
		slog.Warn("Failed to publish cycle event", logfields.CycleID(cycleID), logfields.Error(err))
	}
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
