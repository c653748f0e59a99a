// Package notify delivers urgent notifications for critical (PANIC) results.
// It observes every stored result, fires webhooks for life-threatening values,
// and suppresses repeats per patient and test within a cooldown window.
// Delivery failures never propagate to the submitter.
package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/config"
	"github.com/omegalab/labtriage/server/internal/metrics"
)

const (
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Notification is one critical-result alert event.
type Notification struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	TestCode  string    `json:"test_code"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

// Notifier implements the gateway's observer hook. It is safe for concurrent
// use.
type Notifier struct {
	cooldown time.Duration
	webhooks []config.WebhookConfig
	registry *metrics.Registry

	mu       sync.Mutex
	lastFire map[string]time.Time // key: "patientID:testCode"
	history  []*Notification

	client *http.Client
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Notifier from the notify configuration. registry may be nil.
// A Notifier with no webhooks is valid; notifications are still recorded for
// the dashboard, just not delivered anywhere.
func New(cfg config.NotifyConfig, registry *metrics.Registry) *Notifier {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = config.DefaultNotifyCooldown
	}
	return &Notifier{
		cooldown: cooldown,
		webhooks: cfg.Webhooks,
		registry: registry,
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Observe inspects a stored result and fires a notification if it is PANIC
// and the patient+test pair is outside its cooldown window. Webhook delivery
// runs asynchronously; Observe itself never blocks on the network.
func (n *Notifier) Observe(r *types.Result) {
	if r.Classification != types.ClassPanic {
		return
	}

	key := r.PatientID + ":" + r.TestCode

	n.mu.Lock()
	now := n.now()
	if now.Sub(n.lastFire[key]) <= n.cooldown {
		n.mu.Unlock()
		return
	}
	n.lastFire[key] = now

	ntf := &Notification{
		ID:        fmt.Sprintf("%s:%s:%d", r.PatientID, r.TestCode, now.UnixNano()),
		PatientID: r.PatientID,
		TestCode:  r.TestCode,
		Value:     r.Value,
		Unit:      r.Unit,
		Message: fmt.Sprintf("CRITICAL result for %s: %s = %g %s (seq %d, %s)",
			r.PatientID, r.TestCode, r.Value, r.Unit, r.Seq, r.Provenance),
		FiredAt: now,
	}
	n.history = append(n.history, ntf)
	if len(n.history) > maxHistoryLen {
		n.history = n.history[len(n.history)-maxHistoryLen:]
	}
	cp := *ntf
	n.mu.Unlock()

	slog.Warn("notify: critical result",
		"patient", r.PatientID,
		"test", r.TestCode,
		"value", r.Value,
		"seq", r.Seq,
	)
	go n.deliver(&cp)
}

// Recent returns notifications fired within the past hour, newest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-recentWindowHours * time.Hour)
	out := make([]Notification, 0)
	for i := len(n.history) - 1; i >= 0; i-- {
		if n.history[i].FiredAt.After(cutoff) {
			out = append(out, *n.history[i])
		}
	}
	return out
}
