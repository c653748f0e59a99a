package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omegalab/labtriage/analyzer/internal/config"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// instanceHeader carries this feed's identity so the server can tell
	// multiple concurrent analyzers apart in its logs.
	instanceHeader = "X-Feed-Instance"
)

// postFunc is the function signature used to deliver one sample.
// Abstracted so tests can inject a recorder instead of a live server.
type postFunc func(ctx context.Context, s Sample) error

// permanentError marks a rejection by the server (HTTP 4xx). The sample is
// invalid and retrying it would never succeed, so it does not trigger
// backoff.
type permanentError struct {
	status int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("server rejected sample: status %d", e.status)
}

// Feed submits synthetic samples to labtriage-server on a configurable
// interval.
type Feed struct {
	instance string
	client   *http.Client
	post     postFunc // injectable for tests

	mu  sync.Mutex
	cfg config.AnalyzerConfig
	gen *Generator

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates a Feed from the analyzer config.
func New(cfg config.AnalyzerConfig) *Feed {
	f := &Feed{
		cfg:      cfg,
		gen:      NewGenerator(cfg.Patients, cfg.Tests, time.Now().UnixNano()),
		instance: uuid.NewString(),
		client:   &http.Client{Timeout: sendTimeout},
	}
	f.post = f.submit
	return f
}

// Update swaps in a reloaded configuration. The patient pool, test ranges,
// endpoint, auth, and interval all take effect from the next cycle; a cycle
// already in flight finishes with the settings it started with.
func (f *Feed) Update(cfg config.AnalyzerConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.gen = NewGenerator(cfg.Patients, cfg.Tests, time.Now().UnixNano())
	slog.Info("feed: configuration updated",
		"patients", len(cfg.Patients),
		"tests", len(cfg.Tests),
		"interval", cfg.Interval,
	)
}

// snapshot returns the current configuration under the lock.
func (f *Feed) snapshot() config.AnalyzerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// next draws one sample from the current generator.
func (f *Feed) next() Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen.Next()
}

// Instance returns this feed's unique identifier.
func (f *Feed) Instance() string { return f.instance }

// Sent returns the number of successfully delivered samples.
func (f *Feed) Sent() int64 { return f.sent.Load() }

// Failed returns the number of samples dropped after a failed delivery.
func (f *Feed) Failed() int64 { return f.failed.Load() }

// Run produces and submits one sample per interval until ctx is cancelled.
// It waits InitialDelay before the first submission so that a server
// started at the same time has a chance to come up. Interval changes applied
// through Update take effect on the tick after the current one.
func (f *Feed) Run(ctx context.Context) {
	if delay := f.snapshot().InitialDelay; delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	bo := newBackoff()

	interval := f.snapshot().Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sample := f.next()
		err := f.post(ctx, sample)
		switch {
		case err == nil:
			f.sent.Add(1)
			bo.reset()
			slog.Debug("feed: sample delivered",
				"patient", sample.PatientID, "test", sample.TestCode, "value", sample.Value)

		case isPermanent(err):
			// The server is up but refused the sample. Drop it and keep the
			// normal cadence.
			f.failed.Add(1)
			bo.reset()
			slog.Error("feed: sample rejected, dropping",
				"patient", sample.PatientID, "test", sample.TestCode, "err", err)

		default:
			// Transport failure or server error. Drop the sample and stretch
			// the wait before the next attempt.
			f.failed.Add(1)
			wait := bo.next()
			slog.Warn("feed: delivery failed, dropping sample",
				"test", sample.TestCode, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d := f.snapshot().Interval; d != interval {
				interval = d
				ticker.Reset(d)
			}
		}
	}
}

// submit POSTs one sample to the server's submission endpoint.
func (f *Feed) submit(ctx context.Context, s Sample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	cfg := f.snapshot()
	url := cfg.ServerEndpoint + "/api/v1/results"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(instanceHeader, f.instance)
	if key := cfg.Auth.Key(); key != "" {
		req.Header.Set(cfg.Auth.EffectiveHeader(), key)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post sample: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &permanentError{status: resp.StatusCode}
	default:
		return fmt.Errorf("server error: status %d", resp.StatusCode)
	}
}

// isPermanent reports whether err marks a sample the server refused, as
// opposed to a delivery failure worth backing off over.
func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
