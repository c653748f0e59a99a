// Package metrics tracks process-wide ingestion counters and exposes them in
// the Prometheus text exposition format at GET /metrics.
package metrics

import (
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Registry holds the labtriage counters. The zero value is not usable; use New.
// All methods are safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	submissions     map[string]float64 // accepted submissions by provenance
	rejects         map[string]float64 // rejected submissions by reason
	classifications map[string]float64 // stored results by triage label
	notifySent      float64
	notifyFailed    float64
	queryFailures   float64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		submissions:     make(map[string]float64),
		rejects:         make(map[string]float64),
		classifications: make(map[string]float64),
	}
}

// Submission records one accepted submission for the given provenance.
func (r *Registry) Submission(provenance string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[provenance]++
}

// Reject records one rejected submission for the given reason
// ("invalid_value", "missing_patient", "bad_provenance", "storage").
func (r *Registry) Reject(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects[reason]++
}

// Classification records one stored result with the given triage label.
func (r *Registry) Classification(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications[label]++
}

// NotifySent records one delivered critical-result notification.
func (r *Registry) NotifySent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifySent++
}

// NotifyFailed records one failed notification delivery.
func (r *Registry) NotifyFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyFailed++
}

// QueryFailure records one failed read against the result store.
func (r *Registry) QueryFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryFailures++
}

// Gather snapshots all counters as metric families, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	fams := []*dto.MetricFamily{
		plainCounter("labtriage_notifications_sent_total",
			"Delivered critical-result notifications.", r.notifySent),
		plainCounter("labtriage_notifications_failed_total",
			"Failed notification deliveries.", r.notifyFailed),
		plainCounter("labtriage_query_failures_total",
			"Failed reads against the result store.", r.queryFailures),
	}
	// The text encoder rejects a family with no metrics, so labeled families
	// appear only once their first counter increments.
	for _, mf := range []*dto.MetricFamily{
		labeledCounter("labtriage_submissions_total",
			"Accepted submissions by provenance.", "provenance", r.submissions),
		labeledCounter("labtriage_submission_rejects_total",
			"Rejected submissions by reason.", "reason", r.rejects),
		labeledCounter("labtriage_results_total",
			"Stored results by triage classification.", "classification", r.classifications),
	} {
		if len(mf.Metric) > 0 {
			fams = append(fams, mf)
		}
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// Handler serves the registry in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		for _, mf := range r.Gather() {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				// Client went away mid-write; nothing sensible to do.
				return
			}
		}
	})
}

func plainCounter(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: strPtr(name),
		Help: strPtr(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: f64Ptr(value)}},
		},
	}
}

func labeledCounter(name, help, label string, values map[string]float64) *dto.MetricFamily {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	metrics := make([]*dto.Metric, 0, len(keys))
	for _, k := range keys {
		metrics = append(metrics, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: strPtr(label), Value: strPtr(k)},
			},
			Counter: &dto.Counter{Value: f64Ptr(values[k])},
		})
	}
	return &dto.MetricFamily{
		Name:   strPtr(name),
		Help:   strPtr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
