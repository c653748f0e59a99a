package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestGather_CountsByLabel(t *testing.T) {
	r := New()
	r.Submission("device")
	r.Submission("device")
	r.Submission("manual")
	r.Reject("invalid_value")
	r.Classification("PANIC")

	fams := r.Gather()
	byName := map[string]int{}
	for i, mf := range fams {
		byName[mf.GetName()] = i
	}

	subs, ok := byName["labtriage_submissions_total"]
	if !ok {
		t.Fatal("labtriage_submissions_total missing")
	}
	mf := fams[subs]
	if len(mf.Metric) != 2 {
		t.Fatalf("submissions metrics: got %d, want 2", len(mf.Metric))
	}
	// Labels sort lexically: device before manual.
	if got := mf.Metric[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("device submissions: got %v, want 2", got)
	}
	if got := mf.Metric[1].GetCounter().GetValue(); got != 1 {
		t.Errorf("manual submissions: got %v, want 1", got)
	}
}

func TestGather_SkipsEmptyLabeledFamilies(t *testing.T) {
	r := New()
	for _, mf := range r.Gather() {
		if len(mf.Metric) == 0 {
			t.Errorf("family %s has no metrics", mf.GetName())
		}
	}
}

func TestHandler_TextExposition(t *testing.T) {
	r := New()
	r.Submission("device")
	r.Reject("storage")
	r.NotifySent()
	r.NotifyFailed()
	r.QueryFailure()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("Content-Type: got %q, want text/plain exposition format", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		`labtriage_submissions_total{provenance="device"} 1`,
		`labtriage_submission_rejects_total{reason="storage"} 1`,
		`labtriage_notifications_sent_total 1`,
		`labtriage_notifications_failed_total 1`,
		`labtriage_query_failures_total 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q:\n%s", want, text)
		}
	}
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				r.Submission("device")
				r.Classification("AUTO")
			}
		}()
	}
	wg.Wait()

	for _, mf := range r.Gather() {
		if mf.GetName() == "labtriage_submissions_total" {
			if got := mf.Metric[0].GetCounter().GetValue(); got != 4000 {
				t.Errorf("submissions: got %v, want 4000", got)
			}
		}
	}
}
