package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/catalog"
	"github.com/omegalab/labtriage/server/internal/config"
	"github.com/omegalab/labtriage/server/internal/gateway"
	"github.com/omegalab/labtriage/server/internal/metrics"
	"github.com/omegalab/labtriage/server/internal/notify"
	"github.com/omegalab/labtriage/server/internal/report"
	"github.com/omegalab/labtriage/server/internal/store"
	"github.com/omegalab/labtriage/server/internal/triage"
)

// newServer wires a full handler stack over a temp store and the built-in
// catalog, returning the test server.
func newServer(t *testing.T, auth config.AuthConfig) *httptest.Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.ServerConfig{Catalog: config.DefaultCatalog()}
	cat := catalog.New(cfg.Definitions())
	reg := metrics.New()
	ntf := notify.New(config.NotifyConfig{Cooldown: time.Minute}, reg)
	gw := gateway.New(cat, triage.New(cat), st, ntf)

	srv := httptest.NewServer(New(st, gw, ntf, reg, auth, config.DefaultRecentLimit))
	t.Cleanup(srv.Close)
	return srv
}

func submit(t *testing.T, srv *httptest.Server, body SubmitRequest) (*http.Response, types.Result) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := srv.Client().Post(srv.URL+"/api/v1/results", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST /api/v1/results: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var r types.Result
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			t.Fatalf("decode result: %v", err)
		}
	}
	return resp, r
}

func TestSubmit_NormalGlucose(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, r := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "85.0", Provenance: "device",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", resp.StatusCode)
	}
	if r.Classification != types.ClassAuto {
		t.Errorf("classification: got %v, want AUTO", r.Classification)
	}
	if r.Unit != "mg/dl" {
		t.Errorf("unit: got %q, want mg/dl", r.Unit)
	}
}

func TestSubmit_PanicAboveCriticalHigh(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, r := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "410", Provenance: "device",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", resp.StatusCode)
	}
	if r.Classification != types.ClassPanic {
		t.Errorf("classification: got %v, want PANIC", r.Classification)
	}
}

func TestSubmit_ReviewBetweenNormalAndCritical(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	_, r := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "K", Value: "5.8", Provenance: "manual",
	})
	if r.Classification != types.ClassReview {
		t.Errorf("classification: got %v, want REVIEW", r.Classification)
	}
}

func TestSubmit_UnknownTestEmptyUnit(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	_, r := submit(t, srv, SubmitRequest{
		PatientID: "P2", TestCode: "ZZZ", Value: "12", Provenance: "device",
	})
	if r.Classification != types.ClassAuto {
		t.Errorf("classification: got %v, want AUTO", r.Classification)
	}
	if r.Unit != "" {
		t.Errorf("unit: got %q, want empty string", r.Unit)
	}
}

func TestSubmit_CommaDecimal(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	_, r := submit(t, srv, SubmitRequest{
		PatientID: "P3", TestCode: "TSH", Value: "1,50", Provenance: "manual",
	})
	if r.Value != 1.50 {
		t.Errorf("value: got %v, want 1.5", r.Value)
	}
	if r.Classification != types.ClassAuto {
		t.Errorf("classification: got %v, want AUTO", r.Classification)
	}
}

func TestSubmit_InvalidValue400(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, _ := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "not-a-number", Provenance: "manual",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestSubmit_BadProvenance400(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, _ := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "85", Provenance: "fax",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/results")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestRecent_MostRecentFirst(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	for i := 0; i < 5; i++ {
		submit(t, srv, SubmitRequest{
			PatientID: fmt.Sprintf("P%d", i), TestCode: "GLU", Value: "85", Provenance: "device",
		})
	}

	resp, err := srv.Client().Get(srv.URL + "/api/v1/results/recent?limit=2")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	defer resp.Body.Close()

	var body ResultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(body.Results))
	}
	if body.Results[0].Seq <= body.Results[1].Seq {
		t.Errorf("not seq-descending: %d then %d", body.Results[0].Seq, body.Results[1].Seq)
	}
	if body.Results[0].PatientID != "P4" {
		t.Errorf("most recent patient: got %q, want P4", body.Results[0].PatientID)
	}
}

func TestRecent_BadLimit400(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/results/recent?limit=banana")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestByPatient_RoundTrip(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	_, want := submit(t, srv, SubmitRequest{
		PatientID: "P9", TestCode: "K", Value: "5,8", Provenance: "manual",
	})
	submit(t, srv, SubmitRequest{
		PatientID: "OTHER", TestCode: "GLU", Value: "85", Provenance: "device",
	})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/patients/P9/results")
	if err != nil {
		t.Fatalf("GET by patient: %v", err)
	}
	defer resp.Body.Close()

	var body ResultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 {
		t.Fatalf("results: got %d, want 1", len(body.Results))
	}
	got := body.Results[0]
	if got.TestCode != want.TestCode || got.Value != want.Value || got.Unit != want.Unit ||
		got.Classification != want.Classification || got.Provenance != want.Provenance {
		t.Errorf("round trip mismatch:\n submitted %+v\n queried   %+v", want, got)
	}
}

func TestConcurrentSubmissions_RecentSeesBoth(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	var wg sync.WaitGroup
	for _, p := range []string{"A", "B"} {
		wg.Add(1)
		go func(patient string) {
			defer wg.Done()
			raw, _ := json.Marshal(SubmitRequest{
				PatientID: patient, TestCode: "GLU", Value: "85", Provenance: "device",
			})
			resp, err := srv.Client().Post(srv.URL+"/api/v1/results", "application/json", bytes.NewReader(raw))
			if err != nil {
				t.Errorf("POST for %s: %v", patient, err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("POST for %s: status %d", patient, resp.StatusCode)
			}
		}(p)
	}
	wg.Wait()

	resp, err := srv.Client().Get(srv.URL + "/api/v1/results/recent?limit=2")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	defer resp.Body.Close()

	var body ResultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(body.Results))
	}
	if body.Results[0].Seq <= body.Results[1].Seq {
		t.Errorf("not most recent first: seq %d then %d", body.Results[0].Seq, body.Results[1].Seq)
	}
}

func TestHealth_Stats(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	submit(t, srv, SubmitRequest{PatientID: "P1", TestCode: "GLU", Value: "410", Provenance: "device"})
	submit(t, srv, SubmitRequest{PatientID: "P2", TestCode: "GLU", Value: "85", Provenance: "manual"})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.Total != 2 {
		t.Errorf("total: got %d, want 2", body.Stats.Total)
	}
	if body.Stats.ByClassification["PANIC"] != 1 {
		t.Errorf("PANIC count: got %d, want 1", body.Stats.ByClassification["PANIC"])
	}
}

func TestNotifications_ListsPanic(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	submit(t, srv, SubmitRequest{PatientID: "P1", TestCode: "K", Value: "7.0", Provenance: "device"})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/notifications")
	if err != nil {
		t.Fatalf("GET notifications: %v", err)
	}
	defer resp.Body.Close()

	var body NotificationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(body.Notifications))
	}
	if body.Notifications[0].PatientID != "P1" {
		t.Errorf("patient: got %q, want P1", body.Notifications[0].PatientID)
	}
}

func TestReportJSON(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	for i := 0; i < report.MaxRows+2; i++ {
		submit(t, srv, SubmitRequest{PatientID: "P1", TestCode: "GLU", Value: "85", Provenance: "device"})
	}

	resp, err := srv.Client().Get(srv.URL + "/api/v1/patients/P1/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer resp.Body.Close()

	var body ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PatientID != "P1" {
		t.Errorf("patient: got %q, want P1", body.PatientID)
	}
	if len(body.Results) != report.MaxRows {
		t.Errorf("report rows: got %d, want %d (capped)", len(body.Results), report.MaxRows)
	}
}

func TestReportPDF_ContentType(t *testing.T) {
	srv := newServer(t, config.AuthConfig{})

	submit(t, srv, SubmitRequest{PatientID: "P1", TestCode: "GLU", Value: "85", Provenance: "device"})

	resp, err := srv.Client().Get(srv.URL + "/api/v1/patients/P1/report.pdf")
	if err != nil {
		t.Fatalf("GET report.pdf: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type: got %q, want application/pdf", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition: got %q, want attachment", cd)
	}
}

func TestAPIKey_GatesSubmission(t *testing.T) {
	t.Setenv("LABTRIAGE_API_KEY", "s3cret")
	srv := newServer(t, config.AuthConfig{Mode: "apikey", KeyEnv: "LABTRIAGE_API_KEY"})

	// No key → 401.
	resp, _ := submit(t, srv, SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "85", Provenance: "device",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key: got %d, want 401", resp.StatusCode)
	}

	// Correct key → 201.
	raw, _ := json.Marshal(SubmitRequest{
		PatientID: "P1", TestCode: "GLU", Value: "85", Provenance: "device",
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/results", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "s3cret")
	resp2, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST with key: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusCreated {
		t.Errorf("with key: got %d, want 201", resp2.StatusCode)
	}

	// Query endpoints stay open.
	resp3, err := srv.Client().Get(srv.URL + "/api/v1/results/recent")
	if err != nil {
		t.Fatalf("GET recent: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("recent without key: got %d, want 200", resp3.StatusCode)
	}
}
