package api

import (
	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/notify"
	"github.com/omegalab/labtriage/server/internal/store"
)

// SubmitRequest is the body of POST /api/v1/results. Value arrives as a
// string because producers emit either "." or "," as the decimal separator;
// the gateway normalizes it.
type SubmitRequest struct {
	PatientID  string `json:"patient_id"`
	TestCode   string `json:"test_code"`
	Value      string `json:"value"`
	Provenance string `json:"provenance"`
}

// ResultsResponse is the payload for the recent and per-patient result feeds.
type ResultsResponse struct {
	Results     []types.Result `json:"results"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// ReportResponse is the report data feed for the PDF/report collaborator:
// the ordered sequence of one patient's results. The report layer only
// formats this; it performs no classification logic.
type ReportResponse struct {
	PatientID   string         `json:"patient_id"`
	Results     []types.Result `json:"results"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Stats *store.Stats `json:"stats"`
}

// NotificationsResponse is the payload for GET /api/v1/notifications.
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
