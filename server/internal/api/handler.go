package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/config"
	"github.com/omegalab/labtriage/server/internal/gateway"
	"github.com/omegalab/labtriage/server/internal/metrics"
	"github.com/omegalab/labtriage/server/internal/notify"
	"github.com/omegalab/labtriage/server/internal/report"
	"github.com/omegalab/labtriage/server/internal/store"
)

// maxQueryLimit caps the limit query parameter on all list endpoints.
const maxQueryLimit = 500


// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store         *store.Store
	gateway       *gateway.Gateway
	notifier      *notify.Notifier
	registry      *metrics.Registry
	recentDefault int
	mux           *http.ServeMux
}

// New creates a Handler wired to the given collaborators and registers all
// routes. auth gates the submission endpoint only.
func New(st *store.Store, gw *gateway.Gateway, ntf *notify.Notifier, reg *metrics.Registry,
	auth config.AuthConfig, recentDefault int) http.Handler {

	if recentDefault <= 0 {
		recentDefault = config.DefaultRecentLimit
	}
	h := &Handler{
		store:         st,
		gateway:       gw,
		notifier:      ntf,
		registry:      reg,
		recentDefault: recentDefault,
		mux:           http.NewServeMux(),
	}

	h.mux.Handle("/api/v1/results", APIKey(auth)(http.HandlerFunc(h.submit)))
	h.mux.HandleFunc("/api/v1/results/recent", h.recent)
	h.mux.HandleFunc("/api/v1/patients/", h.patientSubtree) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/notifications", h.notifications)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// submit handles POST /api/v1/results, the submission entry point for both
// producer kinds. The transport supplies the provenance tag; the gateway does
// the rest.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.gateway.Submit(r.Context(), req.PatientID, req.TestCode, req.Value,
		types.Provenance(req.Provenance))
	if err != nil {
		h.submitError(w, err)
		return
	}

	h.registry.Submission(string(res.Provenance))
	h.registry.Classification(string(res.Classification))
	jsonResp(w, http.StatusCreated, res)
}

// submitError maps a gateway error to an HTTP status and records the reject.
func (h *Handler) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidValue):
		h.registry.Reject("invalid_value")
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrMissingPatient):
		h.registry.Reject("missing_patient")
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrBadProvenance):
		h.registry.Reject("bad_provenance")
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrStorage):
		h.registry.Reject("storage")
		jsonErr(w, http.StatusBadGateway, "storage failure: result was not recorded")
	default:
		h.registry.Reject("internal")
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

// recent handles GET /api/v1/results/recent.
func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, err := h.limitParam(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.registry.QueryFailure()
		jsonErr(w, http.StatusInternalServerError, "query failure")
		return
	}
	jsonResp(w, http.StatusOK, ResultsResponse{
		Results:     results,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// patientSubtree dispatches GET /api/v1/patients/{id}/(results|report|report.pdf).
func (h *Handler) patientSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/patients/")
	id, op, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}

	switch op {
	case "results":
		h.byPatient(w, r, id)
	case "report":
		h.reportJSON(w, r, id)
	case "report.pdf":
		h.reportPDF(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) byPatient(w http.ResponseWriter, r *http.Request, id string) {
	limit, err := h.limitParam(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.store.ByPatient(r.Context(), id, limit)
	if err != nil {
		h.registry.QueryFailure()
		jsonErr(w, http.StatusInternalServerError, "query failure")
		return
	}
	jsonResp(w, http.StatusOK, ResultsResponse{
		Results:     results,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) reportJSON(w http.ResponseWriter, r *http.Request, id string) {
	results, err := h.store.ByPatient(r.Context(), id, report.MaxRows)
	if err != nil {
		h.registry.QueryFailure()
		jsonErr(w, http.StatusInternalServerError, "query failure")
		return
	}
	jsonResp(w, http.StatusOK, ReportResponse{
		PatientID:   id,
		Results:     results,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) reportPDF(w http.ResponseWriter, r *http.Request, id string) {
	results, err := h.store.ByPatient(r.Context(), id, report.MaxRows)
	if err != nil {
		h.registry.QueryFailure()
		jsonErr(w, http.StatusInternalServerError, "query failure")
		return
	}

	pdf, err := report.Render(id, results, time.Now())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "report rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "results_"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf) //nolint:errcheck
}

// health handles GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.registry.QueryFailure()
		jsonErr(w, http.StatusInternalServerError, "query failure")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{Stats: stats})
}

// notifications handles GET /api/v1/notifications.
func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, NotificationsResponse{
		Notifications: h.notifier.Recent(),
	})
}

// --- helpers ----------------------------------------------------------------

// limitParam reads the limit query parameter, applying the default and cap.
func (h *Handler) limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.recentDefault, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > maxQueryLimit {
		n = maxQueryLimit
	}
	return n, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
