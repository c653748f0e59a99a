// Package api implements the HTTP surface of labtriage-server.
//
// New(...) returns an http.Handler that serves:
//
//	POST /api/v1/results               — submission entry point (device + manual)
//	GET  /api/v1/results/recent        — recent results, most recent first (?limit=)
//	GET  /api/v1/patients/{id}/results — one patient's results (?limit=)
//	GET  /api/v1/patients/{id}/report  — report data feed (JSON)
//	GET  /api/v1/patients/{id}/report.pdf — rendered PDF report
//	GET  /api/v1/health                — result counts by classification/provenance
//	GET  /api/v1/notifications         — critical notifications from the past hour
//
// All endpoints respond with Content-Type: application/json (except the PDF)
// and return 405 for unsupported methods. When auth mode is "apikey", the
// submission endpoint requires the configured header; query endpoints stay
// open. Session handling for the manual-entry UI is the reverse proxy's
// concern, not this package's.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
