// Package types defines the shared domain types used by both the labtriage
// server and the analyzer feed. These are the canonical in-memory
// representations of laboratory results and reference data, separate from the
// JSON wire format used on the HTTP API.
package types

import "time"

// Classification is the triage label assigned to a result by threshold
// comparison against the reference catalog.
type Classification string

// Triage classification labels, mutually exclusive.
const (
	// ClassPanic marks a value outside the critical range: immediately
	// life-threatening, requires urgent notification.
	ClassPanic Classification = "PANIC"

	// ClassReview marks a value outside the normal range but within critical
	// bounds (or no critical range defined); needs human review.
	ClassReview Classification = "REVIEW"

	// ClassAuto marks a value within the normal range, or a test code not in
	// the catalog; released automatically.
	ClassAuto Classification = "AUTO"
)

// Provenance identifies which kind of producer submitted a result.
type Provenance string

// Provenance tags.
const (
	// ProvenanceDevice marks results submitted by the automated analyzer feed.
	ProvenanceDevice Provenance = "device"

	// ProvenanceManual marks results entered by a human through the manual form.
	ProvenanceManual Provenance = "manual"
)

// Valid reports whether p is one of the known provenance tags.
func (p Provenance) Valid() bool {
	return p == ProvenanceDevice || p == ProvenanceManual
}

// Range is an inclusive numeric interval. A value exactly equal to Low or
// High is in-range.
type Range struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether v lies inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Outside reports whether v lies strictly outside the range.
func (r Range) Outside(v float64) bool {
	return v < r.Low || v > r.High
}

// TestDefinition is one reference catalog entry: a test code together with
// its unit and clinical ranges. Critical is nil for tests that have no
// defined panic thresholds.
type TestDefinition struct {
	Code     string
	Unit     string
	Normal   Range
	Critical *Range
}

// Result is one submitted, classified measurement. Seq and CreatedAt are
// assigned by the result store at append time; all other fields are fixed by
// the ingestion gateway. A Result is immutable once stored; the log is
// append-only, there is no update or delete.
type Result struct {
	Seq            int64          `json:"seq"`
	PatientID      string         `json:"patient_id"`
	TestCode       string         `json:"test_code"`
	Value          float64        `json:"value"`
	Unit           string         `json:"unit"`
	Classification Classification `json:"classification"`
	Provenance     Provenance     `json:"provenance"`
	CreatedAt      time.Time      `json:"created_at"`
}
