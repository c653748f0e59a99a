// Package gateway implements the ingestion path: it validates and normalizes
// a raw submission, classifies it, and writes through to the result store.
// The gateway is stateless between calls; each Submit is an independent
// transaction. It carries no authentication logic; the transport layer gates
// the manual-entry path and always supplies a provenance tag.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/catalog"
	"github.com/omegalab/labtriage/server/internal/store"
	"github.com/omegalab/labtriage/server/internal/triage"
)

// Validation errors. Storage errors pass through from the store and wrap
// store.ErrStorage.
var (
	// ErrInvalidValue means the submitted value is not parseable as a number
	// under either accepted decimal-separator convention. Nothing is stored.
	ErrInvalidValue = errors.New("invalid value")

	// ErrMissingPatient means the patient id is empty.
	ErrMissingPatient = errors.New("patient id is required")

	// ErrBadProvenance means the provenance tag is not a known producer kind.
	ErrBadProvenance = errors.New("unknown provenance")
)

// Observer is notified of every stored result. The notifier implements it;
// a nil observer is valid.
type Observer interface {
	Observe(r *types.Result)
}

// Gateway accepts submissions from concurrent producers. All methods are safe
// for concurrent use; the store provides the only synchronization boundary.
type Gateway struct {
	catalog    *catalog.Catalog
	classifier *triage.Classifier
	store      *store.Store
	observer   Observer
}

// New creates a Gateway. observer may be nil.
func New(cat *catalog.Catalog, cls *triage.Classifier, st *store.Store, observer Observer) *Gateway {
	return &Gateway{catalog: cat, classifier: cls, store: st, observer: observer}
}

// Submit validates, classifies, and persists one measurement. On success the
// fully stored result comes back, sequence id and timestamp assigned. On
// validation failure or storage failure nothing is stored and the error
// reflects the reason; Submit never swallows a store error.
func (g *Gateway) Submit(ctx context.Context, patientID, testCode, rawValue string, prov types.Provenance) (*types.Result, error) {
	if patientID == "" {
		return nil, ErrMissingPatient
	}
	if !prov.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadProvenance, prov)
	}

	value, err := ParseValue(rawValue)
	if err != nil {
		return nil, err
	}

	r := types.Result{
		PatientID:      patientID,
		TestCode:       testCode,
		Value:          value,
		Unit:           g.catalog.Unit(testCode), // empty for unknown codes
		Classification: g.classifier.Classify(testCode, value),
		Provenance:     prov,
	}

	stored, err := g.store.Append(ctx, r)
	if err != nil {
		return nil, err
	}

	slog.Debug("gateway: result stored",
		"seq", stored.Seq,
		"patient", stored.PatientID,
		"test", stored.TestCode,
		"classification", stored.Classification,
		"provenance", stored.Provenance,
	)

	if g.observer != nil {
		g.observer.Observe(stored)
	}
	return stored, nil
}

// ParseValue parses a submitted numeric value. Producers emit either "." or
// "," as the decimal separator; both are accepted. Malformed input returns an
// ErrInvalidValue-wrapped error.
func ParseValue(raw string) (float64, error) {
	norm := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	return v, nil
}
