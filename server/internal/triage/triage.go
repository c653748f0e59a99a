// Package triage implements the classification of a numeric measurement
// against the reference catalog's clinical thresholds.
package triage

import (
	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/catalog"
)

// Classifier assigns triage labels by threshold comparison. It is pure and
// stateless; Classify is safe to call concurrently without locking.
type Classifier struct {
	catalog *catalog.Catalog
}

// New returns a Classifier reading thresholds from cat.
func New(cat *catalog.Catalog) *Classifier {
	return &Classifier{catalog: cat}
}

// Classify maps (test code, value) to a triage label:
//
//   - code unknown to the catalog → AUTO. Unknown tests are never flagged;
//     there is no basis to judge them.
//   - value outside the critical range → PANIC. The critical check runs
//     first, regardless of the normal range.
//   - value outside the normal range → REVIEW.
//   - otherwise → AUTO.
//
// Bounds are inclusive: a value exactly equal to a bound is in-range. The
// caller supplies the value already in the unit implied by the catalog entry;
// no rounding or unit conversion happens here.
func (c *Classifier) Classify(code string, value float64) types.Classification {
	def, ok := c.catalog.Lookup(code)
	if !ok {
		return types.ClassAuto
	}
	if def.Critical != nil && def.Critical.Outside(value) {
		return types.ClassPanic
	}
	if def.Normal.Outside(value) {
		return types.ClassReview
	}
	return types.ClassAuto
}
