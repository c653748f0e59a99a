package triage

import (
	"testing"

	"github.com/omegalab/labtriage/pkg/types"

	"github.com/omegalab/labtriage/server/internal/catalog"
)

// newClassifier builds a classifier over the final-variant catalog numbers.
func newClassifier() *Classifier {
	return New(catalog.New([]types.TestDefinition{
		{Code: "TSH", Unit: "uIU/ml", Normal: types.Range{Low: 0.27, High: 4.20}},
		{Code: "GLU", Unit: "mg/dl", Normal: types.Range{Low: 70.0, High: 99.0},
			Critical: &types.Range{Low: 40.0, High: 400.0}},
		{Code: "K", Unit: "mmol/l", Normal: types.Range{Low: 3.5, High: 5.1},
			Critical: &types.Range{Low: 2.5, High: 6.5}},
		{Code: "CHOL", Unit: "mg/dl", Normal: types.Range{Low: 0, High: 190}},
	}))
}

func TestClassify(t *testing.T) {
	c := newClassifier()

	cases := []struct {
		name  string
		code  string
		value float64
		want  types.Classification
	}{
		{"glucose in normal range", "GLU", 85.0, types.ClassAuto},
		{"glucose above critical high", "GLU", 410, types.ClassPanic},
		{"glucose below critical low", "GLU", 30, types.ClassPanic},
		{"glucose above normal below critical", "GLU", 150, types.ClassReview},
		{"glucose below normal above critical", "GLU", 55, types.ClassReview},

		{"potassium above normal below critical", "K", 5.8, types.ClassReview},
		{"potassium above critical high", "K", 6.6, types.ClassPanic},
		{"potassium normal", "K", 4.2, types.ClassAuto},

		// TSH has no critical range: out-of-range is at most REVIEW.
		{"tsh far above normal, no critical range", "TSH", 250.0, types.ClassReview},
		{"tsh below normal, no critical range", "TSH", 0.1, types.ClassReview},
		{"tsh normal", "TSH", 1.50, types.ClassAuto},

		{"cholesterol at zero lower bound", "CHOL", 0, types.ClassAuto},
		{"cholesterol above normal", "CHOL", 240, types.ClassReview},

		{"unknown code never flagged", "ZZZ", 12, types.ClassAuto},
		{"unknown code extreme value", "ZZZ", 1e9, types.ClassAuto},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.code, tc.value); got != tc.want {
				t.Errorf("Classify(%q, %v): got %v, want %v", tc.code, tc.value, got, tc.want)
			}
		})
	}
}

// Values exactly on a bound are in-range, for normal and critical alike.
func TestClassify_InclusiveBounds(t *testing.T) {
	c := newClassifier()

	cases := []struct {
		code  string
		value float64
		want  types.Classification
	}{
		{"GLU", 70.0, types.ClassAuto},    // normal low
		{"GLU", 99.0, types.ClassAuto},    // normal high
		{"GLU", 400.0, types.ClassReview}, // critical high: in critical, out of normal
		{"GLU", 40.0, types.ClassReview},  // critical low
		{"K", 6.5, types.ClassReview},     // critical high
		{"K", 3.5, types.ClassAuto},       // normal low
	}
	for _, tc := range cases {
		if got := c.Classify(tc.code, tc.value); got != tc.want {
			t.Errorf("Classify(%q, %v): got %v, want %v", tc.code, tc.value, got, tc.want)
		}
	}
}

// The critical check is evaluated first: a value violating both ranges is
// PANIC, never REVIEW.
func TestClassify_CriticalPrecedence(t *testing.T) {
	c := newClassifier()

	for _, v := range []float64{400.01, 1000, 39.99, -5} {
		if got := c.Classify("GLU", v); got != types.ClassPanic {
			t.Errorf("Classify(GLU, %v): got %v, want PANIC", v, got)
		}
	}
}
