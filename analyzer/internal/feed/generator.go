package feed

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/omegalab/labtriage/analyzer/internal/config"
)

// Sample is one synthetic measurement ready for submission.
type Sample struct {
	PatientID  string `json:"patient_id"`
	TestCode   string `json:"test_code"`
	Value      string `json:"value"`
	Provenance string `json:"provenance"`
}

// commaShare is the fraction of samples formatted with a comma decimal
// separator.
const commaShare = 0.25

// Generator produces random samples from the configured patient pool and
// test ranges.
type Generator struct {
	patients []string
	tests    []config.TestRange
	rng      *rand.Rand
}

// NewGenerator builds a Generator over the given pool and ranges.
// Both slices must be non-empty; config validation guarantees that.
func NewGenerator(patients []string, tests []config.TestRange, seed int64) *Generator {
	return &Generator{
		patients: patients,
		tests:    tests,
		rng:      rand.New(rand.NewSource(seed)), //nolint:gosec // not crypto
	}
}

// Next draws one random sample.
func (g *Generator) Next() Sample {
	tr := g.tests[g.rng.Intn(len(g.tests))]
	value := tr.Min + g.rng.Float64()*(tr.Max-tr.Min)

	return Sample{
		PatientID:  g.patients[g.rng.Intn(len(g.patients))],
		TestCode:   tr.Code,
		Value:      g.formatValue(value),
		Provenance: "device",
	}
}

// formatValue renders value with two decimals, sometimes using a comma as
// the decimal separator.
func (g *Generator) formatValue(v float64) string {
	out := fmt.Sprintf("%.2f", v)
	if g.rng.Float64() < commaShare {
		out = strings.Replace(out, ".", ",", 1)
	}
	return out
}
