// Package catalog holds the reference catalog: the static mapping of test
// codes to units, normal ranges, and critical ranges. The catalog is built
// once at startup from configuration and never mutated afterwards, so Lookup
// is safe for unsynchronized concurrent use.
package catalog

import "github.com/omegalab/labtriage/pkg/types"

// Catalog is an immutable test-code lookup table.
type Catalog struct {
	defs map[string]types.TestDefinition
}

// New builds a Catalog from the given definitions. Later entries with a
// duplicate code replace earlier ones; config validation rejects duplicates
// before this point.
func New(defs []types.TestDefinition) *Catalog {
	m := make(map[string]types.TestDefinition, len(defs))
	for _, d := range defs {
		m[d.Code] = d
	}
	return &Catalog{defs: m}
}

// Lookup returns the definition for code. Absence is a normal outcome, not an
// error: unknown codes are accepted upstream and classified AUTO.
func (c *Catalog) Lookup(code string) (types.TestDefinition, bool) {
	d, ok := c.defs[code]
	return d, ok
}

// Unit returns the unit label for code, or the empty string if the code is
// not in the catalog.
func (c *Catalog) Unit(code string) string {
	d, ok := c.defs[code]
	if !ok {
		return ""
	}
	return d.Unit
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.defs)
}
