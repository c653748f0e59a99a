package catalog

import (
	"sync"
	"testing"

	"github.com/omegalab/labtriage/pkg/types"
)

func testDefs() []types.TestDefinition {
	return []types.TestDefinition{
		{Code: "GLU", Unit: "mg/dl", Normal: types.Range{Low: 70, High: 99},
			Critical: &types.Range{Low: 40, High: 400}},
		{Code: "TSH", Unit: "uIU/ml", Normal: types.Range{Low: 0.27, High: 4.20}},
	}
}

func TestLookup(t *testing.T) {
	c := New(testDefs())

	d, ok := c.Lookup("GLU")
	if !ok {
		t.Fatal("Lookup(GLU): expected hit")
	}
	if d.Unit != "mg/dl" {
		t.Errorf("GLU unit: got %q, want mg/dl", d.Unit)
	}
	if d.Critical == nil || d.Critical.High != 400 {
		t.Errorf("GLU critical: got %+v, want high 400", d.Critical)
	}
}

func TestLookup_Absent(t *testing.T) {
	c := New(testDefs())

	if _, ok := c.Lookup("ZZZ"); ok {
		t.Fatal("Lookup(ZZZ): expected miss")
	}
	if got := c.Unit("ZZZ"); got != "" {
		t.Errorf("Unit(ZZZ): got %q, want empty", got)
	}
}

func TestUnit(t *testing.T) {
	c := New(testDefs())
	if got := c.Unit("TSH"); got != "uIU/ml" {
		t.Errorf("Unit(TSH): got %q, want uIU/ml", got)
	}
}

func TestLen(t *testing.T) {
	if got := New(testDefs()).Len(); got != 2 {
		t.Errorf("Len: got %d, want 2", got)
	}
	if got := New(nil).Len(); got != 0 {
		t.Errorf("Len of empty catalog: got %d, want 0", got)
	}
}

// Lookup must be safe for unsynchronized concurrent readers.
func TestLookup_Concurrent(t *testing.T) {
	c := New(testDefs())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Lookup("GLU")
				c.Lookup("ZZZ")
			}
		}()
	}
	wg.Wait()
}
