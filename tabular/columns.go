package tabular

import (
	"github.com/SanteonNL/claimtools/flatten"
	"golang.org/x/exp/slices"
)

// Columns accumulates the union of keys seen across flattened rows.
type Columns struct {
	set map[string]struct{}
}

func NewColumns() *Columns {
	return &Columns{set: make(map[string]struct{})}
}

// Add records every key of row.
func (c *Columns) Add(row flatten.Row) {
	for k := range row {
		c.set[k] = struct{}{}
	}
}

func (c *Columns) Len() int { return len(c.set) }

// Sorted returns the columns in byte-wise lexicographic order, which makes the
// header a function of the key set alone.
func (c *Columns) Sorted() []string {
	cols := make([]string, 0, len(c.set))
	for k := range c.set {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}
