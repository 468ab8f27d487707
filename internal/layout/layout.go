// Package layout maps N-up factors to the way pages are arranged on a sheet.
package layout

import "sort"

type Layout struct {
	Columns  int
	Rows     int
	Portrait bool
}

var defaultLayouts = map[int]Layout{
	1: {Columns: 1, Rows: 1, Portrait: true},
	2: {Columns: 1, Rows: 2, Portrait: false},
	4: {Columns: 2, Rows: 2, Portrait: true},
	6: {Columns: 2, Rows: 3, Portrait: false},
	9: {Columns: 3, Rows: 3, Portrait: true},
}

// Catalog is a read-only set of layouts keyed by N-up factor.
type Catalog struct {
	layouts map[int]Layout
	factors []int
}

func newCatalog(layouts map[int]Layout) *Catalog {
	c := &Catalog{layouts: layouts}
	for n := range layouts {
		c.factors = append(c.factors, n)
	}
	sort.Ints(c.factors)
	return c
}

// Default returns every layout the service knows how to compose.
func Default() *Catalog {
	return newCatalog(defaultLayouts)
}

// Intersect keeps only the factors the printer reports supporting. A printer
// that reports nothing is assumed to support plain 1-up printing.
func (c *Catalog) Intersect(supported []int) *Catalog {
	if len(supported) == 0 {
		supported = []int{1}
	}
	kept := make(map[int]Layout)
	for _, n := range supported {
		if l, ok := c.layouts[n]; ok {
			kept[n] = l
		}
	}
	return newCatalog(kept)
}

func (c *Catalog) Lookup(n int) (Layout, bool) {
	l, ok := c.layouts[n]
	return l, ok
}

// Factors returns the available N-up factors in ascending order.
func (c *Catalog) Factors() []int {
	out := make([]int, len(c.factors))
	copy(out, c.factors)
	return out
}

func (c *Catalog) Supports(n int) bool {
	_, ok := c.layouts[n]
	return ok
}
