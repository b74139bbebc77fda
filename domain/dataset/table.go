package dataset

import (
	"fmt"
)

// Table is a categorical dataset after binarization: a header and integer-coded rows.
type Table struct {
	Header []string
	Rows   [][]int
	index  map[string]int
}

// NewTable builds a table and indexes its header.
func NewTable(header []string, rows [][]int) (*Table, error) {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.index[h]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		t.index[h] = i
	}
	for r, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", r, len(row), len(header))
		}
	}
	return t, nil
}

// Column returns the position of a column.
func (t *Table) Column(name string) (int, bool) {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			t.index[h] = i
		}
	}
	i, ok := t.index[name]
	return i, ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }
