package models

// Table is a CSV file held in memory. Headers keep their file order and
// each row maps header -> cell.
type Table struct {
	Headers []string
	Rows    []map[string]string
	// Lines holds the 1-based data line each row was read from. Blank
	// source rows are dropped from Rows but still counted here.
	Lines []int
}

// Line returns the source data line of row i, falling back to i+1 for
// tables built without line numbers.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 1
}

// HasColumn reports whether the table carries the header h.
func (t *Table) HasColumn(h string) bool {
	for _, x := range t.Headers {
		if x == h {
			return true
		}
	}
	return false
}

// AddColumn appends h to the headers if it is not already present.
func (t *Table) AddColumn(h string) {
	if !t.HasColumn(h) {
		t.Headers = append(t.Headers, h)
	}
}
