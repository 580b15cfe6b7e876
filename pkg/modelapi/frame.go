package modelapi

// Column is one labeled column of a Frame. Labels need not be strings;
// they are coerced with fmt.Sprint when a schema is inferred.
type Column struct {
	Label  any
	Values []any
}

// Frame is a column-oriented table.
type Frame struct {
	Columns []Column
}

// Series is a single named column.
type Series struct {
	Name   any
	Values []any
}

// NewFrame builds a Frame from column labels and row-major records.
// Rows shorter than labels leave the missing cells nil.
func NewFrame(labels []any, rows [][]any) Frame {
	cols := make([]Column, len(labels))
	for i, label := range labels {
		cols[i] = Column{Label: label, Values: make([]any, len(rows))}
		for r, row := range rows {
			if i < len(row) {
				cols[i].Values[r] = row[i]
			}
		}
	}
	return Frame{Columns: cols}
}

// Column returns the column with the given label.
func (f Frame) Column(label any) (Column, bool) {
	want := labelName(label)
	for _, c := range f.Columns {
		if labelName(c.Label) == want {
			return c, true
		}
	}
	return Column{}, false
}

// Len returns the number of rows.
func (f Frame) Len() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return len(f.Columns[0].Values)
}

// Records returns the frame as one map per row, keyed by coerced label.
func (f Frame) Records() []map[string]any {
	n := f.Len()
	out := make([]map[string]any, n)
	for r := 0; r < n; r++ {
		rec := make(map[string]any, len(f.Columns))
		for _, c := range f.Columns {
			if r < len(c.Values) {
				rec[labelName(c.Label)] = c.Values[r]
			}
		}
		out[r] = rec
	}
	return out
}
