package dataset

import "sort"

// Record is one decoded row: column name to value.
type Record map[string]any

// Frame is an ordered collection of records with a stable column list.
// Records keep the order they were appended in; columns keep the order
// they were first registered in, with keys a record introduces on its own
// added in sorted order.
type Frame struct {
	cols    []string
	colSeen map[string]bool
	records []Record
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{colSeen: map[string]bool{}}
}

// AddColumns registers columns in the given order. Already-known columns
// keep their position.
func (f *Frame) AddColumns(names ...string) {
	for _, name := range names {
		if f.colSeen[name] {
			continue
		}
		f.colSeen[name] = true
		f.cols = append(f.cols, name)
	}
}

// Append adds a record. Columns the frame has not seen yet are registered
// in sorted order so repeated assemblies of the same data agree on layout.
func (f *Frame) Append(rec Record) {
	var fresh []string
	for name := range rec {
		if !f.colSeen[name] {
			fresh = append(fresh, name)
		}
	}
	sort.Strings(fresh)
	f.AddColumns(fresh...)
	f.records = append(f.records, rec)
}

// Columns returns the column names in frame order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	copy(out, f.cols)
	return out
}

// Records returns the records in append order. The slice is shared with
// the frame; treat it as read-only.
func (f *Frame) Records() []Record {
	return f.records
}

// Len returns the number of records.
func (f *Frame) Len() int {
	return len(f.records)
}

// Merge joins frames column-wise by row position: row i of the merged
// frame combines row i of each keyed frame, and every column is renamed
// with a "_{key}" suffix so the same variable from different assets stays
// distinguishable. Rows past a shorter frame's end simply lack that
// frame's columns. Keys without a frame are skipped.
func Merge(keys []string, frames map[string]*Frame) *Frame {
	merged := NewFrame()

	rows := 0
	for _, key := range keys {
		f := frames[key]
		if f == nil {
			continue
		}
		for _, col := range f.cols {
			merged.AddColumns(col + "_" + key)
		}
		if f.Len() > rows {
			rows = f.Len()
		}
	}

	for i := 0; i < rows; i++ {
		rec := Record{}
		for _, key := range keys {
			f := frames[key]
			if f == nil || i >= f.Len() {
				continue
			}
			for col, v := range f.records[i] {
				rec[col+"_"+key] = v
			}
		}
		merged.Append(rec)
	}
	return merged
}
