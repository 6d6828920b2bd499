package dataset

import (
	"strconv"
	"strings"
)

// Row is one table row.
//
// Rows read from a store keep their Raw field text (in header order) and
// Text, the exact source text of the record including its terminator, so
// they are written back byte-identical. Person is filled from Raw as far as
// the values parse. Generated rows have a nil Raw and are rendered from
// Person.
type Row struct {
	Line   int // 1-based line in the source, 0 for generated rows
	Raw    []string
	Text   string
	Person Person
}

// Generated reports whether the row was produced in memory.
func (r Row) Generated() bool { return r.Raw == nil }

// Dataset is an ordered sequence of rows plus the header that describes them.
type Dataset struct {
	// Header is the display header, as read (or DefaultHeader).
	Header []string
	// Columns holds the canonical column name for each header position.
	// Unknown extra columns map to "".
	Columns []string
	Rows    []Row

	// HeaderText is the source text of the header record (BOM and
	// terminator included); empty for datasets built in memory.
	HeaderText string
	// Trailer is source text after the last record, e.g. blank lines.
	Trailer string
	// Newline terminates rendered records: "\n", or "\r\n" when the source
	// header ended that way.
	Newline string
	// Charset the table is written in; empty means UTF-8.
	Charset string
}

// New returns an empty dataset using the default header.
func New() *Dataset {
	return &Dataset{
		Header:  append([]string(nil), DefaultHeader...),
		Columns: append([]string(nil), Columns...),
	}
}

// Len reports the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// MaxPersonID returns the largest person_id, or 0 for an empty dataset.
func (d *Dataset) MaxPersonID() int64 {
	var maxID int64
	for i, r := range d.Rows {
		if i == 0 || r.Person.PersonID > maxID {
			maxID = r.Person.PersonID
		}
	}
	return maxID
}

// HasColumn reports whether the canonical column col is present.
func (d *Dataset) HasColumn(col string) bool {
	return d.columnIndex(col) >= 0
}

func (d *Dataset) columnIndex(col string) int {
	for i, c := range d.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Clone returns a dataset sharing the header but with its own row slice, so
// appending to the clone never touches the receiver.
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		Header:     d.Header,
		Columns:    d.Columns,
		Rows:       append(make([]Row, 0, len(d.Rows)), d.Rows...),
		HeaderText: d.HeaderText,
		Trailer:    d.Trailer,
		Newline:    d.Newline,
		Charset:    d.Charset,
	}
}

// Append adds generated persons after the existing rows.
func (d *Dataset) Append(ps ...Person) {
	for _, p := range ps {
		d.Rows = append(d.Rows, Row{Person: p})
	}
}

// Record renders row i as positional strings in header order.
func (d *Dataset) Record(i int) []string {
	r := d.Rows[i]
	if !r.Generated() {
		return r.Raw
	}
	out := make([]string, len(d.Columns))
	for j, c := range d.Columns {
		out[j] = r.Person.Field(c)
	}
	return out
}

// Values renders row i as typed values in Columns (canonical) order, for
// database export. Empty source fields become nil.
func (d *Dataset) Values(i int) []any {
	r := d.Rows[i]
	if r.Generated() {
		return r.Person.Values()
	}

	out := make([]any, len(Columns))
	for j, col := range Columns {
		ix := d.columnIndex(col)
		if ix < 0 || ix >= len(r.Raw) {
			continue
		}
		out[j] = typedValue(col, r.Raw[ix])
	}
	return out
}

func typedValue(col, raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch col {
	case ColSleepDuration:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case ColPersonID, ColAge, ColQualityOfSleep, ColPhysicalActive, ColStressLevel, ColHeartRate, ColDailySteps:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return v
}
