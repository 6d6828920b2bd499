package storage

import (
	"fmt"
	"regexp"

	"sleepgen/internal/dataset"
)

// ColumnType is the logical type of an exported column. Backends map it to
// their own SQL types.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeReal
	TypeText
)

// Column describes one exported column.
type Column struct {
	Name string
	Type ColumnType
}

// KeyColumn is the primary key of every exported table.
const KeyColumn = dataset.ColPersonID

// PersonColumns is the export layout. Its order matches dataset.Columns, so
// dataset.Values rows can be passed to InsertPersons unchanged.
var PersonColumns = []Column{
	{dataset.ColPersonID, TypeInteger},
	{dataset.ColGender, TypeText},
	{dataset.ColAge, TypeInteger},
	{dataset.ColOccupation, TypeText},
	{dataset.ColSleepDuration, TypeReal},
	{dataset.ColQualityOfSleep, TypeInteger},
	{dataset.ColPhysicalActive, TypeInteger},
	{dataset.ColStressLevel, TypeInteger},
	{dataset.ColBMICategory, TypeText},
	{dataset.ColBloodPressure, TypeText},
	{dataset.ColHeartRate, TypeInteger},
	{dataset.ColDailySteps, TypeInteger},
	{dataset.ColSleepDisorder, TypeText},
}

// ColumnNames returns the names of PersonColumns.
func ColumnNames() []string {
	out := make([]string, len(PersonColumns))
	for i, c := range PersonColumns {
		out[i] = c.Name
	}
	return out
}

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName accepts "table" or "schema.table" made of plain identifiers.
func ValidateTableName(name string) error {
	if !tableNameRE.MatchString(name) {
		return fmt.Errorf("storage: invalid table name %q", name)
	}
	return nil
}

// ValidateRows checks every row has one value per exported column.
func ValidateRows(rows [][]any) error {
	for i, r := range rows {
		if len(r) != len(PersonColumns) {
			return fmt.Errorf("storage: row %d has %d values, want %d", i, len(r), len(PersonColumns))
		}
	}
	return nil
}

// DedupeByKey keeps the first row for each person_id, preserving order.
// Rows with a nil key are dropped.
func DedupeByKey(rows [][]any) [][]any {
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 || r[0] == nil {
			continue
		}
		k := fmt.Sprint(r[0])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Chunk splits rows into groups of at most n.
func Chunk(rows [][]any, n int) [][][]any {
	if n < 1 {
		n = 1
	}
	var out [][][]any
	for start := 0; start < len(rows); start += n {
		end := min(start+n, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
