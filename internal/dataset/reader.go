package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sleepgen/internal/errs"
)

const stageLoad = "load"

// ReadOptions controls how a table is parsed.
type ReadOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// LazyQuotes relaxes quote handling (see encoding/csv).
	LazyQuotes bool
	// HeaderMap overrides normalization for specific raw header names,
	// e.g. {"Pulse": "heart_rate"}.
	HeaderMap map[string]string
	// Charset of the input; empty means UTF-8.
	Charset string
}

// Read parses a whole table into a Dataset.
//
// The header row is required. Header names are trimmed, a leading BOM is
// stripped, and each name is mapped through HeaderMap or else lowercased with
// spaces turned into underscores. All thirteen canonical columns must be
// present; extra columns are carried through untouched.
//
// Every row must have as many fields as the header, a non-empty integer
// person_id and a non-empty occupation; numeric fields that are present must
// parse (surrounding spaces are ignored). Any violation fails the whole read
// with a data error naming the line.
//
// The source text of the header and of every record is kept, so Write
// re-emits the table byte for byte: line endings, quoting, a missing final
// newline and the charset survive.
func Read(src io.Reader, opt ReadOptions) (*Dataset, error) {
	in, err := decodeReader(src, opt.Charset)
	if err != nil {
		return nil, errs.Data(stageLoad, "%w", err)
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, errs.Data(stageLoad, "read input: %w", err)
	}
	text := string(raw)

	cr := csv.NewReader(strings.NewReader(text))
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	// Field counts are checked below so the error can name the line.
	cr.FieldsPerRecord = -1

	var line int
	var off int64
	// readRec returns the next record and its source text.
	readRec := func() ([]string, string, error) {
		line++
		rec, err := cr.Read()
		if err != nil {
			return nil, "", err
		}
		next := cr.InputOffset()
		recText := text[off:next]
		off = next
		return rec, recText, nil
	}

	hdr, hdrText, err := readRec()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.Data(stageLoad, "table is empty: missing header row")
		}
		return nil, errs.Data(stageLoad, "read header: %w", err)
	}

	ds := &Dataset{
		Header:     append([]string(nil), hdr...),
		Columns:    normalizeHeader(hdr, opt.HeaderMap),
		HeaderText: hdrText,
		Newline:    newlineOf(hdrText),
		Charset:    opt.Charset,
	}
	for _, col := range Columns {
		if !ds.HasColumn(col) {
			return nil, errs.Data(stageLoad, "missing required column %q", col)
		}
	}

	for {
		rec, recText, err := readRec()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Data(stageLoad, "line %d: csv read: %w", line, err)
		}
		if len(rec) != len(ds.Columns) {
			return nil, errs.Data(stageLoad, "line %d: expected %d fields, got %d", line, len(ds.Columns), len(rec))
		}

		p, err := parsePerson(ds.Columns, rec)
		if err != nil {
			return nil, errs.Data(stageLoad, "line %d: %w", line, err)
		}
		ds.Rows = append(ds.Rows, Row{Line: line, Raw: rec, Text: recText, Person: p})
	}
	ds.Trailer = text[off:]

	return ds, nil
}

func newlineOf(recText string) string {
	if strings.HasSuffix(recText, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func normalizeHeader(hdr []string, hm map[string]string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]bool, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		mapped, ok := hm[h]
		if !ok {
			// Config loaders may lowercase map keys.
			mapped, ok = hm[strings.ToLower(h)]
		}
		if ok {
			h = mapped
		} else {
			h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
		}
		// Only the first occurrence of a canonical name is bound.
		if seen[h] {
			h = ""
		}
		if h != "" {
			seen[h] = true
		}
		out[i] = h
	}
	return out
}

func parsePerson(cols []string, rec []string) (Person, error) {
	var p Person
	for i, col := range cols {
		v := strings.TrimSpace(rec[i])
		switch col {
		case ColPersonID:
			if v == "" {
				return p, fmt.Errorf("missing required field %q", col)
			}
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return p, fmt.Errorf("field %q: %q is not an integer", col, v)
			}
			p.PersonID = id
		case ColOccupation:
			if v == "" {
				return p, fmt.Errorf("missing required field %q", col)
			}
			p.Occupation = v
		case ColGender:
			p.Gender = v
		case ColBMICategory:
			p.BMICategory = v
		case ColBloodPressure:
			p.BloodPressure = v
		case ColSleepDisorder:
			p.SleepDisorder = v
		case ColSleepDuration:
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, fmt.Errorf("field %q: %q is not a number", col, v)
			}
			p.SleepDuration = f
		case ColAge, ColQualityOfSleep, ColPhysicalActive, ColStressLevel, ColHeartRate, ColDailySteps:
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("field %q: %q is not an integer", col, v)
			}
			setInt(&p, col, n)
		}
	}
	return p, nil
}

func setInt(p *Person, col string, n int) {
	switch col {
	case ColAge:
		p.Age = n
	case ColQualityOfSleep:
		p.QualityOfSleep = n
	case ColPhysicalActive:
		p.PhysicalActive = n
	case ColStressLevel:
		p.StressLevel = n
	case ColHeartRate:
		p.HeartRate = n
	case ColDailySteps:
		p.DailySteps = n
	}
}
