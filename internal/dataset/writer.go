package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Write serializes ds as a delimited table: the header, then every row in
// order.
//
// The header and rows read from a store are written from their source text,
// so an unchanged table comes out byte-identical. Generated rows are rendered
// in header order with the source line terminator; quoting follows
// encoding/csv, so a field is quoted only when it contains the delimiter, a
// quote or a newline. The whole table is encoded in ds.Charset.
func Write(w io.Writer, ds *Dataset, comma rune) error {
	out, err := encodeWriter(w, ds.Charset)
	if err != nil {
		return err
	}

	var buf strings.Builder
	cw := csv.NewWriter(&buf)
	if comma != 0 {
		cw.Comma = comma
	}
	cw.UseCRLF = ds.Newline == "\r\n"

	// terminated tracks whether buf ends on a record boundary.
	terminated := true
	emit := func(text string) {
		buf.WriteString(text)
		terminated = text == "" || strings.HasSuffix(text, "\n")
	}
	render := func(rec []string, what string) error {
		if !terminated {
			buf.WriteString(newline(ds))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", what, err)
		}
		cw.Flush()
		terminated = true
		return cw.Error()
	}

	if ds.HeaderText != "" {
		emit(ds.HeaderText)
	} else {
		header := ds.Header
		if len(header) == 0 {
			header = DefaultHeader
		}
		if err := render(header, "header"); err != nil {
			return err
		}
	}
	for i, r := range ds.Rows {
		if !r.Generated() && r.Text != "" {
			emit(r.Text)
			continue
		}
		if err := render(ds.Record(i), fmt.Sprintf("row %d", i+1)); err != nil {
			return err
		}
	}
	if ds.Trailer != "" {
		buf.WriteString(ds.Trailer)
	}

	if _, err := io.WriteString(out, buf.String()); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode %s: %w", charsetName(ds.Charset), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", charsetName(ds.Charset), err)
	}
	return nil
}

func newline(ds *Dataset) string {
	if ds.Newline == "" {
		return "\n"
	}
	return ds.Newline
}

func charsetName(c string) string {
	if c == "" {
		return "utf-8"
	}
	return c
}

// Encode is Write into a fresh buffer.
func Encode(ds *Dataset, comma rune) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, ds, comma); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
