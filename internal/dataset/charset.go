package dataset

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// lookupCharset resolves an IANA charset name. UTF-8 (and the empty name)
// resolve to a nil encoding, meaning "read bytes as-is".
func lookupCharset(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
	return enc, nil
}

// ValidateCharset reports whether name can be used as ReadOptions.Charset.
func ValidateCharset(name string) error {
	_, err := lookupCharset(name)
	return err
}

// decodeReader wraps r so it yields UTF-8 text decoded from charset.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// encodeWriter wraps w so UTF-8 text written to it lands in charset. The
// returned Closer flushes the encoder and must be called.
func encodeWriter(w io.Writer, charset string) (io.WriteCloser, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nopCloser{w}, nil
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
