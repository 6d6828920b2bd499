package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"sleepgen/internal/blob"
	"sleepgen/internal/dataset"
	"sleepgen/internal/logging"
	"sleepgen/internal/storage"
)

// Severity grades a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity `yaml:"severity"`
	Path     string   `yaml:"path"`
	Message  string   `yaml:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// SinkKinds are the accepted sink.kind values besides "" (no export).
var SinkKinds = []string{"sqlite", "postgres", "mssql"}

// MetricsBackends are the accepted metrics.backend values besides "".
var MetricsBackends = []string{"none", "pushgateway", "datadog"}

// Validate checks c and returns every problem found, errors first in key
// order. A nil result means the config is usable.
func Validate(c *Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	input := strings.TrimSpace(c.InputPath)
	output := strings.TrimSpace(c.OutputPath)

	if input == "" {
		add(SeverityError, "input_path", "is required")
	}
	if output == "" && !c.InPlace {
		add(SeverityError, "output_path", "is required unless in_place is set")
	}
	if input != "" && output != "" && samePath(input, output) {
		if c.InPlace {
			add(SeverityWarning, "output_path", "equals input_path; the input table will be overwritten")
		} else {
			add(SeverityError, "output_path", "equals input_path; set in_place to overwrite the input")
		}
	}
	if c.InPlace && output != "" && input != "" && !samePath(input, output) {
		add(SeverityWarning, "in_place", "ignored because output_path differs from input_path")
	}
	if c.TargetCount < 0 {
		add(SeverityError, "target_count", "must be >= 0, got %d", c.TargetCount)
	}

	if utf8.RuneCountInString(c.CSV.Comma) != 1 {
		add(SeverityError, "csv.comma", "must be a single character, got %q", c.CSV.Comma)
	} else if r := c.CSV.CommaRune(); r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		add(SeverityError, "csv.comma", "%q cannot be used as a delimiter", c.CSV.Comma)
	}
	if err := dataset.ValidateCharset(c.CSV.Charset); err != nil {
		add(SeverityError, "csv.charset", "%v", err)
	}

	if kind := c.Sink.Kind; kind != "" {
		if !contains(SinkKinds, kind) {
			add(SeverityError, "sink.kind", "unknown kind %q (want one of %s)", kind, strings.Join(SinkKinds, ", "))
		}
		if strings.TrimSpace(c.Sink.DSN) == "" {
			add(SeverityError, "sink.dsn", "is required when sink.kind is %q", kind)
		}
		if err := storage.ValidateTableName(c.Sink.Table); err != nil {
			add(SeverityError, "sink.table", "%v", err)
		}
	}

	switch b := c.Metrics.Backend; {
	case b != "" && !contains(MetricsBackends, b):
		add(SeverityError, "metrics.backend", "unknown backend %q (want one of %s)", b, strings.Join(MetricsBackends, ", "))
	case b == "pushgateway":
		if u, err := url.Parse(c.Metrics.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, "metrics.pushgateway_url", "invalid url %q", c.Metrics.PushgatewayURL)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add(SeverityError, "log.level", "%v", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != logging.FormatConsole && f != logging.FormatJSON {
		add(SeverityError, "log.format", "unknown format %q", c.Log.Format)
	}

	// Errors first, stable otherwise.
	var errsFirst, warns []Issue
	for _, iss := range out {
		if iss.Severity == SeverityError {
			errsFirst = append(errsFirst, iss)
		} else {
			warns = append(warns, iss)
		}
	}
	return append(errsFirst, warns...)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	la, errA := blob.Parse(a)
	lb, errB := blob.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return la.Same(lb)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
