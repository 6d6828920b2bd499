// Package config loads and validates sleepgen run options.
//
// Precedence is flag > environment (SLEEPGEN_*, dots become underscores) >
// YAML config file > default.
package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. SLEEPGEN_SINK_DSN.
const EnvPrefix = "SLEEPGEN"

// Defaults.
const (
	DefaultTargetCount    = 800
	DefaultSinkTable      = "sleep_health"
	DefaultPushgatewayURL = "http://localhost:9091"
	DefaultJob            = "sleepgen"
)

// Config is the full set of run options.
type Config struct {
	InputPath   string `mapstructure:"input_path" yaml:"input_path"`
	OutputPath  string `mapstructure:"output_path" yaml:"output_path"`
	InPlace     bool   `mapstructure:"in_place" yaml:"in_place"`
	TargetCount int    `mapstructure:"target_count" yaml:"target_count"`
	// RandomSeed is nil when unset; the run then seeds from the clock and
	// reports the seed it used.
	RandomSeed *int64 `mapstructure:"random_seed" yaml:"random_seed,omitempty"`

	CSV     CSVConfig     `mapstructure:"csv" yaml:"csv"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// CSVConfig controls the table codec.
type CSVConfig struct {
	Comma      string            `mapstructure:"comma" yaml:"comma"`
	Charset    string            `mapstructure:"charset" yaml:"charset"`
	LazyQuotes bool              `mapstructure:"lazy_quotes" yaml:"lazy_quotes"`
	HeaderMap  map[string]string `mapstructure:"header_map" yaml:"header_map,omitempty"`
}

// SinkConfig selects the optional database export.
type SinkConfig struct {
	Kind  string `mapstructure:"kind" yaml:"kind"`
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
	Tags           string `mapstructure:"tags" yaml:"tags"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CommaRune returns the delimiter rune, or ',' when the option is not a single rune.
func (c CSVConfig) CommaRune() rune {
	r, n := utf8.DecodeRuneInString(c.Comma)
	if n == 0 || n != len(c.Comma) || r == utf8.RuneError {
		return ','
	}
	return r
}

// Seed returns the configured seed and whether one was set.
func (c *Config) Seed() (int64, bool) {
	if c.RandomSeed == nil {
		return 0, false
	}
	return *c.RandomSeed, true
}

// OutputLocation is where the expanded table goes: input_path when running
// in place without an explicit output, else output_path.
func (c *Config) OutputLocation() string {
	if c.InPlace && strings.TrimSpace(c.OutputPath) == "" {
		return c.InputPath
	}
	return c.OutputPath
}

// keys lists every option so environment variables are visible to Unmarshal.
var keys = []string{
	"input_path",
	"output_path",
	"in_place",
	"target_count",
	"random_seed",
	"csv.comma",
	"csv.charset",
	"csv.lazy_quotes",
	"sink.kind",
	"sink.dsn",
	"sink.table",
	"metrics.backend",
	"metrics.pushgateway_url",
	"metrics.job",
	"metrics.tags",
	"log.level",
	"log.format",
}

// FlagKeys maps CLI flag names to config keys.
var FlagKeys = map[string]string{
	"input":           "input_path",
	"output":          "output_path",
	"in-place":        "in_place",
	"target":          "target_count",
	"seed":            "random_seed",
	"comma":           "csv.comma",
	"charset":         "csv.charset",
	"sink":            "sink.kind",
	"sink-dsn":        "sink.dsn",
	"sink-table":      "sink.table",
	"metrics-backend": "metrics.backend",
	"pushgateway-url": "metrics.pushgateway_url",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("in_place", false)
	v.SetDefault("target_count", DefaultTargetCount)
	v.SetDefault("csv.comma", ",")
	v.SetDefault("csv.charset", "utf-8")
	v.SetDefault("csv.lazy_quotes", false)
	v.SetDefault("sink.kind", "")
	v.SetDefault("sink.table", DefaultSinkTable)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", DefaultPushgatewayURL)
	v.SetDefault("metrics.job", DefaultJob)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load builds a Config from defaults, the optional YAML file at path, the
// environment and the changed flags in fs (fs may be nil).
//
// A missing explicit config file is an error. sink.dsn has $VAR references
// expanded from the environment.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range FlagKeys {
			f := fs.Lookup(name)
			// Unchanged flags must not shadow file or env values.
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Sink.DSN = os.ExpandEnv(c.Sink.DSN)
	return &c, nil
}
