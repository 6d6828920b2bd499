package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"sleepgen/internal/config"
	"sleepgen/internal/errs"
	"sleepgen/internal/generator"
	"sleepgen/internal/metrics"
	"sleepgen/internal/metrics/datadog"
	"sleepgen/internal/pipeline"
)

// fakeRunner records the config it received and returns canned results.
type fakeRunner struct {
	sum   pipeline.Summary
	stats generator.Stats
	err   error

	calls atomic.Int64

	mu      sync.Mutex
	lastCfg *config.Config
}

func (r *fakeRunner) Run(_ context.Context, cfg *config.Config) (pipeline.Summary, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastCfg = cfg
	r.mu.Unlock()
	return r.sum, r.err
}

func (r *fakeRunner) Stats(_ context.Context, cfg *config.Config) (generator.Stats, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastCfg = cfg
	r.mu.Unlock()
	return r.stats, r.err
}

// fakeDeps returns deps around r whose metrics init counts cleanups.
func fakeDeps(r *fakeRunner, cleanups *atomic.Int64) appDeps {
	return appDeps{
		newRunner: func(*zap.Logger) runner { return r },
		initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
			return func() { cleanups.Add(1) }, nil
		},
	}
}

// failingDeps fatals on any use, proving usage errors short-circuit.
func failingDeps(t *testing.T) appDeps {
	return appDeps{
		newRunner: func(*zap.Logger) runner {
			t.Fatalf("newRunner must not be called")
			return nil
		},
		initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
			t.Fatalf("initMetrics must not be called")
			return func() {}, nil
		},
	}
}

func TestRunMain_UsageErrors(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{name: "no_command", args: nil, wantStderrSub: "a command is required"},
		{name: "unknown_command", args: []string{"nope"}, wantStderrSub: "unknown command"},
		{name: "unknown_flag", args: []string{"expand", "--nope"}, wantStderrSub: "unknown flag"},
		{name: "bad_flag_value", args: []string{"expand", "--target", "many"}, wantStderrSub: "invalid argument"},
		{name: "extra_args", args: []string{"expand", "stray"}, wantStderrSub: "unknown command"},
		{name: "missing_input", args: []string{"expand", "--output", "o.csv"}, wantStderrSub: "input_path: is required"},
		{name: "same_path_without_in_place", args: []string{"expand", "--input", "a.csv", "--output", "a.csv"}, wantStderrSub: "set in_place"},
		{name: "missing_config_file", args: []string{"expand", "--config", "/nonexistent/sleepgen.yaml"}, wantStderrSub: "read config"},
		{name: "stats_without_input", args: []string{"stats"}, wantStderrSub: "--input is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, failingDeps(t))

			if code != exitUsage {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, exitUsage, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_ExpandPrintsSummary(t *testing.T) {
	r := &fakeRunner{sum: pipeline.Summary{
		RunID:          "r1",
		Seed:           42,
		OriginalCount:  374,
		GeneratedCount: 426,
		TotalCount:     800,
		FirstNewID:     375,
		LastNewID:      800,
	}}
	var cleanups atomic.Int64
	var stdout, stderr bytes.Buffer

	code := runMain(context.Background(),
		[]string{"expand", "--input", "in.csv", "--output", "out.csv", "--seed", "42", "--target", "800", "-v"},
		&stdout, &stderr, fakeDeps(r, &cleanups))
	if code != exitOK {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if r.calls.Load() != 1 {
		t.Fatalf("runner calls=%d, want 1", r.calls.Load())
	}
	if cleanups.Load() != 1 {
		t.Fatalf("metrics cleanup calls=%d, want 1", cleanups.Load())
	}

	cfg := r.lastCfg
	if cfg.InputPath != "in.csv" || cfg.OutputPath != "out.csv" || cfg.TargetCount != 800 {
		t.Fatalf("config not propagated: %+v", cfg)
	}
	if seed, ok := cfg.Seed(); !ok || seed != 42 {
		t.Fatalf("seed=%d,%v want 42,true", seed, ok)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level=%q, want debug with -v", cfg.Log.Level)
	}

	var got pipeline.Summary
	if err := yaml.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("summary is not YAML: %v\n%s", err, stdout.String())
	}
	if got != r.sum {
		t.Fatalf("summary=%+v, want %+v", got, r.sum)
	}
}

func TestRunMain_ExpandConfigFileAndWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepgen.yaml")
	body := "input_path: data.csv\noutput_path: data.csv\nin_place: true\ntarget_count: 500\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{}
	var cleanups atomic.Int64
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"expand", "--config", path}, &stdout, &stderr, fakeDeps(r, &cleanups))
	if code != exitOK {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "warning: output_path") {
		t.Fatalf("stderr=%q, want overwrite warning", stderr.String())
	}
	if r.lastCfg.TargetCount != 500 || !r.lastCfg.InPlace {
		t.Fatalf("config file not applied: %+v", r.lastCfg)
	}
}

func TestRunMain_RunFailureIsExitOne(t *testing.T) {
	r := &fakeRunner{err: errs.Data("load", "missing required column %q", "occupation")}
	var cleanups atomic.Int64
	var stdout, stderr bytes.Buffer

	code := runMain(context.Background(), []string{"expand", "--input", "in.csv", "--output", "out.csv"}, &stdout, &stderr, fakeDeps(r, &cleanups))
	if code != exitFailure {
		t.Fatalf("exit code=%d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "load: data error") {
		t.Fatalf("stderr=%q, want failing stage named", stderr.String())
	}
	if cleanups.Load() != 1 {
		t.Fatalf("metrics cleanup must run on failure, calls=%d", cleanups.Load())
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q, want empty", stdout.String())
	}
}

func TestRunMain_MetricsInitFailureContinues(t *testing.T) {
	r := &fakeRunner{}
	deps := appDeps{
		newRunner: func(*zap.Logger) runner { return r },
		initMetrics: func(context.Context, config.MetricsConfig, *zap.Logger) (func(), error) {
			return func() {}, errors.New("gateway down")
		},
	}
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"expand", "--input", "in.csv", "--output", "out.csv"}, &stdout, &stderr, deps)
	if code != exitOK {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "gateway down") {
		t.Fatalf("stderr=%q, want metrics warning", stderr.String())
	}
}

func TestRunMain_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := runMain(context.Background(), []string{"validate", "--input", "a.csv", "--output", "b.csv"}, &stdout, &stderr, failingDeps(t))
		if code != exitOK {
			t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
		}
		if !strings.Contains(stdout.String(), "configuration is valid") {
			t.Fatalf("stdout=%q", stdout.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := runMain(context.Background(), []string{"validate", "--input", "a.csv", "--output", "b.csv", "--sink", "oracle"}, &stdout, &stderr, failingDeps(t))
		if code != exitFailure {
			t.Fatalf("exit code=%d, want %d", code, exitFailure)
		}
		if !strings.Contains(stderr.String(), "error: sink.kind") {
			t.Fatalf("stderr=%q, want sink.kind issue", stderr.String())
		}
	})
}

func TestRunMain_Stats(t *testing.T) {
	r := &fakeRunner{stats: generator.Stats{
		Rows:        3,
		MaxPersonID: 9,
		Occupations: []generator.OccupationShare{{Name: "Nurse", Count: 3, Probability: 1}},
	}}
	var cleanups atomic.Int64
	var stdout, stderr bytes.Buffer

	code := runMain(context.Background(), []string{"stats", "--input", "in.csv", "--comma", ";"}, &stdout, &stderr, fakeDeps(r, &cleanups))
	if code != exitOK {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if r.lastCfg.CSV.CommaRune() != ';' {
		t.Fatalf("comma=%q, want ;", r.lastCfg.CSV.Comma)
	}
	if cleanups.Load() != 0 {
		t.Fatalf("stats must not initialize metrics")
	}

	var got generator.Stats
	if err := yaml.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stats is not YAML: %v", err)
	}
	if got.MaxPersonID != 9 || len(got.Occupations) != 1 || got.Occupations[0].Name != "Nurse" {
		t.Fatalf("stats=%+v", got)
	}
}

func TestRunMain_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runMain(context.Background(), []string{"version"}, &stdout, &stderr, failingDeps(t)); code != exitOK {
		t.Fatalf("exit code=%d", code)
	}
	if got := stdout.String(); got != "sleepgen dev\n" {
		t.Fatalf("stdout=%q", got)
	}
}

// fakeMetricsBackend is a closing backend that counts Close calls.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
	flushed  atomic.Int64
}

func (b *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels) {}

func (b *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}

func (b *fakeMetricsBackend) Flush() error {
	b.flushed.Add(1)
	return b.closeErr
}

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// swapSeams replaces the metrics seams for one test.
func swapSeams(t *testing.T) {
	t.Helper()
	oldDD, oldProm, oldSet := newDatadogBackend, newPromBackend, setMetricsBackend
	t.Cleanup(func() {
		newDatadogBackend, newPromBackend, setMetricsBackend = oldDD, oldProm, oldSet
	})
}

func TestInitMetrics_None_DoesNotMutateGlobalState(t *testing.T) {
	swapSeams(t)
	setMetricsBackend = func(metrics.Backend) {
		t.Fatalf("setMetricsBackend must not be called for none")
	}

	for _, backend := range []string{"", "none"} {
		cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: backend}, zap.NewNop())
		if err != nil {
			t.Fatalf("initMetrics(%q) err=%v, want nil", backend, err)
		}
		if cleanup == nil {
			t.Fatalf("cleanup=nil, want non-nil")
		}
		cleanup()
	}
}

func TestInitMetrics_Datadog_WiresBackendAndCloses(t *testing.T) {
	swapSeams(t)
	b := &fakeMetricsBackend{}
	var gotOpts datadog.Options
	var setCalls atomic.Int64

	newDatadogBackend = func(_ context.Context, opts datadog.Options) (closingBackend, error) {
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) { setCalls.Add(1) }

	core, logs := observer.New(zap.WarnLevel)
	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{
		Backend: "datadog",
		Job:     "nightly",
		Tags:    "team:health, env:prod",
	}, zap.New(core))
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	if gotOpts.JobName != "nightly" {
		t.Fatalf("JobName=%q, want nightly", gotOpts.JobName)
	}
	if len(gotOpts.Tags) != 2 || gotOpts.Tags[1] != "env:prod" {
		t.Fatalf("Tags=%v", gotOpts.Tags)
	}
	if setCalls.Load() != 1 {
		t.Fatalf("setMetricsBackend calls=%d, want 1", setCalls.Load())
	}

	cleanup()
	if b.closed.Load() != 1 {
		t.Fatalf("backend closed=%d, want 1", b.closed.Load())
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}

func TestInitMetrics_Datadog_CloseErrorIsLogged(t *testing.T) {
	swapSeams(t)
	b := &fakeMetricsBackend{closeErr: errors.New("flush failed")}
	newDatadogBackend = func(context.Context, datadog.Options) (closingBackend, error) { return b, nil }
	setMetricsBackend = func(metrics.Backend) {}

	core, logs := observer.New(zap.WarnLevel)
	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "datadog"}, zap.New(core))
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	cleanup()

	entries := logs.FilterMessage("metrics: datadog close failed").All()
	if len(entries) != 1 {
		t.Fatalf("warnings=%v, want one close failure", logs.All())
	}
	if got := entries[0].ContextMap()["error"]; got != "flush failed" {
		t.Fatalf("logged error=%v, want flush failed", got)
	}
}

func TestInitMetrics_Pushgateway_FlushesOnCleanup(t *testing.T) {
	swapSeams(t)
	b := &fakeMetricsBackend{}
	var gotJob, gotURL string
	var gotGrouping map[string]string
	newPromBackend = func(job, url string, grouping map[string]string) (metrics.Backend, error) {
		gotJob, gotURL, gotGrouping = job, url, grouping
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) {}

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{
		Backend:        "pushgateway",
		PushgatewayURL: "http://gw:9091",
		Tags:           "env:test, nightly, instance:etl-1",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	if gotJob != config.DefaultJob || gotURL != "http://gw:9091" {
		t.Fatalf("job=%q url=%q", gotJob, gotURL)
	}
	if want := map[string]string{"env": "test", "instance": "etl-1"}; !reflect.DeepEqual(gotGrouping, want) {
		t.Fatalf("grouping=%v, want %v", gotGrouping, want)
	}
	if b.flushed.Load() != 0 {
		t.Fatalf("push must wait for cleanup")
	}
	cleanup()
	if b.flushed.Load() != 1 {
		t.Fatalf("flushed=%d, want 1", b.flushed.Load())
	}
}

func TestInitMetrics_UnknownBackendErrors(t *testing.T) {
	swapSeams(t)
	setMetricsBackend = func(metrics.Backend) {
		t.Fatalf("setMetricsBackend must not be called")
	}

	cleanup, err := initMetrics(context.Background(), config.MetricsConfig{Backend: "statsd"}, zap.NewNop())
	if err == nil {
		t.Fatalf("initMetrics err=nil, want error")
	}
	if cleanup == nil {
		t.Fatalf("cleanup=nil, want non-nil")
	}
	cleanup()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"usage", usagef("bad"), exitUsage},
		{"config", &pipeline.ConfigError{}, exitUsage},
		{"runtime", errs.Write("write", "disk full"), exitFailure},
		{"canceled", context.Canceled, exitFailure},
		{"stage_canceled", errs.Canceled("load", context.Canceled), exitFailure},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("%s: exitCode=%d, want %d", tc.name, got, tc.want)
		}
	}
}
