// Package pipeline runs one expansion: load the base table, learn its
// occupation distribution, generate the missing records, persist the
// expanded table and optionally export it to a database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepgen/internal/blob"
	"sleepgen/internal/config"
	"sleepgen/internal/dataset"
	"sleepgen/internal/errs"
	"sleepgen/internal/generator"
	"sleepgen/internal/metrics"
	"sleepgen/internal/sampling"
	"sleepgen/internal/storage"
)

// Stage names, used in errors, logs and metric labels.
const (
	StageLoad     = "load"
	StageStats    = "stats"
	StageGenerate = "generate"
	StageWrite    = "write"
	StageSink     = "sink"
)

// Summary describes a finished run.
type Summary struct {
	RunID          string `yaml:"run_id" json:"run_id"`
	Seed           int64  `yaml:"seed" json:"seed"`
	Input          string `yaml:"input" json:"input"`
	Output         string `yaml:"output" json:"output"`
	OriginalCount  int    `yaml:"original_count" json:"original_count"`
	GeneratedCount int    `yaml:"generated_count" json:"generated_count"`
	TotalCount     int    `yaml:"total_count" json:"total_count"`
	FirstNewID     int64  `yaml:"first_new_id,omitempty" json:"first_new_id,omitempty"`
	LastNewID      int64  `yaml:"last_new_id,omitempty" json:"last_new_id,omitempty"`
	Sink           string `yaml:"sink,omitempty" json:"sink,omitempty"`
	ExportedRows   int64  `yaml:"exported_rows" json:"exported_rows"`
	Duration       string `yaml:"duration" json:"duration"`
}

// Runner executes expansions. The function fields are seams; NewRunner fills
// them with the production implementations.
type Runner struct {
	OpenStore func(ctx context.Context, raw string) (blob.Store, blob.Location, error)
	NewSink   func(ctx context.Context, cfg storage.Config) (storage.Sink, error)
	NewRunID  func() string
	Now       func() time.Time
	Log       *zap.Logger

	// Options are passed to generator.New.
	GeneratorOptions []generator.Option
}

// NewRunner returns a Runner wired to the registered blob stores and sinks.
// Callers link backends in with blank imports of blob/all and storage/all.
func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		OpenStore: blob.Open,
		NewSink:   storage.New,
		NewRunID:  func() string { return uuid.NewString() },
		Now:       time.Now,
		Log:       log,
	}
}

// Run performs the whole expansion described by cfg.
//
// Nothing is persisted unless generation succeeds in full. The input is only
// rewritten when the output location is the input location. Returned errors
// are *errs.Error values naming the failing stage, except for an invalid cfg.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (Summary, error) {
	if issues := config.Validate(cfg); config.HasErrors(issues) {
		return Summary{}, invalidConfig(issues)
	}

	start := r.Now()
	src := newSource(cfg)
	sum := Summary{
		RunID:  r.NewRunID(),
		Seed:   src.Seed(),
		Input:  cfg.InputPath,
		Output: cfg.OutputLocation(),
		Sink:   cfg.Sink.Kind,
	}
	log := r.Log.With(zap.String("run_id", sum.RunID), zap.Int64("seed", sum.Seed))
	log.Info("expansion started",
		zap.String("input", sum.Input),
		zap.String("output", sum.Output),
		zap.Int("target_count", cfg.TargetCount),
	)

	var base *dataset.Dataset
	err := r.step(ctx, log, StageLoad, errs.KindData, func() error {
		var err error
		base, err = r.load(ctx, cfg)
		return err
	})
	if err != nil {
		return sum, err
	}
	sum.OriginalCount = base.Len()
	metrics.RecordRecords("original", base.Len())

	var stats generator.Stats
	err = r.step(ctx, log, StageStats, errs.KindData, func() error {
		var err error
		stats, err = generator.DeriveStats(base)
		return err
	})
	if err != nil {
		return sum, err
	}
	log.Debug("base statistics",
		zap.Int("rows", stats.Rows),
		zap.Int64("max_person_id", stats.MaxPersonID),
		zap.Int("occupations", len(stats.Occupations)),
	)

	log.Debug("generating", zap.Int("records", generator.NewCount(base.Len(), cfg.TargetCount)))
	var expanded *dataset.Dataset
	err = r.step(ctx, log, StageGenerate, errs.KindRange, func() error {
		gen, err := generator.New(stats, src, r.GeneratorOptions...)
		if err != nil {
			return err
		}
		expanded, err = gen.Batch(base, cfg.TargetCount)
		return err
	})
	if err != nil {
		return sum, err
	}
	sum.TotalCount = expanded.Len()
	sum.GeneratedCount = expanded.Len() - base.Len()
	if sum.GeneratedCount > 0 {
		sum.FirstNewID = stats.MaxPersonID + 1
		sum.LastNewID = stats.MaxPersonID + int64(sum.GeneratedCount)
	}
	metrics.RecordRecords("generated", sum.GeneratedCount)

	err = r.step(ctx, log, StageWrite, errs.KindWrite, func() error {
		return r.write(ctx, cfg, expanded)
	})
	if err != nil {
		return sum, err
	}

	if cfg.Sink.Kind != "" {
		err = r.step(ctx, log, StageSink, errs.KindWrite, func() error {
			n, err := r.export(ctx, cfg, expanded)
			sum.ExportedRows = n
			return err
		})
		if err != nil {
			return sum, err
		}
	}

	sum.Duration = r.Now().Sub(start).Truncate(time.Millisecond).String()
	log.Info("expansion finished",
		zap.Int("original", sum.OriginalCount),
		zap.Int("generated", sum.GeneratedCount),
		zap.Int("total", sum.TotalCount),
		zap.Int64("exported", sum.ExportedRows),
		zap.String("duration", sum.Duration),
	)
	return sum, nil
}

// Stats loads the input named by cfg and derives its statistics without
// generating or writing anything.
func (r *Runner) Stats(ctx context.Context, cfg *config.Config) (generator.Stats, error) {
	ds, err := r.load(ctx, cfg)
	if err != nil {
		return generator.Stats{}, errs.WithStage(err, StageLoad, errs.KindData)
	}
	return generator.DeriveStats(ds)
}

// step runs fn as the named stage and records metrics. A stage does not
// start on a done context; that fails as KindCanceled instead of kind.
func (r *Runner) step(ctx context.Context, log *zap.Logger, stage string, kind errs.Kind, fn func() error) error {
	start := r.Now()
	var err error
	if cerr := ctx.Err(); cerr != nil {
		err = errs.Canceled(stage, cerr)
	} else {
		err = fn()
	}
	took := r.Now().Sub(start)

	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
		err = errs.WithStage(err, stage, kind)
		log.Error("stage failed", zap.String("stage", stage), zap.Duration("took", took), zap.Error(err))
	} else {
		log.Debug("stage done", zap.String("stage", stage), zap.Duration("took", took))
	}
	metrics.RecordStep(stage, status, took)
	return err
}

func (r *Runner) load(ctx context.Context, cfg *config.Config) (*dataset.Dataset, error) {
	store, loc, err := r.OpenStore(ctx, cfg.InputPath)
	if err != nil {
		return nil, errs.Data(StageLoad, "open %s: %w", cfg.InputPath, err)
	}
	defer func() { _ = store.Close() }()

	rc, err := store.Get(ctx, loc.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, errs.Data(StageLoad, "input %s does not exist: %w", cfg.InputPath, err)
		}
		return nil, errs.Data(StageLoad, "read %s: %w", cfg.InputPath, err)
	}
	defer func() { _ = rc.Close() }()

	return dataset.Read(rc, readOptions(cfg))
}

func (r *Runner) write(ctx context.Context, cfg *config.Config, ds *dataset.Dataset) error {
	data, err := dataset.Encode(ds, cfg.CSV.CommaRune())
	if err != nil {
		return errs.Write(StageWrite, "encode: %w", err)
	}

	out := cfg.OutputLocation()
	store, loc, err := r.OpenStore(ctx, out)
	if err != nil {
		return errs.Write(StageWrite, "open %s: %w", out, err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Put(ctx, loc.Key, data); err != nil {
		return errs.Write(StageWrite, "put %s: %w", out, err)
	}
	return nil
}

func (r *Runner) export(ctx context.Context, cfg *config.Config, ds *dataset.Dataset) (int64, error) {
	sink, err := r.NewSink(ctx, storage.Config{Kind: cfg.Sink.Kind, DSN: cfg.Sink.DSN})
	if err != nil {
		return 0, errs.Write(StageSink, "connect %s: %w", cfg.Sink.Kind, err)
	}
	defer sink.Close()

	if err := sink.EnsureTable(ctx, cfg.Sink.Table); err != nil {
		return 0, errs.Write(StageSink, "%w", err)
	}

	rows := make([][]any, ds.Len())
	for i := range rows {
		rows[i] = ds.Values(i)
	}
	n, err := sink.InsertPersons(ctx, cfg.Sink.Table, rows)
	if err != nil {
		return 0, errs.Write(StageSink, "%w", err)
	}
	return n, nil
}

func newSource(cfg *config.Config) *sampling.Source {
	if seed, ok := cfg.Seed(); ok {
		return sampling.NewSource(seed)
	}
	return sampling.NewTimeSource()
}

func readOptions(cfg *config.Config) dataset.ReadOptions {
	return dataset.ReadOptions{
		Comma:      cfg.CSV.CommaRune(),
		LazyQuotes: cfg.CSV.LazyQuotes,
		HeaderMap:  cfg.CSV.HeaderMap,
		Charset:    cfg.CSV.Charset,
	}
}

// ConfigError reports an unusable configuration.
type ConfigError struct {
	Issues []config.Issue
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, iss := range e.Issues {
		if iss.Severity == config.SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func invalidConfig(issues []config.Issue) error {
	return &ConfigError{Issues: issues}
}
