package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sleepgen/internal/config"
	"sleepgen/internal/metrics"
	"sleepgen/internal/metrics/datadog"
	"sleepgen/internal/metrics/prompush"
)

// closingBackend is a metrics backend that owns resources (the Datadog flush
// loop) and must be closed.
type closingBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (closingBackend, error) {
		b, err := datadog.NewBackend(ctx, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	newPromBackend = func(job, url string, grouping map[string]string) (metrics.Backend, error) {
		opts := make([]prompush.Option, 0, len(grouping))
		for k, v := range grouping {
			opts = append(opts, prompush.WithGrouping(k, v))
		}
		b, err := prompush.NewBackend(job, url, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	setMetricsBackend = metrics.SetBackend
)

// datadogFlushEvery is the periodic submit interval of the Datadog backend.
const datadogFlushEvery = 60 * time.Second

// initMetrics wires the configured backend into the metrics package.
//
// The returned cleanup is never nil and must be called exactly once after
// the run: it pushes (pushgateway) or closes and flushes (datadog). Cleanup
// failures are logged, not returned.
func initMetrics(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error) {
	noop := func() {}
	job := cfg.Job
	if job == "" {
		job = config.DefaultJob
	}

	switch cfg.Backend {
	case "", "none":
		log.Debug("metrics disabled")
		return noop, nil

	case "pushgateway":
		grouping := pushGrouping(datadog.ParseTags(cfg.Tags))
		b, err := newPromBackend(job, cfg.PushgatewayURL, grouping)
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		log.Debug("metrics backend ready",
			zap.String("backend", cfg.Backend),
			zap.String("url", cfg.PushgatewayURL),
			zap.String("job", job),
			zap.Any("grouping", grouping),
		)
		return func() {
			if err := b.Flush(); err != nil {
				log.Warn("metrics: pushgateway push failed", zap.Error(err))
			}
		}, nil

	case "datadog":
		tags := datadog.ParseTags(cfg.Tags)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: datadogFlushEvery,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		log.Debug("metrics backend ready",
			zap.String("backend", cfg.Backend),
			zap.String("job", job),
			zap.Strings("tags", tags),
		)
		return func() {
			// Close stops the flush loop and submits what is left.
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close failed", zap.Error(err))
			}
		}, nil

	default:
		return noop, fmt.Errorf("metrics: unknown backend %q", cfg.Backend)
	}
}

// pushGrouping turns key:value tags into Pushgateway grouping labels. Tags
// without a value only apply to Datadog.
func pushGrouping(tags []string) map[string]string {
	var out map[string]string
	for _, t := range tags {
		k, v, ok := strings.Cut(t, ":")
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}
