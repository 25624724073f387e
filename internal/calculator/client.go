package calculator

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metrics
var (
	calcBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_calc_batches_total",
		Help: "Total number of calculation batches sent to engines",
	}, []string{"engine", "outcome"})

	calcItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_calc_items_failed_total",
		Help: "Total number of calculation items that failed after per-item retry",
	}, []string{"engine"})
)

// ErrorReporter is the subset of the error-reporting collaborator the
// client needs.
type ErrorReporter interface {
	Report(component string, err error, keysAndValues ...any)
}

// Client wraps a registry of engines with batch calculation and graceful
// per-item fallback: if a whole batch fails, every item is retried alone,
// so data loss is bounded to genuinely-failing inputs.
type Client struct {
	registry  *Registry
	reporter  ErrorReporter
	logger    *zap.SugaredLogger
	batchSize int
}

func NewClient(registry *Registry, reporter ErrorReporter, logger *zap.SugaredLogger, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Client{
		registry:  registry,
		reporter:  reporter,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Info returns the engine's advertised (name, version).
func (c *Client) Info(ctx context.Context, engineName string) (EngineInfo, error) {
	engine, err := c.registry.Get(engineName)
	if err != nil {
		return EngineInfo{}, err
	}
	return engine.Info(ctx)
}

// Calculate runs the requests through the named engine. The returned
// slice always has one entry per input, in input order; entries for items
// that failed after all retries have a nil value map and the failure is
// reported, never returned. Only an unknown engine name is an error.
func (c *Client) Calculate(ctx context.Context, engineName string, requests []Request) ([]Result, error) {
	engine, err := c.registry.Get(engineName)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(requests))
	for start := 0; start < len(requests); start += c.batchSize {
		end := start + c.batchSize
		if end > len(requests) {
			end = len(requests)
		}
		c.calculateChunk(ctx, engineName, engine, requests[start:end], results[start:end])
	}
	return results, nil
}

func (c *Client) calculateChunk(ctx context.Context, engineName string, engine Engine, requests []Request, results []Result) {
	batch, err := engine.CalculateBatch(ctx, requests)
	if err == nil {
		copy(results, batch)
		calcBatches.WithLabelValues(engineName, "ok").Inc()
		return
	}

	// Wholesale batch failure: retry one item at a time so the remaining
	// items still produce results.
	calcBatches.WithLabelValues(engineName, "failed").Inc()
	c.logger.Warnw("Calculation batch failed, retrying per item",
		"engine", engineName,
		"batch_size", len(requests),
		"error", err,
	)

	for i, req := range requests {
		single, itemErr := engine.CalculateBatch(ctx, []Request{req})
		if itemErr != nil || len(single) != 1 || single[0].Failed() {
			if itemErr == nil {
				itemErr = fmt.Errorf("engine %s returned no values", engineName)
			}
			calcItemsFailed.WithLabelValues(engineName).Inc()
			c.reporter.Report("calculator", itemErr,
				"engine", engineName,
				"beatmap_id", req.BeatmapID,
				"mods", req.Mods,
			)
			continue
		}
		results[i] = single[0]
	}
}
