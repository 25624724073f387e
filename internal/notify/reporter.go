// Package notify holds the outward-facing side effects of the engine:
// error reporting and best-effort leaderboard notifications. Both are
// fire-and-forget; neither ever fails a caller.
package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var reportedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ranking_reported_errors_total",
	Help: "Total number of errors absorbed and reported by component",
}, []string{"component"})

// ErrorReporter receives errors that were absorbed instead of propagated
// (calculation failures, notification delivery failures). Implementations
// must never panic or return.
type ErrorReporter interface {
	Report(component string, err error, keysAndValues ...any)
}

// ZapReporter reports errors to the structured log and a prometheus
// counter.
type ZapReporter struct {
	logger *zap.SugaredLogger
}

func NewZapReporter(logger *zap.SugaredLogger) *ZapReporter {
	return &ZapReporter{logger: logger}
}

func (r *ZapReporter) Report(component string, err error, keysAndValues ...any) {
	if err == nil {
		return
	}
	reportedErrors.WithLabelValues(component).Inc()
	kv := append([]any{"component", component, "error", err}, keysAndValues...)
	r.logger.Errorw("Absorbed error", kv...)
}

// NopReporter discards everything. Used in tests.
type NopReporter struct{}

func (NopReporter) Report(string, error, ...any) {}
