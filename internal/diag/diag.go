// Package diag holds the pipeline's diagnostic counters and periodic
// structured logging, grounded on the corpus's pattern of a
// component-tagged *slog.Logger reporting health/throughput snapshots
// rather than ad-hoc fmt.Printf calls.
package diag

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Counters are atomic, relaxed-ordering counters read only for
// diagnostics — never on a correctness path.
type Counters struct {
	Overflows  atomic.Uint64
	Underflows atomic.Uint64
}

// Snapshot is one point-in-time diagnostic record.
type Snapshot struct {
	InputRingFill  int
	OutputRingFill int
	Overflows      uint64
	Underflows     uint64
	HopsTotal      int64
	HopsDelta      int64
	PushedTotal    int64
	PushedDelta    int64
	PoppedTotal    int64
	PoppedDelta    int64
}

// Logger wraps a component-tagged *slog.Logger for the pipeline.
type Logger struct {
	l *slog.Logger
}

// NewLogger returns a Logger tagged with component "pipeline", falling
// back to slog.Default() when base is nil.
func NewLogger(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{l: base.With("component", "pipeline")}
}

// LogSnapshot emits one structured diagnostic record.
func (lg *Logger) LogSnapshot(s Snapshot) {
	lg.l.Info("diagnostics",
		"input_ring_fill", s.InputRingFill,
		"output_ring_fill", s.OutputRingFill,
		"overflows", s.Overflows,
		"underflows", s.Underflows,
		"hops_total", s.HopsTotal,
		"hops_delta", s.HopsDelta,
		"pushed_total", s.PushedTotal,
		"pushed_delta", s.PushedDelta,
		"popped_total", s.PoppedTotal,
		"popped_delta", s.PoppedDelta,
	)
}

// Warnf logs a non-fatal pipeline warning (stream start/stop failures,
// etc.) at warn level.
func (lg *Logger) Warnf(format string, args ...any) {
	lg.l.Warn(fmt.Sprintf(format, args...))
}
