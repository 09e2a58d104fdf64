package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	resultOK    = "ok"
	resultError = "error"
	resultNoop  = "noop"
)

var (
	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskledger_store_operations_total",
			Help: "Task store operations by outcome",
		},
		[]string{"op", "result"},
	)

	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskledger_store_operation_duration_seconds",
			Help:    "Histogram of task store operation durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(storeOpsTotal, storeOpDuration)
}

// InstrumentedStore wraps a Store with metrics, spans and debug logs.
// It never changes what the wrapped store returns.
type InstrumentedStore struct {
	next   Store
	logger *slog.Logger
	tracer trace.Tracer
}

func NewInstrumentedStore(next Store, logger *slog.Logger) *InstrumentedStore {
	return &InstrumentedStore{
		next:   next,
		logger: logger,
		tracer: otel.Tracer("taskledger/tasks"),
	}
}

func (s *InstrumentedStore) Create(ctx context.Context, description string) error {
	ctx, span := s.tracer.Start(ctx, "tasks.create")
	defer span.End()
	span.SetAttributes(attribute.Int("task.description_len", len(description)))

	start := time.Now()
	err := s.next.Create(ctx, description)
	s.observe(ctx, span, "create", start, resultFor(err), err)
	return err
}

func (s *InstrumentedStore) Complete(ctx context.Context, index uint16) error {
	ctx, span := s.tracer.Start(ctx, "tasks.complete")
	defer span.End()
	span.SetAttributes(attribute.Int("task.index", int(index)))

	start := time.Now()
	var (
		touched = true
		err     error
	)
	if c, ok := s.next.(Completer); ok {
		touched, err = c.MarkComplete(ctx, index)
	} else {
		err = s.next.Complete(ctx, index)
	}

	result := resultOK
	switch {
	case err != nil:
		result = resultError
	case !touched:
		result = resultNoop
		s.logger.DebugContext(ctx, "task_complete_out_of_range", slog.Int("index", int(index)))
	}
	s.observe(ctx, span, "complete", start, result, err)
	return err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]Task, error) {
	ctx, span := s.tracer.Start(ctx, "tasks.list")
	defer span.End()

	start := time.Now()
	out, err := s.next.List(ctx)
	span.SetAttributes(attribute.Int("task.count", len(out)))
	s.observe(ctx, span, "list", start, resultFor(err), err)
	return out, err
}

func (s *InstrumentedStore) observe(ctx context.Context, span trace.Span, op string, start time.Time, result string, err error) {
	dur := time.Since(start)
	storeOpsTotal.WithLabelValues(op, result).Inc()
	storeOpDuration.WithLabelValues(op).Observe(dur.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "task_store_error",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.DebugContext(ctx, "task_store_op",
		slog.String("op", op),
		slog.String("result", result),
		slog.Float64("duration_ms", float64(dur.Microseconds())/1000.0),
	)
}

func resultFor(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
