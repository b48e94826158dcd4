package observability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TracerConfig configures the tracing system.
type TracerConfig struct {
	// Enabled turns on span logging.
	Enabled bool
	// ServiceName is attached to every started span.
	ServiceName string
	// Logger receives span records. Defaults to slog.Default().
	Logger *slog.Logger
}

// SpanStatus represents the status of a span.
type SpanStatus int

const (
	// SpanStatusUnset indicates the span status is not set.
	SpanStatusUnset SpanStatus = iota
	// SpanStatusOK indicates the operation completed successfully.
	SpanStatusOK
	// SpanStatusError indicates the operation failed.
	SpanStatusError
)

// Span represents a unit of work such as an install attempt or a poll loop.
type Span interface {
	// End completes the span.
	End()
	// SetStatus sets the span status.
	SetStatus(status SpanStatus, description string)
	// SetAttribute sets a span attribute.
	SetAttribute(key string, value any)
	// RecordError records an error on the span.
	RecordError(err error)
	// SpanContext returns the identifiers of the span.
	SpanContext() SpanContext
}

// SpanContext contains identifying trace information about a Span.
type SpanContext struct {
	TraceID string
	SpanID  string
}

// Tracer creates spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...any) (context.Context, Span)
	Shutdown(ctx context.Context) error
}

type noopSpan struct{}

func (noopSpan) End()                         {}
func (noopSpan) SetStatus(SpanStatus, string) {}
func (noopSpan) SetAttribute(string, any)     {}
func (noopSpan) RecordError(error)            {}
func (noopSpan) SpanContext() SpanContext     { return SpanContext{} }

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string, _ ...any) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopTracer) Shutdown(context.Context) error { return nil }

// loggingSpan writes its outcome to a slog logger when it ends.
type loggingSpan struct {
	mu         sync.Mutex
	name       string
	startTime  time.Time
	logger     *slog.Logger
	attributes []any
	status     SpanStatus
	statusDesc string
	err        error
	traceID    string
	spanID     string
	ended      bool
}

func (s *loggingSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	attrs := append([]any{
		"span", s.name,
		"duration_ms", time.Since(s.startTime).Milliseconds(),
		"trace_id", s.traceID,
		"span_id", s.spanID,
	}, s.attributes...)

	switch {
	case s.err != nil:
		s.logger.Error("span completed with error", append(attrs, "error", s.err.Error())...)
	case s.status == SpanStatusError:
		s.logger.Warn("span completed with error status", append(attrs, "status_description", s.statusDesc)...)
	default:
		s.logger.Debug("span completed", attrs...)
	}
}

func (s *loggingSpan) SetStatus(status SpanStatus, desc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.statusDesc = desc
}

func (s *loggingSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes = append(s.attributes, key, value)
}

func (s *loggingSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.status = SpanStatusError
}

func (s *loggingSpan) SpanContext() SpanContext {
	return SpanContext{TraceID: s.traceID, SpanID: s.spanID}
}

type loggingTracer struct {
	logger      *slog.Logger
	serviceName string
}

// NewLoggingTracer creates a tracer that logs spans through slog.
func NewLoggingTracer(logger *slog.Logger, serviceName string) Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTracer{logger: logger, serviceName: serviceName}
}

func (t *loggingTracer) Start(ctx context.Context, name string, attrs ...any) (context.Context, Span) {
	traceID := SpanFromContext(ctx).SpanContext().TraceID
	if traceID == "" {
		traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	span := &loggingSpan{
		name:       name,
		startTime:  time.Now(),
		logger:     t.logger,
		attributes: attrs,
		traceID:    traceID,
		spanID:     strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
	}
	t.logger.Debug("span started", "span", name, "trace_id", traceID, "span_id", span.spanID, "service", t.serviceName)

	return context.WithValue(ctx, spanContextKey{}, Span(span)), span
}

func (t *loggingTracer) Shutdown(context.Context) error {
	t.logger.Debug("tracer shutdown", "service", t.serviceName)
	return nil
}

type spanContextKey struct{}

// SpanFromContext returns the current span from context, or a noop span.
func SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanContextKey{}).(Span); ok {
		return span
	}
	return noopSpan{}
}

var (
	globalTracer   Tracer = noopTracer{}
	globalTracerMu sync.RWMutex
)

// GetTracer returns the global tracer instance.
func GetTracer() Tracer {
	globalTracerMu.RLock()
	defer globalTracerMu.RUnlock()
	return globalTracer
}

// SetTracer sets the global tracer instance.
func SetTracer(t Tracer) {
	globalTracerMu.Lock()
	defer globalTracerMu.Unlock()
	globalTracer = t
}

// InitTracer installs the global tracer. Disabled tracing uses a noop tracer.
func InitTracer(cfg TracerConfig) Tracer {
	var t Tracer = noopTracer{}
	if cfg.Enabled {
		t = NewLoggingTracer(cfg.Logger, cfg.ServiceName)
	}
	SetTracer(t)
	return t
}

// StartSpan starts a new span using the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, Span) {
	return GetTracer().Start(ctx, name, attrs...)
}

// TraceFunc runs fn inside a span and records its error.
func TraceFunc(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := StartSpan(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	} else {
		span.SetStatus(SpanStatusOK, "")
	}
	return err
}

// Common span attribute keys.
const (
	AttrSource           = "install.source"
	AttrUniqueIdentifier = "install.unique_identifier"
	AttrPluginID         = "install.plugin_id"
	AttrTaskID           = "task.id"
	AttrRepository       = "github.repository"
	AttrOutcome          = "install.outcome"
)
