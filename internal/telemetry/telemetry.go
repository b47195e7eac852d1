package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

const instrumentation = "github.com/MikeSquared-Agency/mimic"

// RotatingFile returns a size-rotated log file writer.
func RotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LogWriter returns a rotating file writer for path, or w when path is empty.
// The closer releases the file.
func LogWriter(w io.Writer, path string) (io.Writer, io.Closer, error) {
	if path == "" {
		return w, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f := RotatingFile(path)
	return f, f, nil
}

// Telemetry records pipeline counters and build spans.
type Telemetry struct {
	tracer trace.Tracer

	records       metric.Int64Counter
	messages      metric.Int64Counter
	skipped       metric.Int64Counter
	turns         metric.Int64Counter
	unattributed  metric.Int64Counter
	conversations metric.Int64Counter
	chats         metric.Int64Counter
	chatErrors    metric.Int64Counter
	runDuration   metric.Float64Histogram

	shutdown func(context.Context) error
}

// Noop returns telemetry that records nothing.
func Noop() *Telemetry {
	t, _ := New(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	return t
}

// Setup exports metrics and traces to a rotating file at path. An empty path
// disables telemetry.
func Setup(ctx context.Context, path string) (*Telemetry, error) {
	if path == "" {
		return Noop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("mimic"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	out := RotatingFile(path)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(10*time.Second))),
		sdkmetric.WithResource(res),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	t, err := New(mp, tp)
	if err != nil {
		return nil, err
	}
	t.shutdown = func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), out.Close())
	}
	return t, nil
}

// New creates the instruments on the given providers.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentation)
	t := &Telemetry{tracer: tp.Tracer(instrumentation)}

	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	t.records = counter("mimic.records", "Export records read")
	t.messages = counter("mimic.messages", "Messages included after normalization")
	t.skipped = counter("mimic.messages.skipped", "Records excluded by normalization, by reason")
	t.turns = counter("mimic.turns", "Turns produced by merging")
	t.unattributed = counter("mimic.turns.unattributed", "Turns removed by role assignment")
	t.conversations = counter("mimic.conversations", "Conversations segmented, by outcome")
	t.chats = counter("mimic.chats", "Chats processed, by contact type")
	t.chatErrors = counter("mimic.chat.errors", "Chats that failed to decode or format")
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	t.runDuration, err = meter.Float64Histogram("mimic.run.duration",
		metric.WithDescription("Build run duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}
	return t, nil
}

// Tracer returns the tracer build spans are started on.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordChat adds one chat's pipeline counts.
func (t *Telemetry) RecordChat(ctx context.Context, contact dataset.Contact, s dataset.Stats) {
	typ := metric.WithAttributes(attribute.String("contact_type", string(contact.Type)))
	t.chats.Add(ctx, 1, typ)
	t.records.Add(ctx, int64(s.Records))
	t.messages.Add(ctx, int64(s.Messages))
	t.turns.Add(ctx, int64(s.Turns))
	t.unattributed.Add(ctx, int64(s.Unattributed))

	for reason, n := range map[string]int{
		"service":   s.Service,
		"empty":     s.Empty,
		"malformed": s.Malformed,
		"media":     s.Media,
	} {
		if n > 0 {
			t.skipped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
		}
	}
	for outcome, n := range map[string]int{
		"kept":      s.Kept,
		"short":     s.DroppedShort,
		"group":     s.DroppedGroup,
		"one_sided": s.DroppedOneSided,
	} {
		if n > 0 {
			t.conversations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}

// RecordChatError counts a chat that could not be processed.
func (t *Telemetry) RecordChatError(ctx context.Context) {
	t.chatErrors.Add(ctx, 1)
}

// RecordRun records a finished build run.
func (t *Telemetry) RecordRun(ctx context.Context, elapsed time.Duration) {
	t.runDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond))
}

// Shutdown flushes and closes exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}
