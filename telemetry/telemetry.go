// Package telemetry defines the narrow logging, metrics, and tracing
// interfaces used throughout the platform. platform.Options accepts these
// interfaces (there are no package-level globals), and platform.New
// substitutes noop implementations when the caller leaves them nil; no
// other subsystem's constructor takes them.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Logger captures structured logging used throughout the runtime.
// Implementations typically delegate to an OTel-backed logger in
// production, but the interface is intentionally small so tests and the
// default noop can satisfy it trivially.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying tracing provider.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End()
	AddEvent(name string, keyvals ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error)
}
