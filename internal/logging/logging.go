// Package logging provides the ambient observability surface shared across
// packages: env-gated debug output in the teacher's style, plus thin
// tracing helpers so Store/queue operations emit spans the same way the
// teacher's hook runner does.
package logging

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu      sync.RWMutex
	enabled = os.Getenv("ABATHUR_DEBUG") != ""
)

// Enabled reports whether debug output is currently turned on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetVerbose overrides the ABATHUR_DEBUG env var for the process lifetime,
// for `--verbose`-style CLI flags.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// Debugf writes to stderr only when debug output is enabled.
func Debugf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// StartSpan starts a span named name on the tracer identified by
// component (an import-path-shaped string, matching the teacher's
// `otel.Tracer("github.com/steveyegge/beads/hooks")` convention), with the
// given attributes attached.
func StartSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(component)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span (if non-nil) and ends it. Call via defer
// immediately after StartSpan, capturing the named error return:
//
//	ctx, span := logging.StartSpan(ctx, "abathur/store", "store.complete_task")
//	defer func() { logging.EndSpan(span, retErr) }()
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
