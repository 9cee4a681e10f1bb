// Package telemetry contains the error reporting collaborators injected into
// share adapters. Reports are for operators only; users see share outcomes.
package telemetry

import (
	"context"

	"github.com/blacktop/xshare/internal/logutil"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reporter receives errors that indicate an unanticipated code path.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(ctx context.Context, err error)

func (f ReporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }

// Nop discards reports.
var Nop Reporter = ReporterFunc(func(context.Context, error) {})

// LogReporter writes reports to the process log.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, err error) {
	if err == nil {
		return
	}
	logutil.Error("unexpected share failure", "err", err)
}

// SpanReporter records reports on the share span carried by ctx, if any.
type SpanReporter struct{}

func (SpanReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Multi fans a report out to every reporter.
func Multi(reporters ...Reporter) Reporter {
	return ReporterFunc(func(ctx context.Context, err error) {
		for _, r := range reporters {
			if r != nil {
				r.Report(ctx, err)
			}
		}
	})
}

// Default is the reporter adapters use when none is injected.
func Default() Reporter {
	return Multi(LogReporter{}, SpanReporter{})
}
