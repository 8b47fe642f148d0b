package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Engine instruments, created lazily from the global meter. The otel
// global delegates late provider installation, so the helpers work no
// matter how they interleave with Init; when telemetry is disabled the
// instruments are no-ops.
var (
	instrumentsOnce sync.Once
	sessionsCreated metric.Int64Counter
	flushWrites     metric.Int64Counter
	flushSaved      metric.Int64Counter
	researchDone    metric.Int64Counter
	researchFailed  metric.Int64Counter
	itemsComplete   metric.Int64Counter
	itemsFailed     metric.Int64Counter
	itemDuration    metric.Float64Histogram
)

func instruments() {
	instrumentsOnce.Do(func() {
		m := Meter(instrumentationScope)
		sessionsCreated, _ = m.Int64Counter("prpforge.sessions.created",
			metric.WithDescription("Sessions created, delta sessions included"),
		)
		flushWrites, _ = m.Int64Counter("prpforge.flush.writes",
			metric.WithDescription("Registry flushes written to disk"),
		)
		flushSaved, _ = m.Int64Counter("prpforge.flush.saved_writes",
			metric.WithDescription("Disk writes avoided by coalescing status updates"),
		)
		researchDone, _ = m.Int64Counter("prpforge.research.completed",
			metric.WithDescription("Research jobs that produced an artifact"),
		)
		researchFailed, _ = m.Int64Counter("prpforge.research.failed",
			metric.WithDescription("Research jobs that returned an error"),
		)
		itemsComplete, _ = m.Int64Counter("prpforge.items.completed",
			metric.WithDescription("Backlog items executed to completion"),
		)
		itemsFailed, _ = m.Int64Counter("prpforge.items.failed",
			metric.WithDescription("Backlog items that failed execution"),
		)
		itemDuration, _ = m.Float64Histogram("prpforge.item.duration",
			metric.WithDescription("End-to-end item execution duration in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// CountSessionCreated counts one created session.
func CountSessionCreated(ctx context.Context) {
	instruments()
	sessionsCreated.Add(ctx, 1)
}

// CountFlush counts one registry write that coalesced the given number
// of buffered updates, saving saved individual writes.
func CountFlush(ctx context.Context, updates, saved int) {
	instruments()
	flushWrites.Add(ctx, 1, metric.WithAttributes(attribute.Int("prpforge.flush.updates", updates)))
	if saved > 0 {
		flushSaved.Add(ctx, int64(saved))
	}
}

// CountResearch counts one finished research job by outcome.
func CountResearch(ctx context.Context, err error) {
	instruments()
	if err != nil {
		researchFailed.Add(ctx, 1)
		return
	}
	researchDone.Add(ctx, 1)
}

// ObserveItem records one executed item: duration plus the completion
// or failure counter.
func ObserveItem(ctx context.Context, d time.Duration, err error) {
	instruments()
	itemDuration.Record(ctx, float64(d.Milliseconds()))
	if err != nil {
		itemsFailed.Add(ctx, 1)
		return
	}
	itemsComplete.Add(ctx, 1)
}

// StartItemSpan opens a span covering one item's execution.
func StartItemSpan(ctx context.Context, itemID string) (context.Context, trace.Span) {
	return Tracer(instrumentationScope).Start(ctx, "orchestrator.processItem",
		trace.WithAttributes(attribute.String("prpforge.item.id", itemID)),
	)
}

// FinishSpan ends a span, recording err when non-nil.
func FinishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
