package worker

import (
	"context"
	"log/slog"

	"realreview/internal/audit"
	"realreview/internal/audit/metrics"
)

// Sink delivers an event to an external system.
type Sink interface {
	Send(ctx context.Context, event *audit.ModerationEvent) error
}

// Worker drains the publisher queue into a sink. Failed sends are logged and
// counted, never retried.
type Worker struct {
	sink    Sink
	inbox   <-chan *audit.ModerationEvent
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewWorker(sink Sink, inbox <-chan *audit.ModerationEvent, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger, metrics: m}
}

// Run forwards events until ctx is done or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) forward(ctx context.Context, event *audit.ModerationEvent) {
	if err := w.sink.Send(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "moderation event forward failed",
			"event_id", event.ID.String(),
			"image_id", event.ImageID.String(),
			"error", err,
		)
		if w.metrics != nil {
			w.metrics.IncrementForwardFailed()
		}
		return
	}
	if w.metrics != nil {
		w.metrics.IncrementForwarded()
	}
}
