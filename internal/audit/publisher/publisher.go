package publisher

import (
	"context"
	"log/slog"

	"realreview/internal/audit"
	"realreview/internal/audit/metrics"
	id "realreview/pkg/domain"
)

const DefaultQueueSize = 1024

// Store is the durable moderation log.
type Store interface {
	Append(ctx context.Context, event *audit.ModerationEvent) error
	ListByImage(ctx context.Context, imageID id.ImageID) ([]*audit.ModerationEvent, error)
}

// Publisher appends moderation events to the store and hands them to the
// forwarding worker. The store append is authoritative; forwarding is best
// effort.
type Publisher struct {
	store   Store
	queue   chan *audit.ModerationEvent
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

// WithForwarding enables the forward queue with the given capacity.
func WithForwarding(size int) Option {
	return func(p *Publisher) {
		if size <= 0 {
			size = DefaultQueueSize
		}
		p.queue = make(chan *audit.ModerationEvent, size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Record appends event to the store. Called inside the caller's transaction.
func (p *Publisher) Record(ctx context.Context, event *audit.ModerationEvent) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.IncrementRecorded(string(event.Action))
	}
	return nil
}

// Forward queues event for the broker without blocking. A full queue drops
// the event; it is still in the store.
func (p *Publisher) Forward(event *audit.ModerationEvent) {
	if p.queue == nil {
		return
	}
	select {
	case p.queue <- event:
	default:
		p.logger.Warn("moderation event forward dropped",
			"event_id", event.ID.String(),
			"image_id", event.ImageID.String(),
			"action", string(event.Action),
		)
		if p.metrics != nil {
			p.metrics.IncrementDropped()
		}
	}
}

// History returns the stored events for an image, oldest first.
func (p *Publisher) History(ctx context.Context, imageID id.ImageID) ([]*audit.ModerationEvent, error) {
	return p.store.ListByImage(ctx, imageID)
}

// Queue is the channel the forwarding worker drains. Nil when forwarding is
// disabled.
func (p *Publisher) Queue() <-chan *audit.ModerationEvent {
	return p.queue
}
