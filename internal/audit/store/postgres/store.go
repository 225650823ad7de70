package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"realreview/internal/audit"
	"realreview/internal/platform/postgres"
	id "realreview/pkg/domain"
)

// Store persists moderation events in the moderation_events table. Append
// joins the transaction carried by ctx so an event commits with the change it
// describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event *audit.ModerationEvent) error {
	_, err := postgres.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO moderation_events (id, image_id, actor_id, action, reason, device, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(event.ID),
		uuid.UUID(event.ImageID),
		uuid.UUID(event.ActorID),
		string(event.Action),
		event.Reason,
		event.Device,
		event.RequestID,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert moderation event: %w", err)
	}
	return nil
}

func (s *Store) ListByImage(ctx context.Context, imageID id.ImageID) ([]*audit.ModerationEvent, error) {
	rows, err := postgres.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, image_id, actor_id, action, reason, device, request_id, occurred_at
		FROM moderation_events
		WHERE image_id = $1
		ORDER BY occurred_at, id
	`, uuid.UUID(imageID))
	if err != nil {
		return nil, fmt.Errorf("query moderation events: %w", err)
	}
	defer rows.Close()

	events := make([]*audit.ModerationEvent, 0)
	for rows.Next() {
		var (
			ev      audit.ModerationEvent
			eventID uuid.UUID
			imgID   uuid.UUID
			actorID uuid.UUID
			action  string
		)
		if err := rows.Scan(&eventID, &imgID, &actorID, &action, &ev.Reason, &ev.Device, &ev.RequestID, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan moderation event: %w", err)
		}
		ev.ID = id.EventID(eventID)
		ev.ImageID = id.ImageID(imgID)
		ev.ActorID = id.UserID(actorID)
		ev.Action = audit.Action(action)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation events: %w", err)
	}
	return events, nil
}
