// Package audit records moderation events and forwards them to Kafka.
package audit

import (
	"context"
	"time"

	id "realreview/pkg/domain"
	"realreview/pkg/requestcontext"
)

// Action is what happened to an image.
type Action string

const (
	ActionUploaded Action = "uploaded"
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
	ActionRated    Action = "rated"
)

// ModerationEvent is an append-only record of an action on an image.
type ModerationEvent struct {
	ID         id.EventID `json:"id"`
	ImageID    id.ImageID `json:"imageId"`
	ActorID    id.UserID  `json:"actorId"`
	Action     Action     `json:"action"`
	Reason     string     `json:"reason,omitempty"`
	Device     string     `json:"device,omitempty"`
	RequestID  string     `json:"requestId,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// NewEvent stamps an event with the request metadata carried by ctx.
func NewEvent(ctx context.Context, action Action, imageID id.ImageID, actorID id.UserID, reason string) *ModerationEvent {
	return &ModerationEvent{
		ID:         id.NewEventID(),
		ImageID:    imageID,
		ActorID:    actorID,
		Action:     action,
		Reason:     reason,
		Device:     requestcontext.Device(ctx),
		RequestID:  requestcontext.RequestID(ctx),
		OccurredAt: requestcontext.Now(ctx),
	}
}
