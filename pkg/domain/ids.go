// Package domain holds typed identifiers shared across modules.
//
// Each ID is a distinct named type over uuid.UUID so a UserID can never be
// passed where an ImageID is expected. Construct IDs from external input with
// the Parse functions; they reject empty, malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "realreview/pkg/domain-errors"
)

type (
	UserID   uuid.UUID
	ImageID  uuid.UUID
	RatingID uuid.UUID
	EventID  uuid.UUID
)

func NewUserID() UserID     { return UserID(uuid.New()) }
func NewImageID() ImageID   { return ImageID(uuid.New()) }
func NewRatingID() RatingID { return RatingID(uuid.New()) }
func NewEventID() EventID   { return EventID(uuid.New()) }

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseImageID(s string) (ImageID, error) {
	u, err := parseUUID("image id", s)
	return ImageID(u), err
}

func ParseRatingID(s string) (RatingID, error) {
	u, err := parseUUID("rating id", s)
	return RatingID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event id", s)
	return EventID(u), err
}

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id ImageID) String() string  { return uuid.UUID(id).String() }
func (id RatingID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ImageID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RatingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps IDs as strings in JSON rather than byte arrays.

func (id UserID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id ImageID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id RatingID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ImageID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RatingID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
