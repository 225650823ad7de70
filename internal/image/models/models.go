package models

import (
	"strings"
	"time"

	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Status is the moderation state derived from the approved/rejected flags.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Image is the metadata of an uploaded property photo. Approved and Rejected
// are never both true.
type Image struct {
	ID           id.ImageID
	FileName     string
	OriginalName string
	Location     string
	Latitude     float64
	Longitude    float64
	UploadedAt   time.Time
	UploadedBy   id.UserID
	Approved     bool
	Rejected     bool
	ReviewedAt   *time.Time
}

// NewImage builds a pending image, enforcing the record invariants.
func NewImage(imageID id.ImageID, fileName, originalName, location string, lat, lng float64, uploadedBy id.UserID, uploadedAt time.Time) (*Image, error) {
	if imageID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "image id is required")
	}
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "file name is required")
	}
	if strings.TrimSpace(location) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "location is required")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "coordinates out of range")
	}
	if uploadedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploader is required")
	}
	if uploadedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "uploaded_at is required")
	}
	return &Image{
		ID:           imageID,
		FileName:     fileName,
		OriginalName: originalName,
		Location:     location,
		Latitude:     lat,
		Longitude:    lng,
		UploadedAt:   uploadedAt,
		UploadedBy:   uploadedBy,
	}, nil
}

func (i *Image) Status() Status {
	switch {
	case i.Approved:
		return StatusApproved
	case i.Rejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// IsPending reports whether the image still awaits moderation.
func (i *Image) IsPending() bool {
	return !i.Approved && !i.Rejected
}

// ImageView is an image with its rating aggregate, computed on read.
type ImageView struct {
	*Image
	AverageRating float64
	RatingCount   int
}

// Rating is one user's score for one image. (ImageID, UserID) is unique.
type Rating struct {
	ID        id.RatingID
	ImageID   id.ImageID
	UserID    id.UserID
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateRatingValue enforces the accepted range.
func ValidateRatingValue(v int) error {
	if v < MinRating || v > MaxRating {
		return dErrors.New(dErrors.CodeValidation, "rating must be between 1 and 5")
	}
	return nil
}

// Average is the arithmetic mean of values, or 0 when there are none.
func Average(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
