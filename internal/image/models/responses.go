package models

import "time"

// ImageResponse is the public JSON view of an image.
type ImageResponse struct {
	ID            string     `json:"id"`
	FileName      string     `json:"fileName"`
	URL           string     `json:"url"`
	Location      string     `json:"location"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	UploadedAt    time.Time  `json:"uploadedAt"`
	UploadedBy    string     `json:"uploadedBy"`
	Approved      bool       `json:"approved"`
	Status        Status     `json:"status"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	AverageRating float64    `json:"averageRating"`
	RatingCount   int        `json:"ratingCount"`
}

func NewImageResponse(v *ImageView) *ImageResponse {
	return &ImageResponse{
		ID:            v.ID.String(),
		FileName:      v.FileName,
		URL:           "/images/" + v.FileName,
		Location:      v.Location,
		Latitude:      v.Latitude,
		Longitude:     v.Longitude,
		UploadedAt:    v.UploadedAt,
		UploadedBy:    v.UploadedBy.String(),
		Approved:      v.Approved,
		Status:        v.Status(),
		ReviewedAt:    v.ReviewedAt,
		AverageRating: v.AverageRating,
		RatingCount:   v.RatingCount,
	}
}

func NewImageResponses(views []*ImageView) []*ImageResponse {
	out := make([]*ImageResponse, 0, len(views))
	for _, v := range views {
		out = append(out, NewImageResponse(v))
	}
	return out
}

// UploadResponse acknowledges an upload.
type UploadResponse struct {
	Message string         `json:"message"`
	Image   *ImageResponse `json:"image"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// RatingResponse is the JSON view of a rating.
type RatingResponse struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"imageId"`
	UserID    string    `json:"userId"`
	Value     int       `json:"rating"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewRatingResponses(ratings []*Rating) []*RatingResponse {
	out := make([]*RatingResponse, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, &RatingResponse{
			ID:        r.ID.String(),
			ImageID:   r.ImageID.String(),
			UserID:    r.UserID.String(),
			Value:     r.Value,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out
}
