package rating

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"realreview/internal/image/models"
	"realreview/internal/platform/postgres"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
)

// PostgresStore persists ratings. The (image_id, user_id) unique constraint
// makes the upsert safe under concurrent writers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, r *models.Rating) (*models.Rating, bool, error) {
	var (
		stored   models.Rating
		ratingID uuid.UUID
		imageID  uuid.UUID
		userID   uuid.UUID
		inserted bool
	)
	err := postgres.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO ratings (id, image_id, user_id, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (image_id, user_id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		RETURNING id, image_id, user_id, value, created_at, updated_at, (xmax = 0)
	`,
		uuid.UUID(r.ID),
		uuid.UUID(r.ImageID),
		uuid.UUID(r.UserID),
		r.Value,
		r.UpdatedAt,
	).Scan(&ratingID, &imageID, &userID, &stored.Value, &stored.CreatedAt, &stored.UpdatedAt, &inserted)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "") {
			return nil, false, fmt.Errorf("rating target: %w", sentinel.ErrNotFound)
		}
		return nil, false, fmt.Errorf("upsert rating: %w", err)
	}
	stored.ID = id.RatingID(ratingID)
	stored.ImageID = id.ImageID(imageID)
	stored.UserID = id.UserID(userID)
	return &stored, inserted, nil
}

func (s *PostgresStore) AverageFor(ctx context.Context, imageID id.ImageID) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := postgres.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT COALESCE(AVG(value), 0)::float8, COUNT(*)
		FROM ratings WHERE image_id = $1
	`, uuid.UUID(imageID)).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("average rating: %w", err)
	}
	return avg, count, nil
}

func (s *PostgresStore) ListByImage(ctx context.Context, imageID id.ImageID) ([]*models.Rating, error) {
	rows, err := postgres.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, image_id, user_id, value, created_at, updated_at
		FROM ratings WHERE image_id = $1
		ORDER BY updated_at DESC, id
	`, uuid.UUID(imageID))
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]*models.Rating, 0)
	for rows.Next() {
		var (
			r        models.Rating
			ratingID uuid.UUID
			imgID    uuid.UUID
			userID   uuid.UUID
		)
		if err := rows.Scan(&ratingID, &imgID, &userID, &r.Value, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		r.ID = id.RatingID(ratingID)
		r.ImageID = id.ImageID(imgID)
		r.UserID = id.UserID(userID)
		ratings = append(ratings, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}
