package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"realreview/internal/image/models"
	"realreview/internal/platform/postgres"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
)

const imageColumns = `id, file_name, original_name, location, latitude, longitude,
	uploaded_at, uploaded_by, approved, rejected, reviewed_at`

// PostgresStore persists image metadata in the images table. Writes join the
// transaction carried by the context, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, img *models.Image) error {
	_, err := postgres.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO images (id, file_name, original_name, location, latitude, longitude,
			uploaded_at, uploaded_by, approved, rejected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(img.ID),
		img.FileName,
		img.OriginalName,
		img.Location,
		img.Latitude,
		img.Longitude,
		img.UploadedAt,
		uuid.UUID(img.UploadedBy),
		img.Approved,
		img.Rejected,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return fmt.Errorf("image %s: %w", img.FileName, sentinel.ErrAlreadyUsed)
		}
		if postgres.IsForeignKeyViolation(err, "") {
			return fmt.Errorf("uploader %s: %w", img.UploadedBy, sentinel.ErrNotFound)
		}
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, imageID id.ImageID) (*models.Image, error) {
	row := postgres.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, uuid.UUID(imageID))
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) ListApproved(ctx context.Context, location string, offset, limit int) ([]*models.Image, error) {
	return s.query(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE approved AND ($1 = '' OR location = $1)
		ORDER BY uploaded_at DESC, id
		OFFSET $2 LIMIT $3
	`, location, offset, limit)
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Image, error) {
	return s.query(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE NOT approved AND NOT rejected
		ORDER BY uploaded_at DESC, id
	`)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Image, error) {
	return s.query(ctx, `
		SELECT `+imageColumns+` FROM images
		WHERE uploaded_by = $1
		ORDER BY uploaded_at DESC, id
	`, uuid.UUID(owner))
}

func (s *PostgresStore) Approve(ctx context.Context, imageID id.ImageID, at time.Time) (bool, error) {
	res, err := postgres.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE images SET approved = TRUE, rejected = FALSE, reviewed_at = $2
		WHERE id = $1 AND NOT approved
	`, uuid.UUID(imageID), at)
	if err != nil {
		return false, fmt.Errorf("approve image: %w", err)
	}
	return s.changedOrExists(ctx, res, imageID)
}

func (s *PostgresStore) Reject(ctx context.Context, imageID id.ImageID, at time.Time) (bool, error) {
	res, err := postgres.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE images SET rejected = TRUE, reviewed_at = $2
		WHERE id = $1 AND NOT approved AND NOT rejected
	`, uuid.UUID(imageID), at)
	if err != nil {
		return false, fmt.Errorf("reject image: %w", err)
	}
	changed, err := s.changedOrExists(ctx, res, imageID)
	if err != nil || changed {
		return changed, err
	}
	img, err := s.FindByID(ctx, imageID)
	if err != nil {
		return false, err
	}
	if img.Approved {
		return false, fmt.Errorf("image %s is approved: %w", imageID, sentinel.ErrInvalidState)
	}
	return false, nil
}

// changedOrExists turns a zero-row update into either a no-op (the row
// exists) or ErrNotFound.
func (s *PostgresStore) changedOrExists(ctx context.Context, res sql.Result, imageID id.ImageID) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	err = postgres.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM images WHERE id = $1)`, uuid.UUID(imageID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check image: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
	}
	return false, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Image, error) {
	rows, err := postgres.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := make([]*models.Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*models.Image, error) {
	var (
		img        models.Image
		imageID    uuid.UUID
		uploadedBy uuid.UUID
		reviewedAt sql.NullTime
	)
	if err := row.Scan(
		&imageID,
		&img.FileName,
		&img.OriginalName,
		&img.Location,
		&img.Latitude,
		&img.Longitude,
		&img.UploadedAt,
		&uploadedBy,
		&img.Approved,
		&img.Rejected,
		&reviewedAt,
	); err != nil {
		return nil, err
	}
	img.ID = id.ImageID(imageID)
	img.UploadedBy = id.UserID(uploadedBy)
	if reviewedAt.Valid {
		at := reviewedAt.Time
		img.ReviewedAt = &at
	}
	return &img, nil
}
