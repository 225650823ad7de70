// Package service implements image upload, moderation and rating.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"realreview/internal/audit"
	authmodels "realreview/internal/auth/models"
	"realreview/internal/geocoding"
	"realreview/internal/image/metrics"
	"realreview/internal/image/models"
	"realreview/internal/policy"
	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/platform/sentinel"
	"realreview/pkg/platform/tx"
	"realreview/pkg/requestcontext"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	averageConcurrency = 8
)

type ImageStore interface {
	Create(ctx context.Context, img *models.Image) error
	FindByID(ctx context.Context, imageID id.ImageID) (*models.Image, error)
	ListApproved(ctx context.Context, location string, offset, limit int) ([]*models.Image, error)
	ListPending(ctx context.Context) ([]*models.Image, error)
	ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Image, error)
	Approve(ctx context.Context, imageID id.ImageID, at time.Time) (bool, error)
	Reject(ctx context.Context, imageID id.ImageID, at time.Time) (bool, error)
}

type RatingStore interface {
	Upsert(ctx context.Context, rating *models.Rating) (*models.Rating, bool, error)
	AverageFor(ctx context.Context, imageID id.ImageID) (float64, int, error)
	ListByImage(ctx context.Context, imageID id.ImageID) ([]*models.Rating, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
}

type Geocoder interface {
	Resolve(ctx context.Context, address string) (*geocoding.Location, error)
}

type FileStore interface {
	Save(ctx context.Context, r io.Reader, originalName string) (string, error)
	Delete(name string) error
}

// AuditPublisher persists moderation events inside the caller's transaction
// and forwards them once it commits.
type AuditPublisher interface {
	Record(ctx context.Context, event *audit.ModerationEvent) error
	Forward(event *audit.ModerationEvent)
	History(ctx context.Context, imageID id.ImageID) ([]*audit.ModerationEvent, error)
}

// Service orchestrates the image lifecycle.
type Service struct {
	images  ImageStore
	ratings RatingStore
	users   UserLookup
	geo     Geocoder
	files   FileStore
	tx      tx.Runner
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner makes store writes and their audit record atomic.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithAudit(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func New(images ImageStore, ratings RatingStore, users UserLookup, geo Geocoder, files FileStore, opts ...Option) *Service {
	s := &Service{
		images:  images,
		ratings: ratings,
		users:   users,
		geo:     geo,
		files:   files,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tx == nil {
		s.tx = tx.NoopRunner{}
	}
	return s
}

// UploadRequest carries an image file and the address it depicts.
type UploadRequest struct {
	File         io.Reader
	OriginalName string
	Location     string
}

// Upload geocodes the address, stores the file and records a pending image.
// Nothing is persisted when the address does not resolve, and the stored
// file is removed if the record cannot be written.
func (s *Service) Upload(ctx context.Context, owner id.UserID, req UploadRequest) (*models.Image, error) {
	if req.File == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	address := strings.TrimSpace(req.Location)
	if address == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "location is required")
	}
	if _, err := s.loadUser(ctx, owner); err != nil {
		return nil, err
	}

	loc, err := s.geo.Resolve(ctx, address)
	if err != nil {
		if geocoding.IsNotFound(err) {
			s.recordUpload("invalid_location")
			return nil, dErrors.New(dErrors.CodeValidation, "location could not be resolved")
		}
		s.recordUpload("geocoder_error")
		s.logger.WarnContext(ctx, "geocoding failed",
			"category", geocoding.CategoryOf(err),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "location service unavailable")
	}

	fileName, err := s.files.Save(ctx, req.File, req.OriginalName)
	if err != nil {
		s.recordUpload("storage_error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store file")
	}

	img, err := models.NewImage(id.NewImageID(), fileName, req.OriginalName, loc.FormattedAddress,
		loc.Latitude, loc.Longitude, owner, requestcontext.Now(ctx))
	if err != nil {
		s.discardFile(ctx, fileName)
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	event := audit.NewEvent(ctx, audit.ActionUploaded, img.ID, owner, "")
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.images.Create(ctx, img); err != nil {
			return err
		}
		return s.record(ctx, event)
	})
	if err != nil {
		s.discardFile(ctx, fileName)
		s.recordUpload("storage_error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save image")
	}

	s.forward(event)
	s.recordUpload("success")
	s.logAudit(ctx, "image_uploaded",
		"image_id", img.ID.String(),
		"user_id", owner.String(),
		"location", img.Location,
	)
	return img, nil
}

// ListApproved pages through approved images, newest first. An empty
// location matches every image. size 0 selects DefaultPageSize and sizes
// above MaxPageSize are clamped.
func (s *Service) ListApproved(ctx context.Context, location string, page, size int) ([]*models.ImageView, error) {
	if page < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "page must not be negative")
	}
	if size < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "size must not be negative")
	}
	if size == 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)
	if page > math.MaxInt/size {
		return nil, dErrors.New(dErrors.CodeValidation, "page is out of range")
	}

	images, err := s.images.ListApproved(ctx, strings.TrimSpace(location), page*size, size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list images")
	}
	return s.withAverages(ctx, images)
}

// GetDetails returns one image with its average rating, whatever its
// moderation state.
func (s *Service) GetDetails(ctx context.Context, imageID id.ImageID) (*models.ImageView, error) {
	img, err := s.loadImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	views, err := s.withAverages(ctx, []*models.Image{img})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListMine returns every image the owner uploaded.
func (s *Service) ListMine(ctx context.Context, owner id.UserID) ([]*models.ImageView, error) {
	images, err := s.images.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list images")
	}
	return s.withAverages(ctx, images)
}

// ListPending returns the moderation queue. Admin only.
func (s *Service) ListPending(ctx context.Context, actor id.UserID) ([]*models.ImageView, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	images, err := s.images.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list images")
	}
	return s.withAverages(ctx, images)
}

// Approve makes an image public. Approving an approved image is a no-op and
// approving a rejected one clears the rejection.
func (s *Service) Approve(ctx context.Context, imageID id.ImageID, actor id.UserID) error {
	return s.moderate(ctx, imageID, actor, audit.ActionApproved, "", s.images.Approve)
}

// Reject removes a pending image from the queue. Approved images cannot be
// rejected.
func (s *Service) Reject(ctx context.Context, imageID id.ImageID, actor id.UserID, reason string) error {
	return s.moderate(ctx, imageID, actor, audit.ActionRejected, reason, s.images.Reject)
}

type transition func(ctx context.Context, imageID id.ImageID, at time.Time) (bool, error)

func (s *Service) moderate(ctx context.Context, imageID id.ImageID, actor id.UserID, action audit.Action, reason string, apply transition) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	var event *audit.ModerationEvent
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		changed, err := apply(ctx, imageID, requestcontext.Now(ctx))
		if err != nil || !changed {
			return err
		}
		event = audit.NewEvent(ctx, action, imageID, actor, reason)
		return s.record(ctx, event)
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "image not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeInvalidState, "approved images cannot be rejected")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to record %s decision", action))
	}
	if event == nil {
		return nil
	}

	s.forward(event)
	if s.metrics != nil {
		s.metrics.IncrementModeration(string(action))
	}
	s.logAudit(ctx, "image_"+string(action),
		"image_id", imageID.String(),
		"user_id", actor.String(),
	)
	return nil
}

// Rate stores the user's score for an image, replacing an earlier one.
// Ratings are accepted for any existing image, including pending ones.
func (s *Service) Rate(ctx context.Context, imageID id.ImageID, userID id.UserID, value int) (*models.Rating, error) {
	if err := models.ValidateRatingValue(value); err != nil {
		return nil, err
	}
	if _, err := s.loadImage(ctx, imageID); err != nil {
		return nil, err
	}
	if _, err := s.loadUser(ctx, userID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	candidate := &models.Rating{
		ID:        id.NewRatingID(),
		ImageID:   imageID,
		UserID:    userID,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		stored  *models.Rating
		created bool
		event   *audit.ModerationEvent
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		stored, created, err = s.ratings.Upsert(ctx, candidate)
		if err != nil {
			return err
		}
		event = audit.NewEvent(ctx, audit.ActionRated, imageID, userID, fmt.Sprintf("rating=%d", value))
		return s.record(ctx, event)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save rating")
	}

	s.forward(event)
	if s.metrics != nil {
		s.metrics.IncrementRating(created)
	}
	s.logAudit(ctx, "image_rated",
		"image_id", imageID.String(),
		"user_id", userID.String(),
		"rating", value,
		"created", created,
	)
	return stored, nil
}

// AverageFor is the mean of all ratings of an image, 0 when unrated.
func (s *Service) AverageFor(ctx context.Context, imageID id.ImageID) (float64, error) {
	if _, err := s.loadImage(ctx, imageID); err != nil {
		return 0, err
	}
	avg, _, err := s.ratings.AverageFor(ctx, imageID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute average rating")
	}
	return avg, nil
}

// ListRatings returns the individual ratings of an image, most recent first.
func (s *Service) ListRatings(ctx context.Context, imageID id.ImageID) ([]*models.Rating, error) {
	if _, err := s.loadImage(ctx, imageID); err != nil {
		return nil, err
	}
	ratings, err := s.ratings.ListByImage(ctx, imageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ratings")
	}
	return ratings, nil
}

// History returns the moderation trail of an image. Admin only.
func (s *Service) History(ctx context.Context, imageID id.ImageID, actor id.UserID) ([]*audit.ModerationEvent, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if _, err := s.loadImage(ctx, imageID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []*audit.ModerationEvent{}, nil
	}
	events, err := s.audit.History(ctx, imageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return events, nil
}

func (s *Service) withAverages(ctx context.Context, images []*models.Image) ([]*models.ImageView, error) {
	views := make([]*models.ImageView, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(averageConcurrency)
	for i, img := range images {
		g.Go(func() error {
			avg, count, err := s.ratings.AverageFor(gctx, img.ID)
			if err != nil {
				return err
			}
			views[i] = &models.ImageView{Image: img, AverageRating: avg, RatingCount: count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute average rating")
	}
	if s.metrics != nil {
		s.metrics.ObserveListing(len(views))
	}
	return views, nil
}

func (s *Service) loadImage(ctx context.Context, imageID id.ImageID) (*models.Image, error) {
	img, err := s.images.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load image")
	}
	return img, nil
}

func (s *Service) loadUser(ctx context.Context, userID id.UserID) (*authmodels.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// requireAdmin checks the stored role rather than the token claim, so a
// demoted account loses access immediately.
func (s *Service) requireAdmin(ctx context.Context, actor id.UserID) error {
	user, err := s.users.FindByID(ctx, actor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, "admin role required")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return policy.RequireAdmin(user.Role).Err()
}

func (s *Service) record(ctx context.Context, event *audit.ModerationEvent) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, event)
}

func (s *Service) forward(event *audit.ModerationEvent) {
	if s.audit != nil && event != nil {
		s.audit.Forward(event)
	}
}

func (s *Service) discardFile(ctx context.Context, name string) {
	if err := s.files.Delete(name); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove orphaned upload", "file", name, "error", err)
	}
}

func (s *Service) recordUpload(result string) {
	if s.metrics != nil {
		s.metrics.IncrementUpload(result)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
