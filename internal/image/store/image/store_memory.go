package image

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"realreview/internal/image/models"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
)

// InMemoryImageStore keeps image metadata in a map guarded by one lock.
type InMemoryImageStore struct {
	mu     sync.RWMutex
	images map[id.ImageID]*models.Image
	files  map[string]id.ImageID
}

func New() *InMemoryImageStore {
	return &InMemoryImageStore{
		images: make(map[id.ImageID]*models.Image),
		files:  make(map[string]id.ImageID),
	}
}

func (s *InMemoryImageStore) Create(_ context.Context, img *models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.images[img.ID]; exists {
		return fmt.Errorf("image id: %w", sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.files[img.FileName]; exists {
		return fmt.Errorf("file name %q: %w", img.FileName, sentinel.ErrAlreadyUsed)
	}
	s.images[img.ID] = clone(img)
	s.files[img.FileName] = img.ID
	return nil
}

func (s *InMemoryImageStore) FindByID(_ context.Context, imageID id.ImageID) (*models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[imageID]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
	}
	return clone(img), nil
}

// ListApproved returns approved images newest first, optionally restricted to
// an exact location.
func (s *InMemoryImageStore) ListApproved(_ context.Context, location string, offset, limit int) ([]*models.Image, error) {
	return s.list(func(img *models.Image) bool {
		return img.Approved && (location == "" || img.Location == location)
	}, offset, limit), nil
}

func (s *InMemoryImageStore) ListPending(_ context.Context) ([]*models.Image, error) {
	return s.list(func(img *models.Image) bool { return img.IsPending() }, 0, 0), nil
}

func (s *InMemoryImageStore) ListByOwner(_ context.Context, owner id.UserID) ([]*models.Image, error) {
	return s.list(func(img *models.Image) bool { return img.UploadedBy == owner }, 0, 0), nil
}

// Approve marks the image approved, clearing any rejection. changed is false
// when it was already approved.
func (s *InMemoryImageStore) Approve(_ context.Context, imageID id.ImageID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[imageID]
	if !ok {
		return false, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
	}
	if img.Approved {
		return false, nil
	}
	img.Approved = true
	img.Rejected = false
	img.ReviewedAt = &at
	return true, nil
}

// Reject marks a not yet approved image rejected. changed is false when it was
// already rejected.
func (s *InMemoryImageStore) Reject(_ context.Context, imageID id.ImageID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[imageID]
	if !ok {
		return false, fmt.Errorf("image %s: %w", imageID, sentinel.ErrNotFound)
	}
	if img.Approved {
		return false, fmt.Errorf("image %s is approved: %w", imageID, sentinel.ErrInvalidState)
	}
	if img.Rejected {
		return false, nil
	}
	img.Rejected = true
	img.ReviewedAt = &at
	return true, nil
}

// list filters, sorts newest first and pages. limit 0 means no limit.
func (s *InMemoryImageStore) list(keep func(*models.Image) bool, offset, limit int) []*models.Image {
	s.mu.RLock()
	matched := make([]*models.Image, 0)
	for _, img := range s.images {
		if keep(img) {
			matched = append(matched, clone(img))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, compareNewestFirst)
	if offset < 0 || offset >= len(matched) {
		return []*models.Image{}
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

func compareNewestFirst(a, b *models.Image) int {
	if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
		return c
	}
	as, bs := a.ID.String(), b.ID.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func clone(img *models.Image) *models.Image {
	c := *img
	if img.ReviewedAt != nil {
		at := *img.ReviewedAt
		c.ReviewedAt = &at
	}
	return &c
}
