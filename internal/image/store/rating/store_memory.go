package rating

import (
	"context"
	"slices"
	"sync"

	"realreview/internal/image/models"
	id "realreview/pkg/domain"
)

type ratingKey struct {
	imageID id.ImageID
	userID  id.UserID
}

// InMemoryRatingStore keeps one rating per (image, user) under a single lock,
// so concurrent upserts of the same pair never produce two rows.
type InMemoryRatingStore struct {
	mu      sync.RWMutex
	ratings map[ratingKey]*models.Rating
	byImage map[id.ImageID][]ratingKey
}

func New() *InMemoryRatingStore {
	return &InMemoryRatingStore{
		ratings: make(map[ratingKey]*models.Rating),
		byImage: make(map[id.ImageID][]ratingKey),
	}
}

// Upsert stores r, overwriting the value of an existing rating for the same
// pair. It returns the stored rating and whether it was newly created.
func (s *InMemoryRatingStore) Upsert(_ context.Context, r *models.Rating) (*models.Rating, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ratingKey{imageID: r.ImageID, userID: r.UserID}
	if existing, ok := s.ratings[key]; ok {
		existing.Value = r.Value
		existing.UpdatedAt = r.UpdatedAt
		stored := *existing
		return &stored, false, nil
	}
	stored := *r
	s.ratings[key] = &stored
	s.byImage[r.ImageID] = append(s.byImage[r.ImageID], key)
	out := stored
	return &out, true, nil
}

// AverageFor returns the mean rating and the number of ratings.
func (s *InMemoryRatingStore) AverageFor(_ context.Context, imageID id.ImageID) (float64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byImage[imageID]
	values := make([]int, 0, len(keys))
	for _, k := range keys {
		values = append(values, s.ratings[k].Value)
	}
	return models.Average(values), len(values), nil
}

// ListByImage returns the ratings for an image, most recently updated first.
func (s *InMemoryRatingStore) ListByImage(_ context.Context, imageID id.ImageID) ([]*models.Rating, error) {
	s.mu.RLock()
	keys := s.byImage[imageID]
	out := make([]*models.Rating, 0, len(keys))
	for _, k := range keys {
		r := *s.ratings[k]
		out = append(out, &r)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *models.Rating) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}
