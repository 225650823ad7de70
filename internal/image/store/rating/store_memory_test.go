package rating

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"realreview/internal/image/models"
	id "realreview/pkg/domain"
)

type InMemoryRatingStoreSuite struct {
	suite.Suite
	store *InMemoryRatingStore
	ctx   context.Context
}

func TestInMemoryRatingStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryRatingStoreSuite))
}

func (s *InMemoryRatingStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func newRating(imageID id.ImageID, userID id.UserID, value int, at time.Time) *models.Rating {
	return &models.Rating{
		ID:        id.NewRatingID(),
		ImageID:   imageID,
		UserID:    userID,
		Value:     value,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func (s *InMemoryRatingStoreSuite) TestReRatingOverwrites() {
	imageID, userID := id.NewImageID(), id.NewUserID()
	now := time.Now()

	first, created, err := s.store.Upsert(s.ctx, newRating(imageID, userID, 3, now))
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.store.Upsert(s.ctx, newRating(imageID, userID, 5, now.Add(time.Minute)))
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID, "the original row is updated in place")
	s.Equal(5, second.Value)

	ratings, err := s.store.ListByImage(s.ctx, imageID)
	s.Require().NoError(err)
	s.Require().Len(ratings, 1)
	s.Equal(5, ratings[0].Value)

	avg, count, err := s.store.AverageFor(s.ctx, imageID)
	s.Require().NoError(err)
	s.Equal(5.0, avg)
	s.Equal(1, count)
}

func (s *InMemoryRatingStoreSuite) TestAverage() {
	imageID := id.NewImageID()
	now := time.Now()
	for _, v := range []int{2, 4, 4} {
		_, _, err := s.store.Upsert(s.ctx, newRating(imageID, id.NewUserID(), v, now))
		s.Require().NoError(err)
	}

	avg, count, err := s.store.AverageFor(s.ctx, imageID)
	s.Require().NoError(err)
	s.InDelta(3.333, avg, 0.001)
	s.Equal(3, count)

	avg, count, err = s.store.AverageFor(s.ctx, id.NewImageID())
	s.Require().NoError(err)
	s.Equal(0.0, avg)
	s.Zero(count)
}

func (s *InMemoryRatingStoreSuite) TestConcurrentUpsertsKeepOneRow() {
	imageID, userID := id.NewImageID(), id.NewUserID()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, _, err := s.store.Upsert(s.ctx, newRating(imageID, userID, v%5+1, time.Now()))
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	ratings, err := s.store.ListByImage(s.ctx, imageID)
	s.Require().NoError(err)
	s.Len(ratings, 1)
}

func (s *InMemoryRatingStoreSuite) TestListByImageIsolatesImages() {
	a, b := id.NewImageID(), id.NewImageID()
	_, _, err := s.store.Upsert(s.ctx, newRating(a, id.NewUserID(), 1, time.Now()))
	s.Require().NoError(err)
	_, _, err = s.store.Upsert(s.ctx, newRating(b, id.NewUserID(), 2, time.Now()))
	s.Require().NoError(err)

	got, err := s.store.ListByImage(s.ctx, a)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(a, got[0].ImageID)
}
