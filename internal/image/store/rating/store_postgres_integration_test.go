//go:build integration

package rating_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"realreview/internal/image/models"
	"realreview/internal/image/store/rating"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
	"realreview/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *rating.PostgresStore
	imageID  id.ImageID
	users    []id.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = rating.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "ratings", "images", "users"))

	s.users = nil
	for range 3 {
		userID := id.NewUserID()
		s.Require().NoError(s.postgres.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, role, created_at)
			VALUES ($1, $2, 'hash', 'USER', NOW())
		`, uuid.UUID(userID), uuid.NewString()+"@example.com"))
		s.users = append(s.users, userID)
	}

	s.imageID = id.NewImageID()
	s.Require().NoError(s.postgres.Exec(ctx, `
		INSERT INTO images (id, file_name, location, latitude, longitude, uploaded_at, uploaded_by, approved)
		VALUES ($1, 'a.jpg', 'Paris', 0, 0, NOW(), $2, TRUE)
	`, uuid.UUID(s.imageID), uuid.UUID(s.users[0])))
}

func (s *PostgresStoreSuite) rate(userID id.UserID, value int) (*models.Rating, bool) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r, created, err := s.store.Upsert(context.Background(), &models.Rating{
		ID: id.NewRatingID(), ImageID: s.imageID, UserID: userID, Value: value, CreatedAt: now, UpdatedAt: now,
	})
	s.Require().NoError(err)
	return r, created
}

func (s *PostgresStoreSuite) TestReRatingOverwrites() {
	first, created := s.rate(s.users[1], 3)
	s.True(created)
	second, created := s.rate(s.users[1], 5)
	s.False(created)
	s.Equal(first.ID, second.ID)

	ratings, err := s.store.ListByImage(context.Background(), s.imageID)
	s.Require().NoError(err)
	s.Require().Len(ratings, 1)
	s.Equal(5, ratings[0].Value)
}

func (s *PostgresStoreSuite) TestAverage() {
	for i, v := range []int{2, 4, 4} {
		s.rate(s.users[i], v)
	}
	avg, count, err := s.store.AverageFor(context.Background(), s.imageID)
	s.Require().NoError(err)
	s.InDelta(3.333, avg, 0.001)
	s.Equal(3, count)

	avg, count, err = s.store.AverageFor(context.Background(), id.NewImageID())
	s.Require().NoError(err)
	s.Equal(0.0, avg)
	s.Zero(count)
}

func (s *PostgresStoreSuite) TestUnknownImage() {
	_, _, err := s.store.Upsert(context.Background(), &models.Rating{
		ID: id.NewRatingID(), ImageID: id.NewImageID(), UserID: s.users[0], Value: 3,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConcurrentUpsertsKeepOneRow() {
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			now := time.Now()
			_, _, err := s.store.Upsert(context.Background(), &models.Rating{
				ID: id.NewRatingID(), ImageID: s.imageID, UserID: s.users[2], Value: v%5 + 1,
				CreatedAt: now, UpdatedAt: now,
			})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	ratings, err := s.store.ListByImage(context.Background(), s.imageID)
	s.Require().NoError(err)
	s.Len(ratings, 1)
}
