package user

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"realreview/internal/auth/models"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = New()
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func newTestUser(email string) *models.User {
	return &models.User{
		ID:           id.NewUserID(),
		Email:        email,
		PasswordHash: "hash",
		Role:         id.RoleUser,
		CreatedAt:    time.Now(),
	}
}

func (s *InMemoryUserStoreSuite) TestLookupBehavior() {
	ctx := context.Background()

	s.Run("returns user by ID and email when exists", func() {
		user := newTestUser("jane.doe@example.com")
		s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

		byID, err := s.store.FindByID(ctx, user.ID)
		s.Require().NoError(err)
		s.Equal(user, byID)

		byEmail, err := s.store.FindByEmail(ctx, user.Email)
		s.Require().NoError(err)
		s.Equal(user, byEmail)
	})

	s.Run("returns ErrNotFound when user ID does not exist", func() {
		_, err := s.store.FindByID(ctx, id.NewUserID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound when email does not exist", func() {
		_, err := s.store.FindByEmail(ctx, "missing@example.com")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned users are copies", func() {
		user := newTestUser("copy@example.com")
		s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

		found, err := s.store.FindByID(ctx, user.ID)
		s.Require().NoError(err)
		found.Role = id.RoleAdmin

		again, err := s.store.FindByID(ctx, user.ID)
		s.Require().NoError(err)
		s.Equal(id.RoleUser, again.Role)
	})
}

func (s *InMemoryUserStoreSuite) TestEmailUniqueness() {
	ctx := context.Background()

	s.Run("second registration of the same email fails", func() {
		s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, newTestUser("dup@example.com")))
		err := s.store.CreateIfEmailAvailable(ctx, newTestUser("dup@example.com"))
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("concurrent registrations yield exactly one success", func() {
		const goroutines = 50
		var wg sync.WaitGroup
		var successes, conflicts atomic.Int32
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.store.CreateIfEmailAvailable(ctx, newTestUser("race@example.com"))
				switch {
				case err == nil:
					successes.Add(1)
				case isAlreadyUsed(err):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), successes.Load())
		s.Equal(int32(goroutines-1), conflicts.Load())
	})
}

func (s *InMemoryUserStoreSuite) TestUpdateRole() {
	ctx := context.Background()
	user := newTestUser("promote@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

	s.Require().NoError(s.store.UpdateRole(ctx, user.ID, id.RoleAdmin))
	found, err := s.store.FindByEmail(ctx, user.Email)
	s.Require().NoError(err)
	s.Equal(id.RoleAdmin, found.Role)

	s.Require().ErrorIs(s.store.UpdateRole(ctx, id.NewUserID(), id.RoleAdmin), sentinel.ErrNotFound)
}
