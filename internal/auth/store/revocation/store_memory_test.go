package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"realreview/pkg/platform/sentinel"
)

type InMemoryTRLSuite struct {
	suite.Suite
	now time.Time
	trl *InMemoryTRL
}

func TestInMemoryTRLSuite(t *testing.T) {
	suite.Run(t, new(InMemoryTRLSuite))
}

func (s *InMemoryTRLSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.trl = NewInMemoryTRL(WithClock(func() time.Time { return s.now }))
}

func (s *InMemoryTRLSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeTokens(ctx, []string{"a", "", "b"}, time.Hour))

	for _, jti := range []string{"a", "b"} {
		revoked, err := s.trl.IsRevoked(ctx, jti)
		s.Require().NoError(err)
		s.True(revoked, jti)
	}

	revoked, err := s.trl.IsRevoked(ctx, "c")
	s.Require().NoError(err)
	s.False(revoked)

	revoked, err = s.trl.IsRevoked(ctx, "")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *InMemoryTRLSuite) TestEntriesExpire() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeTokens(ctx, []string{"a"}, time.Minute))

	s.now = s.now.Add(2 * time.Minute)
	revoked, err := s.trl.IsRevoked(ctx, "a")
	s.Require().NoError(err)
	s.False(revoked)
	s.Equal(1, s.trl.Cleanup())
}

func (s *InMemoryTRLSuite) TestRejectsNonPositiveTTL() {
	err := s.trl.RevokeTokens(context.Background(), []string{"a"}, 0)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemoryTRLSuite) TestCheckerDelegates() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeTokens(ctx, []string{"gone"}, time.Minute))
	checker := NewChecker(s.trl)

	revoked, err := checker.IsTokenRevoked(ctx, "gone")
	s.Require().NoError(err)
	s.True(revoked)

	s.now = s.now.Add(2 * time.Minute)
	revoked, err = checker.IsTokenRevoked(ctx, "gone")
	s.Require().NoError(err)
	s.False(revoked)
}
