//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"realreview/internal/auth/store/revocation"
	"realreview/pkg/testutil/containers"
)

type RedisTRLSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	trl   *revocation.RedisTRL
}

func TestRedisTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTRLSuite))
}

func (s *RedisTRLSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.trl = revocation.NewRedisTRL(s.redis.Client)
}

func (s *RedisTRLSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisTRLSuite) TestRevokeSetsExpiringKeys() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeTokens(ctx, []string{"jti-1", "jti-2"}, time.Minute))

	revoked, err := s.trl.IsRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	ttl, err := s.redis.Client.TTL(ctx, "trl:jti:jti-2").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisTRLSuite) TestUnknownTokenIsNotRevoked() {
	revoked, err := s.trl.IsRevoked(context.Background(), "never-seen")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisTRLSuite) TestKeyExpires() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeTokens(ctx, []string{"short"}, time.Second))
	s.Eventually(func() bool {
		revoked, err := s.trl.IsRevoked(ctx, "short")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}
