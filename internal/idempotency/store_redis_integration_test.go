//go:build integration

package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medledger/internal/idempotency"
	"medledger/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = idempotency.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestReserveCompleteReplay() {
	ctx := context.Background()

	_, ok, err := s.store.Reserve(ctx, "p|POST /records|k", "fp", time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.Complete(ctx, "p|POST /records|k", idempotency.Record{
		Fingerprint: "fp",
		Status:      201,
		ContentType: "application/json",
		Body:        []byte(`{"id":1}`),
	}, time.Minute))

	got, ok, err := s.store.Reserve(ctx, "p|POST /records|k", "fp", time.Minute)
	s.Require().NoError(err)
	s.False(ok)
	s.True(got.Completed)
	s.Equal(201, got.Status)
	s.Equal(`{"id":1}`, string(got.Body))
}

func (s *RedisStoreSuite) TestReleaseFreesKey() {
	ctx := context.Background()
	_, ok, err := s.store.Reserve(ctx, "scope", "fp", time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.store.Release(ctx, "scope"))
	s.ErrorIs(s.store.Complete(ctx, "scope", idempotency.Record{}, time.Minute), idempotency.ErrNotReserved)

	_, ok, err = s.store.Reserve(ctx, "scope", "fp", time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisStoreSuite) TestConcurrentReserveHasOneWinner() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var winners atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.store.Reserve(ctx, "race", "fp", time.Minute)
			s.NoError(err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), winners.Load())
}
