package service

import (
	"context"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/pkg/redis"
	"strconv"
	"time"
)

// FollowerCache 粉丝集合缓存
type FollowerCache interface {
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Replace(ctx context.Context, userID string, followerIDs []string) error
	Add(ctx context.Context, userID, followerID string) error
	Remove(ctx context.Context, userID, followerID string) error
}

// LastSeenCache 最后在线时间缓存
type LastSeenCache interface {
	Touch(ctx context.Context, userID string, t time.Time) error
	Get(ctx context.Context, userIDs []string) (map[string]time.Time, error)
}

type redisFollowerCache struct {
	ttl time.Duration
}

func NewRedisFollowerCache(ttl time.Duration) FollowerCache {
	return &redisFollowerCache{ttl: ttl}
}

func (s *redisFollowerCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	return redis.GetCachedSet(ctx, consts.UserFollowerKey+userID)
}

func (s *redisFollowerCache) Replace(ctx context.Context, userID string, followerIDs []string) error {
	return redis.ReplaceSet(ctx, consts.UserFollowerKey+userID, followerIDs, s.ttl)
}

func (s *redisFollowerCache) Add(ctx context.Context, userID, followerID string) error {
	return redis.SAddIfExists(ctx, consts.UserFollowerKey+userID, followerID)
}

func (s *redisFollowerCache) Remove(ctx context.Context, userID, followerID string) error {
	return redis.SRemIfExists(ctx, consts.UserFollowerKey+userID, followerID)
}

type redisLastSeenCache struct {
	ttl time.Duration
}

func NewRedisLastSeenCache(ttl time.Duration) LastSeenCache {
	return &redisLastSeenCache{ttl: ttl}
}

func (s *redisLastSeenCache) Touch(ctx context.Context, userID string, t time.Time) error {
	return redis.SetWithExpiration(ctx, consts.UserLastSeenKey+userID, t.UnixMilli(), s.ttl)
}

func (s *redisLastSeenCache) Get(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	keys := make([]string, len(userIDs))
	for i, uid := range userIDs {
		keys[i] = consts.UserLastSeenKey + uid
	}
	values, err := redis.MGetValues(ctx, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]time.Time, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		result[userIDs[i]] = time.UnixMilli(ms)
	}
	return result, nil
}
