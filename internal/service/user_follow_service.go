package service

import (
	"context"
	"gnetwork/internal/repository"
	log "log/slog"
)

// MaxInterestFollowers 在线状态只推送给最近的这部分粉丝
const MaxInterestFollowers = 1000

type UserFollowService interface {
	GetFollowerIDs(ctx context.Context, userID string) ([]string, error)
	ApplyFollowChange(ctx context.Context, followerID, followingID string, followed bool) error
}

type UserFollowServiceImpl struct {
	userFollowRepo repository.UserFollowRepo
	cache          FollowerCache
}

func NewUserFollowService(userFollowRepo repository.UserFollowRepo, cache FollowerCache) UserFollowService {
	return &UserFollowServiceImpl{userFollowRepo: userFollowRepo, cache: cache}
}

// GetFollowerIDs 优先读缓存，未命中时回源并回填
func (s *UserFollowServiceImpl) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx, userID)
		if err == nil && ok {
			return ids, nil
		}
		if err != nil {
			log.WarnContext(ctx, "读取粉丝缓存失败", "userID", userID, "err", err)
		}
	}

	ids, err := s.userFollowRepo.GetFollowerIDs(ctx, userID, MaxInterestFollowers)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err = s.cache.Replace(ctx, userID, ids); err != nil {
			log.WarnContext(ctx, "回填粉丝缓存失败", "userID", userID, "err", err)
		}
	}
	return ids, nil
}

// ApplyFollowChange 关注关系变更时增量更新缓存
func (s *UserFollowServiceImpl) ApplyFollowChange(ctx context.Context, followerID, followingID string, followed bool) error {
	if s.cache == nil {
		return nil
	}
	if followed {
		return s.cache.Add(ctx, followingID, followerID)
	}
	return s.cache.Remove(ctx, followingID, followerID)
}
