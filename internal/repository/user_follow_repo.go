package repository

import (
	"context"
	"gnetwork/internal/model"

	"gorm.io/gorm"
)

type UserFollowRepo interface {
	GetFollowerIDs(ctx context.Context, userID string, limit int) ([]string, error)
}

type UserFollowRepoImpl struct {
	db *gorm.DB
}

func NewUserFollowRepo(db *gorm.DB) UserFollowRepo {
	return &UserFollowRepoImpl{db: db}
}

// GetFollowerIDs 获取用户的粉丝 ID 列表
func (s *UserFollowRepoImpl) GetFollowerIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	var ids []string
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("following_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Pluck("follower_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}
