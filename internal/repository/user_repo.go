package repository

import (
	"context"
	"errors"
	"gnetwork/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo interface {
	GetUserByUID(ctx context.Context, uid string) (*model.User, error)
	UpsertOnline(ctx context.Context, user *model.User) error
	MarkOffline(ctx context.Context, uid string, lastSeen time.Time) error
	TouchLastSeen(ctx context.Context, uid string, lastSeen time.Time) error
	MarkStaleOffline(ctx context.Context, liveUIDs []string, before time.Time) (int64, error)
}

type UserRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &UserRepoImpl{db: db}
}

// GetUserByUID 不存在时返回 nil, nil
func (s *UserRepoImpl) GetUserByUID(ctx context.Context, uid string) (*model.User, error) {
	user := &model.User{}
	result := s.db.WithContext(ctx).Where("uid = ?", uid).First(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return user, nil
}

// UpsertOnline 首次上线即建档，之后覆盖展示信息与在线状态
func (s *UserRepoImpl) UpsertOnline(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "is_online", "last_seen", "device", "updated_at"}),
	}).Create(user).Error
}

func (s *UserRepoImpl) MarkOffline(ctx context.Context, uid string, lastSeen time.Time) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"is_online": false,
			"last_seen": lastSeen,
		}).Error
}

func (s *UserRepoImpl) TouchLastSeen(ctx context.Context, uid string, lastSeen time.Time) error {
	return s.db.WithContext(ctx).Model(&model.User{}).
		Where("uid = ?", uid).
		Update("last_seen", lastSeen).Error
}

// MarkStaleOffline 将库中标记在线、但本进程没有活跃连接且 before 之后没有活动的用户置为离线
func (s *UserRepoImpl) MarkStaleOffline(ctx context.Context, liveUIDs []string, before time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.User{}).
		Where("is_online = ?", true).
		Where("last_seen < ?", before)
	if len(liveUIDs) > 0 {
		tx = tx.Where("uid NOT IN ?", liveUIDs)
	}
	result := tx.Update("is_online", false)
	return result.RowsAffected, result.Error
}
