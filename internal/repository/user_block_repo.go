package repository

import (
	"context"
	"errors"
	"gnetwork/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserBlockRepo interface {
	ToggleBlock(ctx context.Context, userID, targetID string) (bool, error)
	// BlockState 返回 a 是否屏蔽了 b、b 是否屏蔽了 a
	BlockState(ctx context.Context, a, b string) (aBlocksB bool, bBlocksA bool, err error)
	GetBlockedIDs(ctx context.Context, userID string) ([]string, error)
}

type UserBlockRepoImpl struct {
	db *gorm.DB
}

func NewUserBlockRepo(db *gorm.DB) UserBlockRepo {
	return &UserBlockRepoImpl{db: db}
}

// ToggleBlock 已屏蔽则解除，否则屏蔽；返回操作后的状态
func (s *UserBlockRepoImpl) ToggleBlock(ctx context.Context, userID, targetID string) (bool, error) {
	var blocked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.UserBlock
		err := lockBlock(tx, userID, targetID).First(&existing).Error
		switch {
		case err == nil:
			blocked = false
			return tx.Where("user_id = ? AND target_id = ?", userID, targetID).Delete(&model.UserBlock{}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			blocked = true
			return tx.Create(&model.UserBlock{UserID: userID, TargetID: targetID}).Error
		default:
			return err
		}
	})
	return blocked, err
}

// lockBlock 以 SELECT ... FOR UPDATE 锁定屏蔽关系，并发切换在事务内串行
func lockBlock(tx *gorm.DB, userID, targetID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND target_id = ?", userID, targetID)
}

func (s *UserBlockRepoImpl) BlockState(ctx context.Context, a, b string) (bool, bool, error) {
	var rows []model.UserBlock
	err := s.db.WithContext(ctx).
		Where("(user_id = ? AND target_id = ?) OR (user_id = ? AND target_id = ?)", a, b, b, a).
		Find(&rows).Error
	if err != nil {
		return false, false, err
	}
	var aBlocksB, bBlocksA bool
	for _, r := range rows {
		if r.UserID == a {
			aBlocksB = true
		} else {
			bBlocksA = true
		}
	}
	return aBlocksB, bBlocksA, nil
}

func (s *UserBlockRepoImpl) GetBlockedIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.UserBlock{}).
		Where("user_id = ?", userID).
		Pluck("target_id", &ids).Error
	return ids, err
}
