package service

import (
	"context"
	"fmt"
	"gnetwork/internal/api/dto"
	"gnetwork/internal/repository"
)

type UserService interface {
	ToggleBlock(ctx context.Context, userID, targetID string) (*dto.BlockResultDTO, error)
	CheckBlocked(ctx context.Context, userID, peerID string) error
	ListBlocked(ctx context.Context, userID string) ([]string, error)
}

type UserServiceImpl struct {
	userBlockRepo repository.UserBlockRepo
}

func NewUserService(userBlockRepo repository.UserBlockRepo) UserService {
	return &UserServiceImpl{userBlockRepo: userBlockRepo}
}

// ToggleBlock 屏蔽或解除屏蔽，连续调用两次恢复原状态
func (s *UserServiceImpl) ToggleBlock(ctx context.Context, userID, targetID string) (*dto.BlockResultDTO, error) {
	if targetID == "" || targetID == userID {
		return nil, ErrParamInvalid
	}
	blocked, err := s.userBlockRepo.ToggleBlock(ctx, userID, targetID)
	if err != nil {
		return nil, fmt.Errorf("切换屏蔽状态失败: %w", err)
	}
	return &dto.BlockResultDTO{TargetID: targetID, Blocked: blocked}, nil
}

// CheckBlocked 任一方向存在屏蔽即拒绝
func (s *UserServiceImpl) CheckBlocked(ctx context.Context, userID, peerID string) error {
	aBlocksB, bBlocksA, err := s.userBlockRepo.BlockState(ctx, userID, peerID)
	if err != nil {
		return fmt.Errorf("查询屏蔽状态失败: %w", err)
	}
	if bBlocksA {
		return ErrBlockedByPeer
	}
	if aBlocksB {
		return ErrBlockedPeer
	}
	return nil
}

func (s *UserServiceImpl) ListBlocked(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.userBlockRepo.GetBlockedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
