package service

import (
	"context"
	"gnetwork/internal/pkg/mongo"
	"gnetwork/internal/pkg/util"
)

// InterestIndex 某个用户的在线状态变化需要通知的用户集合
type InterestIndex interface {
	Interested(ctx context.Context, userID string) ([]string, error)
}

// interestIndexImpl 粉丝与会话成员的并集
type interestIndexImpl struct {
	follows  UserFollowService
	chatRepo mongo.ChatRepo
}

func NewInterestIndex(follows UserFollowService, chatRepo mongo.ChatRepo) InterestIndex {
	return &interestIndexImpl{follows: follows, chatRepo: chatRepo}
}

func (s *interestIndexImpl) Interested(ctx context.Context, userID string) ([]string, error) {
	followers, err := s.follows.GetFollowerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	convs, err := s.chatRepo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := append([]string{}, followers...)
	for _, c := range convs {
		ids = append(ids, c.Participants...)
	}
	ids = util.Dedupe(ids)

	out := ids[:0]
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out, nil
}
