package kafka

import (
	"context"
	"errors"
	"gnetwork/internal/pkg/consts"
	"gnetwork/internal/service"
	log "log/slog"

	"github.com/IBM/sarama"
)

const userFollowsTable = "user_follows"

// UserFollowsHandler 关注关系变更时增量更新粉丝缓存
type UserFollowsHandler struct {
	followService service.UserFollowService
}

func NewUserFollowsHandler(followService service.UserFollowService) *UserFollowsHandler {
	return &UserFollowsHandler{followService: followService}
}

func (s *UserFollowsHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("user follows consumer setup")
	return nil
}

func (s *UserFollowsHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("user follows consumer cleanup")
	return nil
}

func (s *UserFollowsHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	if err := pullMessageBatch(session, claim, s.logic); err != nil {
		log.Error("topic-user-follows process batch error", "err", err)
		return err
	}
	return nil
}

func (s *UserFollowsHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, userFollowsTable)
	if err != nil {
		if !errors.Is(err, errTableMismatch) {
			// 无法解析的消息重试也不会成功
			log.Warn("skip malformed canal message", "offset", msg.Offset, "err", err)
		}
		return nil
	}

	var followed bool
	switch canalMsg.Type {
	case consts.INSERT:
		followed = true
	case consts.DELETE:
		followed = false
	default:
		return nil
	}

	for _, row := range canalMsg.Data {
		followerID := Column(row, "follower_id")
		followingID := Column(row, "following_id")
		if followerID == "" || followingID == "" {
			continue
		}
		if err = s.followService.ApplyFollowChange(ctx, followerID, followingID, followed); err != nil {
			return err
		}
	}
	return nil
}
