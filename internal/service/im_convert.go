package service

import (
	"gnetwork/internal/api/dto"
	"gnetwork/internal/pkg/mongo"
	log "log/slog"

	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// copyOption ObjectID 统一转为十六进制字符串
var copyOption = copier.Option{
	Converters: []copier.TypeConverter{
		{
			SrcType: primitive.ObjectID{},
			DstType: copier.String,
			Fn: func(src interface{}) (interface{}, error) {
				return src.(primitive.ObjectID).Hex(), nil
			},
		},
	},
}

// toMessageDTO 平铺字段由 copier 复制，附件、回复与表情在 DTO 上标记为 copier:"-"，此处单独转换
func toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	item := &dto.MessageDTO{}
	if err := copier.CopyWithOption(item, m, copyOption); err != nil {
		log.Warn("消息转换失败", "messageID", m.ID.Hex(), "err", err)
	}
	if m.MediaMetadata != nil {
		item.MediaMetadata = &dto.MediaMetadataDTO{}
		if err := copier.Copy(item.MediaMetadata, m.MediaMetadata); err != nil {
			log.Warn("附件信息转换失败", "messageID", m.ID.Hex(), "err", err)
		}
	}
	if m.ReplyTo != nil {
		item.ReplyTo = &dto.ReplyDTO{
			MessageID: m.ReplyTo.MessageID.Hex(),
			SenderID:  m.ReplyTo.SenderID,
			Text:      m.ReplyTo.Text,
			MediaType: m.ReplyTo.MediaType,
		}
	}
	item.Reactions = toReactionDTOs(m.Reactions)
	return item
}

func toReactionDTOs(reactions []mongo.Reaction) []dto.ReactionDTO {
	out := make([]dto.ReactionDTO, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, dto.ReactionDTO{UserID: r.UserID, Emoji: r.Emoji, Timestamp: r.Timestamp})
	}
	return out
}

// toConversationDTO 以 viewer 的视角展示会话，PeerID、未读数与免打扰由 viewer 决定
func toConversationDTO(c *mongo.Conversation, viewerID string) *dto.ConversationDTO {
	item := &dto.ConversationDTO{}
	if err := copier.CopyWithOption(item, c, copyOption); err != nil {
		log.Warn("会话转换失败", "conversationID", c.ID.Hex(), "err", err)
	}
	item.PeerID = c.Peer(viewerID)
	item.UnreadCount = c.UnreadOf(viewerID)
	item.IsMuted = c.IsMutedBy(viewerID)
	return item
}

func toMediaMetadata(in *dto.MediaMetadataDTO) *mongo.MediaMetadata {
	if in == nil {
		return nil
	}
	out := &mongo.MediaMetadata{}
	if err := copier.Copy(out, in); err != nil {
		log.Warn("附件信息转换失败", "err", err)
	}
	return out
}
