package mongo

import (
	"fmt"
	"gnetwork/internal/pkg/consts"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message MongoDB 消息明细模型
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	Seq            int64              `bson:"seq" json:"seq"` // 会话内绝对序号
	SenderID       string             `bson:"sender_id" json:"senderId"`
	ClientMsgID    string             `bson:"client_msg_id,omitempty" json:"clientMsgId,omitempty"`
	Text           string             `bson:"text" json:"text"`
	MediaType      string             `bson:"media_type" json:"mediaType"`
	MediaURL       string             `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	MediaMetadata  *MediaMetadata     `bson:"media_metadata,omitempty" json:"mediaMetadata,omitempty"`
	ReplyTo        *ReplySnapshot     `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Reactions      []Reaction         `bson:"reactions" json:"reactions"`
	Delivered      bool               `bson:"delivered" json:"delivered"`
	Read           bool               `bson:"read" json:"read"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// MediaMetadata 附件元信息
type MediaMetadata struct {
	Filename string  `bson:"filename,omitempty" json:"filename,omitempty"`
	Size     int64   `bson:"size,omitempty" json:"size,omitempty"`
	MimeType string  `bson:"mime_type,omitempty" json:"mimeType,omitempty"`
	Duration float64 `bson:"duration,omitempty" json:"duration,omitempty"`
	Width    int     `bson:"width,omitempty" json:"width,omitempty"`
	Height   int     `bson:"height,omitempty" json:"height,omitempty"`
}

// ReplySnapshot 回复时对原消息的快照，原消息删除后仍可展示
type ReplySnapshot struct {
	MessageID primitive.ObjectID `bson:"message_id" json:"messageId"`
	SenderID  string             `bson:"sender_id" json:"senderId"`
	Text      string             `bson:"text" json:"text"`
	MediaType string             `bson:"media_type" json:"mediaType"`
}

type Reaction struct {
	UserID    string    `bson:"user_id" json:"userId"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Summary 会话列表展示的最后一条消息摘要
func (m *Message) Summary() string {
	if m.MediaType == "" || m.MediaType == consts.MediaTypeText {
		return m.Text
	}
	return fmt.Sprintf("Sent a %s", m.MediaType)
}

// Snapshot 生成回复快照
func (m *Message) Snapshot() *ReplySnapshot {
	return &ReplySnapshot{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		MediaType: m.MediaType,
	}
}
