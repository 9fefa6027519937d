package dto

import "time"

// SendMessageDTO 发送消息
// ConversationID 为空时按 RecipientID 查找或创建私聊
type SendMessageDTO struct {
	ConversationID   string            `json:"conversationId"`
	RecipientID      string            `json:"recipientId"`
	ClientMsgID      string            `json:"clientMsgId" validate:"omitempty,max=64"`
	Text             string            `json:"text" validate:"max=4000"`
	MediaType        string            `json:"mediaType" validate:"omitempty,oneof=text image file voice"`
	MediaURL         string            `json:"mediaUrl" validate:"max=1024"`
	MediaMetadata    *MediaMetadataDTO `json:"mediaMetadata"`
	ReplyToMessageID string            `json:"replyTo"`
}

type MediaMetadataDTO struct {
	Filename string  `json:"filename,omitempty"`
	Size     int64   `json:"size,omitempty"`
	MimeType string  `json:"mimeType,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// MessageDTO 消息明细
type MessageDTO struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Seq            int64             `json:"seq"`
	SenderID       string            `json:"senderId"`
	ClientMsgID    string            `json:"clientMsgId,omitempty"`
	Text           string            `json:"text"`
	MediaType      string            `json:"mediaType"`
	MediaURL       string            `json:"mediaUrl,omitempty"`
	MediaMetadata  *MediaMetadataDTO `json:"mediaMetadata,omitempty" copier:"-"`
	ReplyTo        *ReplyDTO         `json:"replyTo,omitempty" copier:"-"`
	Reactions      []ReactionDTO     `json:"reactions" copier:"-"`
	Delivered      bool              `json:"delivered"`
	Read           bool              `json:"read"`
	Timestamp      time.Time         `json:"timestamp"`
}

// ReplyDTO 被回复消息的快照，Deleted 表示原消息已不存在
type ReplyDTO struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	MediaType string `json:"mediaType"`
	Deleted   bool   `json:"deleted"`
}

type ReactionDTO struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationDTO 会话列表项
type ConversationDTO struct {
	ID                  string    `json:"id"`
	Participants        []string  `json:"participants"`
	IsGroup             bool      `json:"isGroup"`
	PeerID              string    `json:"peerId,omitempty"` // 私聊对方
	GroupName           string    `json:"groupName,omitempty"`
	GroupAvatar         string    `json:"groupAvatar,omitempty"`
	GroupAdmin          string    `json:"groupAdmin,omitempty"`
	LastMessage         string    `json:"lastMessage"`
	LastMessageAt       time.Time `json:"lastMessageAt"`
	UnreadCount         int       `json:"unreadCount"`
	IsMuted             bool      `json:"isMuted"`
	DisappearingSeconds int       `json:"disappearingSeconds"`
	MaxSeq              int64     `json:"maxSeq"`
}

// CreateDirectDTO 查找或创建私聊
type CreateDirectDTO struct {
	RecipientID string `json:"recipientId" binding:"required" validate:"required,max=128"`
}

// CreateGroupDTO 创建群聊
type CreateGroupDTO struct {
	Name         string   `json:"name" validate:"max=64"`
	Avatar       string   `json:"avatar" validate:"max=512"`
	Participants []string `json:"participants" validate:"dive,required,max=128"`
}

// ReactDTO 表情回应，Emoji 为空表示取消
type ReactDTO struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"max=32"`
}

// ConversationRefDTO 只携带会话 ID 的请求
type ConversationRefDTO struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// TypingDTO 正在输入
type TypingDTO struct {
	ConversationID string `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

// HistoryDTO 历史消息分页
type HistoryDTO struct {
	Messages []*MessageDTO `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

// UnreadDTO 未读数汇总
type UnreadDTO struct {
	Total         int            `json:"total"`
	Conversations map[string]int `json:"conversations"`
}
