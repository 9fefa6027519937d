package dto

import (
	"time"

	"github.com/goccy/go-json"
)

// Frame 实时通道的统一帧格式
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutFrame 服务端下发帧
type OutFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WsErrorDTO 仅回复给发起操作的连接
type WsErrorDTO struct {
	Op          string `json:"op"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// JoinDTO join_chat / leave_chat / join_personal_room
type JoinDTO struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// NotificationDTO 个人频道的新消息提醒
type NotificationDTO struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	Summary        string `json:"summary"`
}

// ChatListUpdateDTO 会话列表刷新
type ChatListUpdateDTO struct {
	ConversationID string    `json:"conversationId"`
	LastMessage    string    `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UnreadCount    int       `json:"unreadCount"`
}

// ReadReceiptDTO 已读回执
type ReadReceiptDTO struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	Count          int64  `json:"count"`
}

// ReactionUpdateDTO 表情回应变化
type ReactionUpdateDTO struct {
	ConversationID string        `json:"conversationId"`
	MessageID      string        `json:"messageId"`
	Reactions      []ReactionDTO `json:"reactions"`
}

// TypingEventDTO display_typing
type TypingEventDTO struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	IsTyping       bool   `json:"isTyping"`
}

// UnreadUpdatedDTO 单个会话的未读数
type UnreadUpdatedDTO struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

// ConversationEventDTO chat_cleared / chat_deleted
type ConversationEventDTO struct {
	ConversationID string `json:"conversationId"`
	ActorID        string `json:"actorId"`
}

// CallInitiateDTO 发起通话，Offer 原样转发
type CallInitiateDTO struct {
	CalleeID string          `json:"calleeId" validate:"required"`
	CallType string          `json:"callType" validate:"omitempty,oneof=voice video"`
	Offer    json.RawMessage `json:"offer"`
}

// CallAnswerDTO 接听
type CallAnswerDTO struct {
	CallerID string          `json:"callerId" validate:"required"`
	Answer   json.RawMessage `json:"answer"`
}

// CallPeerDTO reject_call / end_call
type CallPeerDTO struct {
	PeerID string `json:"peerId" validate:"required"`
}

// IceCandidateDTO 候选地址，不做内容校验
type IceCandidateDTO struct {
	TargetID  string          `json:"targetId" validate:"required"`
	Candidate json.RawMessage `json:"candidate"`
}

// IncomingCallDTO 推送给被叫的 call_user
type IncomingCallDTO struct {
	CallerID     string          `json:"callerId"`
	CallerName   string          `json:"callerName"`
	CallerAvatar string          `json:"callerAvatar"`
	CallType     string          `json:"callType"`
	Offer        json.RawMessage `json:"offer"`
}

// CallAcceptedDTO 推送给主叫的 call_accepted
type CallAcceptedDTO struct {
	CalleeID string          `json:"calleeId"`
	Answer   json.RawMessage `json:"answer"`
}

// RelayedCandidateDTO 转发的 ice_candidate
type RelayedCandidateDTO struct {
	FromID    string          `json:"fromId"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallEndedDTO call_ended
type CallEndedDTO struct {
	PeerID string `json:"peerId"`
	Reason string `json:"reason"`
}
