package mongo

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation 会话文档，私聊与群聊共用
type Conversation struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Participants        []string           `bson:"participants" json:"participants"`
	IsGroup             bool               `bson:"is_group" json:"isGroup"`
	PeerKey             string             `bson:"peer_key,omitempty" json:"-"` // 仅私聊
	GroupName           string             `bson:"group_name,omitempty" json:"groupName"`
	GroupAvatar         string             `bson:"group_avatar,omitempty" json:"groupAvatar"`
	GroupAdmin          string             `bson:"group_admin,omitempty" json:"groupAdmin"`
	MutedBy             []string           `bson:"muted_by" json:"mutedBy"`
	DisappearingSeconds int                `bson:"disappearing_seconds" json:"disappearingSeconds"`
	LastMessage         string             `bson:"last_message" json:"lastMessage"`
	LastMessageAt       time.Time          `bson:"last_message_at" json:"lastMessageAt"`
	Unread              []UnreadCount      `bson:"unread" json:"unread"`
	MaxSeq              int64              `bson:"max_seq" json:"maxSeq"` // 会话内单调递增序号
	CreatedAt           time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updatedAt"`
}

// UnreadCount 参与者的未读数
// 以数组而不是以用户 ID 为键的子文档存储，用户 ID 中可能含有 '.' 或 '$'
type UnreadCount struct {
	UserID string `bson:"user_id" json:"userId"`
	Count  int    `bson:"count" json:"count"`
}

// HasParticipant 判断用户是否为会话成员
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsMutedBy 判断用户是否设置了免打扰
func (c *Conversation) IsMutedBy(userID string) bool {
	for _, p := range c.MutedBy {
		if p == userID {
			return true
		}
	}
	return false
}

// UnreadOf 获取某个参与者的未读数
func (c *Conversation) UnreadOf(userID string) int {
	for _, u := range c.Unread {
		if u.UserID == userID {
			return u.Count
		}
	}
	return 0
}

// Peer 私聊中对方的 ID
func (c *Conversation) Peer(userID string) string {
	if c.IsGroup {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// PeerKey 生成私聊唯一键，与参数顺序无关
func PeerKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("%d:%s|%s", len(pair[0]), pair[0], pair[1])
}

// NewUnread 为所有参与者初始化未读数
func NewUnread(participants []string) []UnreadCount {
	unread := make([]UnreadCount, 0, len(participants))
	for _, p := range participants {
		unread = append(unread, UnreadCount{UserID: p})
	}
	return unread
}
