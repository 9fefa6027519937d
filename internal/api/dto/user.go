package dto

import "time"

// AnnounceDTO 上线时由客户端携带的展示信息
type AnnounceDTO struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=64"`
	AvatarURL   string `json:"avatar" validate:"max=512"`
	Device      string `json:"device" validate:"max=128"`
}

// PresenceDTO 在线状态
type PresenceDTO struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	IsOnline    bool      `json:"isOnline"`
	LastSeen    time.Time `json:"lastSeen"`
}

// BlockResultDTO 屏蔽操作结果
type BlockResultDTO struct {
	TargetID string `json:"targetId"`
	Blocked  bool   `json:"blocked"`
}
