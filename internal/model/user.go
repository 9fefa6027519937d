package model

import (
	"time"
)

// User 用户在聊天侧的资料与在线状态，ID 由外部身份提供方签发
type User struct {
	UID         string    `gorm:"primaryKey;type:varchar(128)" json:"uid"`
	DisplayName string    `gorm:"type:varchar(64)" json:"displayName"`
	AvatarURL   string    `gorm:"type:varchar(512)" json:"avatarUrl"`
	IsOnline    bool      `gorm:"type:tinyint(1);default:0;index" json:"isOnline"`
	LastSeen    time.Time `json:"lastSeen"`
	Device      string    `gorm:"type:varchar(128)" json:"device"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
