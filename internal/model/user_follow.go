package model

import "time"

// UserFollow 关注关系，由动态服务维护，聊天侧只读
type UserFollow struct {
	FollowerID  string    `gorm:"primaryKey;type:varchar(128)" json:"followerId"`
	FollowingID string    `gorm:"primaryKey;type:varchar(128);index:idx_following_id" json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (UserFollow) TableName() string {
	return "user_follows"
}
