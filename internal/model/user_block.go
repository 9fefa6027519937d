package model

import "time"

// UserBlock UserID 屏蔽了 TargetID
type UserBlock struct {
	UserID    string    `gorm:"primaryKey;type:varchar(128)" json:"userId"`
	TargetID  string    `gorm:"primaryKey;type:varchar(128);index:idx_target_id" json:"targetId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (UserBlock) TableName() string {
	return "user_blocks"
}
