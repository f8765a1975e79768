package model

import "time"

// GiftWall 礼物墙，每个 (uid, gift_id) 最多一行
type GiftWall struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UID        int64     `gorm:"not null;uniqueIndex:uk_uid_gift" json:"uid"`
	GiftID     int64     `gorm:"not null;uniqueIndex:uk_uid_gift" json:"gift_id"`
	GiftNumber int64     `gorm:"not null;default:0" json:"gift_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GiftWall) TableName() string {
	return "gift_wall"
}
