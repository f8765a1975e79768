package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Room 直播间
// owner/host 用于礼物分成，spend_* 是房间累计消费（送礼成功后异步累加）
type Room struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerUID   int64           `gorm:"not null;default:0" json:"owner_uid"`
	HostUID    int64           `gorm:"not null;default:0" json:"host_uid"`
	SpendCoin  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"spend_coin"`
	SpendMoney decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"spend_money"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Room) TableName() string {
	return "room"
}

// RoomMember 用户在房间内的贡献和收益
type RoomMember struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     int64           `gorm:"not null;uniqueIndex:uk_room_uid" json:"room_id"`
	UID        int64           `gorm:"not null;uniqueIndex:uk_room_uid" json:"uid"`
	IncomeCoin decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"income_coin"`
	ExpendCoin decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"expend_coin"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RoomMember) TableName() string {
	return "room_member"
}

// SetCoin 按列名设置贡献/收益
func (m *RoomMember) SetCoin(column string, coin decimal.Decimal) {
	switch column {
	case "income_coin":
		m.IncomeCoin = coin
	case "expend_coin":
		m.ExpendCoin = coin
	}
}
