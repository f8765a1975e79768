package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GiftBill 礼物赠送记录
// 每次送礼只生成一条，之后不再修改；所有派生账单通过 link_id 指向它
type GiftBill struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BillNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"bill_no"`
	RequestID   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID
	UID         int64           `gorm:"index;not null" json:"uid"`                               // 送礼人
	ToUID       int64           `gorm:"index;not null" json:"to_uid"`                            // 收礼人
	GiftID      int64           `gorm:"not null" json:"gift_id"`
	GiftName    string          `gorm:"type:varchar(64);not null" json:"gift_name"`
	GiftNumber  int             `gorm:"not null;default:1" json:"gift_number"`
	NumberGroup int             `gorm:"not null;default:1" json:"number_group"` // 礼物组数
	GiftCoin    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"gift_coin"`
	GiftMoney   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"gift_money"`
	UnitCoin    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_coin"`
	Multiple    int64           `gorm:"not null;default:0" json:"multiple"` // 幸运倍数
	BackCoin    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"back_coin"`
	RoomID      int64           `gorm:"index;not null;default:0" json:"room_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (GiftBill) TableName() string {
	return "gift_bill"
}
