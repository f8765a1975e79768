package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 账单标题
const (
	BillTitleGiftSend  = "gift_send"        // 送礼扣币
	BillTitleGiftBonus = "lucky_gift_bonus" // 幸运礼物返币
	BillTitleGiftShare = "room_gift_share"  // 房间礼物分成
	BillTitleRecharge  = "recharge"         // 充值
)

// 账单状态
const (
	BillStatusPending = 0 // 冻结中（分成收益）
	BillStatusSettled = 1 // 已到账
)

// UserBill 用户账单（余额流水）
//
// 【重要】账单设计原则：
// 1. 只追加，不修改，不删除
// 2. 通过 link_id 关联来源（礼物记录等）
// 3. balance 是本条变动生效之后的余额快照，不是当前余额的冗余
type UserBill struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	Title     string          `gorm:"type:varchar(32);not null" json:"title"`
	UID       int64           `gorm:"index;not null" json:"uid"`
	Field     string          `gorm:"type:varchar(16);not null" json:"field"`     // coin / money
	Number    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"number"`  // 变动值（正数入账，负数出账）
	LinkID    int64           `gorm:"index;not null;default:0" json:"link_id"`    // 关联礼物记录
	Balance   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance"` // 变动后余额
	Mark      string          `gorm:"type:varchar(256)" json:"mark"`              // 备注
	Status    int             `gorm:"not null;default:1" json:"status"`           // 0 冻结 1 到账
	RoomID    int64           `gorm:"index;not null;default:0" json:"room_id"`    // 房间
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (UserBill) TableName() string {
	return "user_bill"
}
