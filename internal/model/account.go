package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 余额字段
const (
	FieldCoin  = "coin"  // 可消费金币，不允许为负
	FieldMoney = "money" // 累计分成收益（现金）
)

// Account 用户账户表
// 只能通过 ledger 包修改余额，其它模块只读
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Coin      decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0;check:chk_account_coin,coin >= 0" json:"coin"`
	Money     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"money"`
	Version   int             `gorm:"not null;default:0" json:"version"` // 每次余额变动 +1
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// Balance 返回指定字段的余额
func (a *Account) Balance(field string) decimal.Decimal {
	if field == FieldMoney {
		return a.Money
	}
	return a.Coin
}

// SetBalance 修改内存中的余额快照
func (a *Account) SetBalance(field string, value decimal.Decimal) {
	if field == FieldMoney {
		a.Money = value
		return
	}
	a.Coin = value
}

// ValidField 是否是可变动的余额字段
func ValidField(field string) bool {
	return field == FieldCoin || field == FieldMoney
}
