package fixed

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 定点数运算
// ============================================================================
//
// 【为什么不用 float64？】
//
//	0.1 + 0.2 = 0.30000000000000004
//	账本里任何一分钱的漂移都会导致对账失败，所以金币和现金一律用十进制定点数。
//
// 【截断而不是四舍五入】
//
//	与历史账单保持一致：所有运算结果按指定精度向零截断。
//	例如 0.006 在 2 位精度下是 0.00，而不是 0.01。
//
// ============================================================================

const (
	CoinScale  int32 = 8 // 金币内部运算精度
	MoneyScale int32 = 2 // 对外展示的现金精度

	coinPerUnit = 100 // 兑换率以每 100 金币计
)

var (
	ErrDivisionByZero = errors.New("除数不能为0")
	ErrInvalidRate    = errors.New("兑换率无效")
	ErrInvalidPercent = errors.New("分成比例无效")
)

// Parse 解析十进制字符串
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析数值失败 %q: %w", raw, err)
	}
	return d, nil
}

// MustParse 解析常量，失败直接 panic，只用于初始化和测试
func MustParse(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func Add(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return a.Add(b).Truncate(scale)
}

func Sub(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return a.Sub(b).Truncate(scale)
}

func Multiply(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return a.Mul(b).Truncate(scale)
}

// Divide 截断除法
//
// 【关键点】不能先 Div 再 Truncate：Div 默认按 16 位精度四舍五入，
// 极端情况下会把 0.xxx99999999999999 进位，截断后就多了一个最小单位。
// QuoRem 直接给出指定精度下向零截断的商。
func Divide(a, b decimal.Decimal, scale int32) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := a.QuoRem(b, scale)
	return q, nil
}

// CoinToMoney 金币换算现金
// money = trunc( trunc(coin / 100, 8) * rate, scale )
func CoinToMoney(coin, rate decimal.Decimal, scale int32) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, rate.String())
	}
	units, err := Divide(coin, decimal.NewFromInt(coinPerUnit), CoinScale)
	if err != nil {
		return decimal.Zero, err
	}
	return Multiply(units, rate, scale), nil
}

// Share 按比例计算分成，比例必须落在 [0, 1]
func Share(value, percent decimal.Decimal, scale int32) (decimal.Decimal, error) {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPercent, percent.String())
	}
	return Multiply(value, percent, scale), nil
}
