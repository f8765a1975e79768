package distribution

import (
	"context"
	"fmt"

	"giftledger/internal/ledger"
	"giftledger/internal/model"
	"giftledger/pkg/fixed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 分成对象标签，写在账单 mark 里
const (
	LabelOwner     = "owner"
	LabelHost      = "host"
	LabelRecipient = "recipient"
)

// Stakeholder 一个分成对象，由调用方按房间解析后传入
type Stakeholder struct {
	UserID  int64
	Percent decimal.Decimal
	Label   string
}

type Request struct {
	GiftCoin     decimal.Decimal
	BillID       int64
	RoomID       int64
	Stakeholders []Stakeholder
}

// Payout 实际入账的一笔分成
type Payout struct {
	UserID  int64
	Label   string
	Amount  decimal.Decimal
	Balance decimal.Decimal // 入账后的 money 余额
}

// Skip 被跳过的分成对象；Err 为 nil 表示只是金额截断为 0
type Skip struct {
	UserID int64
	Label  string
	Err    error
}

type Result struct {
	GiftMoney decimal.Decimal
	Payouts   []Payout
	Skipped   []Skip
}

// Engine 房间礼物分成
//
// 每个分成对象独立计算：share = trunc(coinToMoney(giftCoin) * percent, 2)。
// 兑换率或比例无效属于 ConfigurationError，只跳过对应的分成，不影响送礼本身。
type Engine struct {
	rate    decimal.Decimal
	rateErr error
	logger  *zap.Logger
}

func NewEngine(exchangeRate string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger.Named("Distribution")}
	rate, err := fixed.Parse(exchangeRate)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("%w: %s", fixed.ErrInvalidRate, exchangeRate)
	}
	if err != nil {
		e.rateErr = &ledger.TransferError{Kind: ledger.KindConfigurationError, Op: "distribution.rate", Err: err}
		e.logger.Warn("兑换率配置无效，分成将被跳过", zap.String("exchange_rate", exchangeRate), zap.Error(err))
		return e
	}
	e.rate = rate
	return e
}

// GiftMoney 礼物金币对应的现金价值（2 位精度）
func (e *Engine) GiftMoney(giftCoin decimal.Decimal) (decimal.Decimal, error) {
	if e.rateErr != nil {
		return decimal.Zero, e.rateErr
	}
	money, err := fixed.CoinToMoney(giftCoin, e.rate, fixed.MoneyScale)
	if err != nil {
		return decimal.Zero, &ledger.TransferError{Kind: ledger.KindConfigurationError, Op: "distribution.money", Err: err}
	}
	return money, nil
}

// Distribute 在调用方的工作单元里给每个分成对象入账
//
// 分成对象必须已经被 uow 锁住：与收礼人、送礼人重合的账户直接复用已持有的行锁，不会重复加锁。
// 金额为 0 的分成不入账、不写账单。返回 error 时整个送礼需要回滚。
func (e *Engine) Distribute(ctx context.Context, uow *ledger.UnitOfWork, req Request) (*Result, error) {
	result := &Result{}
	money, err := e.GiftMoney(req.GiftCoin)
	if err != nil {
		e.logger.Warn("跳过全部分成", zap.Int64("bill_id", req.BillID), zap.Error(err))
		for _, s := range req.Stakeholders {
			result.Skipped = append(result.Skipped, Skip{UserID: s.UserID, Label: s.Label, Err: err})
		}
		return result, nil
	}
	result.GiftMoney = money

	for _, s := range req.Stakeholders {
		if s.UserID <= 0 {
			continue
		}
		share, err := fixed.Share(money, s.Percent, fixed.MoneyScale)
		if err != nil {
			cfgErr := &ledger.TransferError{Kind: ledger.KindConfigurationError, Op: "distribution.share", Err: err}
			e.logger.Warn("分成比例无效，跳过",
				zap.Int64("bill_id", req.BillID),
				zap.Int64("uid", s.UserID),
				zap.String("label", s.Label),
				zap.Error(cfgErr))
			result.Skipped = append(result.Skipped, Skip{UserID: s.UserID, Label: s.Label, Err: cfgErr})
			continue
		}
		if !share.IsPositive() {
			result.Skipped = append(result.Skipped, Skip{UserID: s.UserID, Label: s.Label})
			continue
		}

		balance, err := uow.Credit(ctx, s.UserID, model.FieldMoney, share)
		if err != nil {
			return nil, err
		}
		if err := uow.RecordEntry(ctx, &model.UserBill{
			Title:  model.BillTitleGiftShare,
			UID:    s.UserID,
			Field:  model.FieldMoney,
			Number: share,
			LinkID: req.BillID,
			Mark:   s.Label,
			Status: model.BillStatusPending,
			RoomID: req.RoomID,
		}); err != nil {
			return nil, err
		}
		result.Payouts = append(result.Payouts, Payout{
			UserID:  s.UserID,
			Label:   s.Label,
			Amount:  share,
			Balance: balance,
		})
	}
	return result, nil
}
