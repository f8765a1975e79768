package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/distribution"
	"giftledger/internal/hook"
	"giftledger/internal/ledger"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/pkg/fixed"
	"giftledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ============================================================================
// 送礼
// ============================================================================
//
// Transfer 是一次送礼的完整工作单元，全部在 ledger.Atomic 里完成：
//
//  1. 扣送礼人金币（余额不足直接整体回滚）
//  2. 写礼物记录 gift_bill
//  3. 收礼人礼物墙 +N
//  4. 幸运倍数返币给收礼人
//  5. 房主/主播/收礼人分成
//  6. 通知和结算事件写消息表
//
// 提交之后才 Publish 给排行榜、房间统计等回调，回调失败不影响已提交的账务。
// Transfer 自己从不重试，重复提交由 Send 按 request_id 去重。
//
// ============================================================================

// wallCounter 礼物墙计数，测试里可以替换成注入失败的实现
type wallCounter interface {
	Increment(ctx context.Context, tx *gorm.DB, uid, giftID, amount int64) error
}

// Publisher 提交后回调
type Publisher interface {
	Publish(ev *hook.GiftEvent) bool
}

type GiftService struct {
	db           *gorm.DB
	cfg          *config.Config
	ledger       *ledger.Ledger
	engine       *distribution.Engine
	multiplier   Multiplier
	publisher    Publisher
	metrics      *metrics.Metrics
	logger       *zap.Logger
	giftBillRepo *repository.GiftBillRepository
	userBillRepo *repository.UserBillRepository
	accountRepo  *repository.AccountRepository
	roomRepo     *repository.RoomRepository
	outboxRepo   *repository.OutboxRepository
	wall         wallCounter
	now          func() time.Time
}

func NewGiftService(
	db *gorm.DB,
	cfg *config.Config,
	lg *ledger.Ledger,
	multiplier Multiplier,
	publisher Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *GiftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if multiplier == nil {
		multiplier = FixedMultiplier(0)
	}
	return &GiftService{
		db:           db,
		cfg:          cfg,
		ledger:       lg,
		engine:       distribution.NewEngine(cfg.Gift.ExchangeRate, logger),
		multiplier:   multiplier,
		publisher:    publisher,
		metrics:      m,
		logger:       logger.Named("GiftService"),
		giftBillRepo: repository.NewGiftBillRepository(db),
		userBillRepo: repository.NewUserBillRepository(db),
		accountRepo:  repository.NewAccountRepository(db),
		roomRepo:     repository.NewRoomRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		wall:         repository.NewGiftWallRepository(db),
		now:          time.Now,
	}
}

type GiftInfo struct {
	ID   int64
	Name string
}

// TransferRequest 一次送礼，金额均为金币
type TransferRequest struct {
	RequestID    string
	SenderID     int64
	RecipientID  int64
	Gift         GiftInfo
	GiftNumber   int             // 每组礼物个数
	NumberGroup  int             // 组数，>= 1
	Cost         decimal.Decimal // 送礼人本次扣除的金币
	UnitCoin     decimal.Decimal // 礼物单价，幸运返币按它计算
	RoomID       int64
	Stakeholders []distribution.Stakeholder
}

type TransferResult struct {
	BillID    int64
	BillNo    string
	GiftCoin  decimal.Decimal
	GiftMoney decimal.Decimal
	Multiple  int64
	BackCoin  decimal.Decimal
	Balance   decimal.Decimal // 送礼人扣款后余额
	Payouts   []distribution.Payout
}

func (r *TransferRequest) validate() error {
	switch {
	case r.SenderID <= 0 || r.RecipientID <= 0:
		return errors.New("送礼人和收礼人不能为空")
	case r.Gift.ID <= 0:
		return errors.New("礼物ID无效")
	case r.GiftNumber < 1 || r.NumberGroup < 1:
		return errors.New("礼物数量和组数必须大于0")
	case r.Cost.IsNegative():
		return errors.New("扣除金币不能为负")
	case r.UnitCoin.IsNegative():
		return errors.New("礼物单价不能为负")
	case !r.Cost.Equal(r.Cost.Truncate(fixed.CoinScale)) || !r.UnitCoin.Equal(r.UnitCoin.Truncate(fixed.CoinScale)):
		return fmt.Errorf("金币最多 %d 位小数", fixed.CoinScale)
	}
	return nil
}

// accountIDs 本次送礼会动到的全部账户
func (r *TransferRequest) accountIDs() []int64 {
	ids := []int64{r.SenderID, r.RecipientID}
	for _, s := range r.Stakeholders {
		if s.UserID > 0 {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

// Transfer 执行一次送礼，返回值要么是提交成功的礼物记录，要么是 *ledger.TransferError
func (s *GiftService) Transfer(ctx context.Context, req *TransferRequest) (result *TransferResult, err error) {
	if req == nil {
		return nil, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "gift.transfer", Err: errors.New("请求为空")}
	}
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("送礼 panic", zap.Any("panic", r), zap.Int64("sender", req.SenderID))
			result = nil
			err = &ledger.TransferError{Kind: ledger.KindPersistenceFailure, Op: "gift.transfer", Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			s.metrics.ObserveTransfer(metrics.ResultRolledBack, ledger.KindOf(err).String(), time.Since(start))
		} else {
			s.metrics.ObserveTransfer(metrics.ResultCommitted, "", time.Since(start))
		}
	}()

	if verr := req.validate(); verr != nil {
		return nil, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "gift.transfer", Err: verr}
	}

	giftMoney, merr := s.engine.GiftMoney(req.Cost)
	if merr != nil {
		// 兑换率无效只影响现金价值和分成，送礼照常进行
		s.logger.Warn("礼物现金价值按 0 记录", zap.Error(merr))
		giftMoney = decimal.Zero
	}
	multiple := s.multiplier.Draw()
	if multiple < 0 {
		multiple = 0
	}
	backCoin := fixed.Multiply(decimal.NewFromInt(multiple), req.UnitCoin, fixed.CoinScale)

	billNo := idgen.GenerateBillNo()
	requestID := req.RequestID
	if requestID == "" {
		requestID = billNo
	}
	bill := &model.GiftBill{
		BillNo:      billNo,
		RequestID:   requestID,
		UID:         req.SenderID,
		ToUID:       req.RecipientID,
		GiftID:      req.Gift.ID,
		GiftName:    req.Gift.Name,
		GiftNumber:  req.GiftNumber,
		NumberGroup: req.NumberGroup,
		GiftCoin:    req.Cost,
		GiftMoney:   giftMoney,
		UnitCoin:    req.UnitCoin,
		Multiple:    multiple,
		BackCoin:    backCoin,
		RoomID:      req.RoomID,
	}
	res := &TransferResult{
		BillNo:    billNo,
		GiftCoin:  req.Cost,
		GiftMoney: giftMoney,
		Multiple:  multiple,
		BackCoin:  backCoin,
	}

	err = s.ledger.Atomic(ctx, req.accountIDs(), func(uow *ledger.UnitOfWork) error {
		tx := uow.Tx()

		// 1. 扣款：检查和扣减在同一把行锁下
		balance, err := uow.Debit(ctx, req.SenderID, req.Cost)
		if err != nil {
			return err
		}
		res.Balance = balance

		// 2. 礼物记录
		if err := s.giftBillRepo.Create(ctx, tx, bill); err != nil {
			return ledger.Wrap("gift.create_bill", err)
		}
		res.BillID = bill.ID

		if req.Cost.IsPositive() {
			if err := uow.RecordEntry(ctx, &model.UserBill{
				Title:  model.BillTitleGiftSend,
				UID:    req.SenderID,
				Field:  model.FieldCoin,
				Number: req.Cost.Neg(),
				LinkID: bill.ID,
				Mark:   fmt.Sprintf("%s x%d", req.Gift.Name, req.GiftNumber*req.NumberGroup),
				Status: model.BillStatusSettled,
				RoomID: req.RoomID,
			}); err != nil {
				return err
			}
		}

		// 3. 礼物墙，只锁礼物墙行
		amount := int64(req.GiftNumber) * int64(req.NumberGroup)
		if err := s.wall.Increment(ctx, tx, req.RecipientID, req.Gift.ID, amount); err != nil {
			return ledger.Wrap("gift.wall", err)
		}

		// 4. 幸运返币
		if backCoin.IsPositive() {
			if _, err := uow.Credit(ctx, req.RecipientID, model.FieldCoin, backCoin); err != nil {
				return err
			}
			if err := uow.RecordEntry(ctx, &model.UserBill{
				Title:  model.BillTitleGiftBonus,
				UID:    req.RecipientID,
				Field:  model.FieldCoin,
				Number: backCoin,
				LinkID: bill.ID,
				Mark:   fmt.Sprintf("%d倍", multiple),
				Status: model.BillStatusSettled,
				RoomID: req.RoomID,
			}); err != nil {
				return err
			}
		}

		// 5. 分成
		dist, err := s.engine.Distribute(ctx, uow, distribution.Request{
			GiftCoin:     req.Cost,
			BillID:       bill.ID,
			RoomID:       req.RoomID,
			Stakeholders: req.Stakeholders,
		})
		if err != nil {
			return err
		}
		res.Payouts = dist.Payouts

		// 6. 通知和结算事件
		msgs, err := buildOutbox(s.cfg, bill, s.now())
		if err != nil {
			return ledger.Wrap("gift.outbox", err)
		}
		if err := s.outboxRepo.CreateBatch(ctx, tx, msgs); err != nil {
			return ledger.Wrap("gift.outbox", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Info("送礼失败，已回滚",
			zap.Int64("sender", req.SenderID),
			zap.Int64("recipient", req.RecipientID),
			zap.String("request_id", requestID),
			zap.Stringer("kind", ledger.KindOf(err)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("送礼成功",
		zap.String("bill_no", billNo),
		zap.Int64("sender", req.SenderID),
		zap.Int64("recipient", req.RecipientID),
		zap.String("gift_coin", req.Cost.String()),
		zap.Int64("multiple", multiple))

	s.publish(&hook.GiftEvent{
		BillID:      bill.ID,
		BillNo:      billNo,
		RoomID:      req.RoomID,
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		GiftID:      req.Gift.ID,
		GiftName:    req.Gift.Name,
		GiftCoin:    req.Cost,
		GiftMoney:   giftMoney,
		Multiple:    multiple,
		CreatedAt:   bill.CreatedAt,
	})
	return res, nil
}

// publish 已经提交，回调侧的任何问题都不能再改变送礼结果
func (s *GiftService) publish(ev *hook.GiftEvent) {
	if s.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("提交后回调投递 panic", zap.String("bill_no", ev.BillNo), zap.Any("panic", r))
		}
	}()
	if !s.publisher.Publish(ev) {
		s.logger.Warn("提交后回调未投递", zap.String("bill_no", ev.BillNo))
	}
}
