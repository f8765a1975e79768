package service

import (
	"context"
	"errors"

	"giftledger/internal/ledger"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/pkg/fixed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AccountService struct {
	accountRepo  *repository.AccountRepository
	userBillRepo *repository.UserBillRepository
	ledger       *ledger.Ledger
	db           *gorm.DB
	logger       *zap.Logger
}

func NewAccountService(db *gorm.DB, lg *ledger.Ledger, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accountRepo:  repository.NewAccountRepository(db),
		userBillRepo: repository.NewUserBillRepository(db),
		ledger:       lg,
		db:           db,
		logger:       logger.Named("AccountService"),
	}
}

type BalanceResponse struct {
	UserID int64  `json:"user_id"`
	Coin   string `json:"coin"`
	Money  string `json:"money"`
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (*BalanceResponse, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &BalanceResponse{UserID: userID, Coin: "0", Money: "0.00"}, nil
		}
		return nil, err
	}
	return &BalanceResponse{
		UserID: userID,
		Coin:   account.Coin.String(),
		Money:  account.Money.StringFixed(fixed.MoneyScale),
	}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

type RechargeRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Amount string `json:"amount" binding:"required"`
	Mark   string `json:"mark" binding:"max=256"`
}

// Recharge 充值金币，和送礼一样走账本：加锁、入账、写账单
func (s *AccountService) Recharge(ctx context.Context, req *RechargeRequest) (*BalanceResponse, error) {
	amount, err := fixed.Parse(req.Amount)
	if err == nil {
		amount = amount.Truncate(fixed.CoinScale)
	}
	if err != nil || !amount.IsPositive() {
		return nil, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "account.recharge", Err: errors.New("充值金额必须大于0")}
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return nil, ledger.Wrap("account.recharge", err)
	}

	var balance decimal.Decimal
	err = s.ledger.Atomic(ctx, []int64{req.UserID}, func(uow *ledger.UnitOfWork) error {
		var err error
		balance, err = uow.Credit(ctx, req.UserID, model.FieldCoin, amount)
		if err != nil {
			return err
		}
		return uow.RecordEntry(ctx, &model.UserBill{
			Title:  model.BillTitleRecharge,
			UID:    req.UserID,
			Field:  model.FieldCoin,
			Number: amount,
			Mark:   req.Mark,
			Status: model.BillStatusSettled,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("充值成功", zap.Int64("user_id", req.UserID), zap.String("amount", amount.String()))

	money, err := s.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		UserID: req.UserID,
		Coin:   balance.String(),
		Money:  money.Money.StringFixed(fixed.MoneyScale),
	}, nil
}

func (s *AccountService) ListBills(ctx context.Context, userID int64, page, pageSize int) ([]*model.UserBill, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, 0, &ledger.TransferError{Kind: ledger.KindInvalidRequest, Op: "account.bills", Err: errors.New("page_size 必须在 1-100 之间")}
	}
	return s.userBillRepo.ListByUID(ctx, userID, page, pageSize)
}
