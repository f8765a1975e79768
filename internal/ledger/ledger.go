package ledger

import (
	"context"
	"fmt"
	"time"

	"giftledger/internal/infrastructure/lock"
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
// 账本
// ============================================================================
//
// 余额只能通过 Ledger 修改。一次 Atomic 调用就是一个工作单元：
//
//  1. 把本次要动的账户ID去重、升序（lock.SortedUnique）
//  2. 在应用层 Locker 上按升序拿锁，最多等待 lockTimeout，超时返回 LockTimeout
//  3. 开数据库事务，SELECT ... FOR UPDATE 按同样的顺序锁行
//  4. 回调里的 Debit / Credit / RecordEntry 都在持有的行上计算，
//     检查余额和扣减发生在同一把锁下
//  5. 回调返回 nil 才提交，否则整体回滚
//
// ============================================================================

type Ledger struct {
	db          *gorm.DB
	locker      lock.Locker
	accountRepo *repository.AccountRepository
	billRepo    *repository.UserBillRepository
	lockTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func New(
	db *gorm.DB,
	locker lock.Locker,
	accountRepo *repository.AccountRepository,
	billRepo *repository.UserBillRepository,
	lockTimeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		db:          db,
		locker:      locker,
		accountRepo: accountRepo,
		billRepo:    billRepo,
		lockTimeout: lockTimeout,
		metrics:     m,
		logger:      logger.Named("Ledger"),
	}
}

// Atomic 锁住 userIDs 对应的全部账户并在一个事务里执行 fn
//
// 返回的错误总是 *TransferError（或 nil）；fn 里的 panic 会被回滚并转换成 PersistenceFailure。
func (l *Ledger) Atomic(ctx context.Context, userIDs []int64, fn func(uow *UnitOfWork) error) (err error) {
	ids := lock.SortedUnique(userIDs)
	if len(ids) == 0 {
		return newError(KindInvalidRequest, "ledger.lock", lock.ErrNoAccounts)
	}

	lockCtx := ctx
	if l.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, l.lockTimeout)
		defer cancel()
	}
	start := time.Now()
	release, err := l.locker.LockAccounts(lockCtx, ids)
	l.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return Wrap("ledger.lock", err)
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("账务事务 panic，已回滚", zap.Any("panic", r), zap.Int64s("accounts", ids))
			err = newError(KindPersistenceFailure, "ledger.atomic", fmt.Errorf("panic: %v", r))
		}
	}()

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := l.accountRepo.LockByUserIDs(ctx, tx, ids)
		if err != nil {
			return Wrap("ledger.lock_rows", err)
		}
		uow := &UnitOfWork{
			tx:       tx,
			ledger:   l,
			accounts: make(map[int64]*model.Account, len(accounts)),
		}
		for _, acc := range accounts {
			uow.accounts[acc.UserID] = acc
		}
		return fn(uow)
	})
	return Wrap("ledger.commit", err)
}

// Balance 读取账户当前余额（不加锁，只用于展示）
func (l *Ledger) Balance(ctx context.Context, userID int64) (*model.Account, error) {
	acc, err := l.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, Wrap("ledger.balance", err)
	}
	return acc, nil
}

// UnitOfWork 一次 Atomic 内持有的账户和事务
// 只在回调内有效，不能跨 goroutine 使用
type UnitOfWork struct {
	tx       *gorm.DB
	ledger   *Ledger
	accounts map[int64]*model.Account
}

// Tx 当前事务，同一事务内写礼物记录、礼物墙、消息表
func (u *UnitOfWork) Tx() *gorm.DB {
	return u.tx
}

// Holds 账户是否已在本事务中锁定
func (u *UnitOfWork) Holds(userID int64) bool {
	_, ok := u.accounts[userID]
	return ok
}

// Balance 已锁定账户在本事务中的最新余额
func (u *UnitOfWork) Balance(userID int64, field string) (decimal.Decimal, error) {
	acc, err := u.held("ledger.balance", userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance(field), nil
}

// Debit 扣减金币
//
// 【关键点】余额检查和扣减在同一把行锁下完成：
// acc 是 FOR UPDATE 读出来的行，锁在事务结束前不会释放，
// 其它事务不可能在"检查通过"和"写入"之间插进来。
func (u *UnitOfWork) Debit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "ledger.debit"
	if amount.IsNegative() {
		return decimal.Zero, newError(KindInvalidRequest, op, fmt.Errorf("扣减金额不能为负: %s", amount))
	}
	if err := checkScale(op, model.FieldCoin, amount); err != nil {
		return decimal.Zero, err
	}
	acc, err := u.held(op, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Coin.LessThan(amount) {
		return acc.Coin, newError(KindInsufficientFunds, op,
			fmt.Errorf("user %d 余额 %s 小于 %s", userID, acc.Coin, amount))
	}
	if amount.IsZero() {
		return acc.Coin, nil
	}
	newBalance := acc.Coin.Sub(amount)
	if err := u.ledger.accountRepo.UpdateBalance(ctx, u.tx, acc, model.FieldCoin, newBalance); err != nil {
		return decimal.Zero, Wrap(op, err)
	}
	return newBalance, nil
}

// Credit 增加 coin 或 money
func (u *UnitOfWork) Credit(ctx context.Context, userID int64, field string, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "ledger.credit"
	if !model.ValidField(field) {
		return decimal.Zero, newError(KindInvalidRequest, op, fmt.Errorf("未知余额字段 %q", field))
	}
	if amount.IsNegative() {
		return decimal.Zero, newError(KindInvalidRequest, op, fmt.Errorf("入账金额不能为负: %s", amount))
	}
	if err := checkScale(op, field, amount); err != nil {
		return decimal.Zero, err
	}
	acc, err := u.held(op, userID)
	if err != nil {
		return decimal.Zero, err
	}
	current := acc.Balance(field)
	if amount.IsZero() {
		return current, nil
	}
	newBalance := current.Add(amount)
	if err := u.ledger.accountRepo.UpdateBalance(ctx, u.tx, acc, field, newBalance); err != nil {
		return decimal.Zero, Wrap(op, err)
	}
	return newBalance, nil
}

// RecordEntry 追加一条账单
//
// balance 由这里填：取本事务持有的账户在本次变动之后的余额，
// 所以必须在对应的 Debit / Credit 之后调用。
func (u *UnitOfWork) RecordEntry(ctx context.Context, entry *model.UserBill) error {
	const op = "ledger.record_entry"
	if !model.ValidField(entry.Field) {
		return newError(KindInvalidRequest, op, fmt.Errorf("未知余额字段 %q", entry.Field))
	}
	acc, err := u.held(op, entry.UID)
	if err != nil {
		return err
	}
	if entry.EntryNo == "" {
		entry.EntryNo = idgen.GenerateEntryNo()
	}
	entry.Balance = acc.Balance(entry.Field)
	if err := u.ledger.billRepo.Create(ctx, u.tx, entry); err != nil {
		return Wrap(op, err)
	}
	return nil
}

func (u *UnitOfWork) held(op string, userID int64) (*model.Account, error) {
	acc, ok := u.accounts[userID]
	if !ok {
		return nil, newError(KindInvalidRequest, op, fmt.Errorf("%w: %d", ErrNotLocked, userID))
	}
	return acc, nil
}

// checkScale 金额小数位不能超过字段精度。
// 这里不截断：调用方记账用的是原金额，截断会让账单变动值和实际余额变化对不上
func checkScale(op, field string, amount decimal.Decimal) error {
	scale := ScaleOf(field)
	if !amount.Equal(amount.Truncate(scale)) {
		return newError(KindInvalidRequest, op, fmt.Errorf("%s 金额 %s 超过 %d 位小数", field, amount, scale))
	}
	return nil
}

// ScaleOf 余额字段的精度
func ScaleOf(field string) int32 {
	if field == model.FieldMoney {
		return fixed.MoneyScale
	}
	return fixed.CoinScale
}
