package repository

import (
	"context"
	"errors"

	"giftledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return Classify(r.db.WithContext(ctx).Create(account).Error)
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// LockByUserIDs 在事务内锁住一组账户
//
// 【关键点】ORDER BY user_id 保证数据库按升序加行锁，
// 和应用层 Locker 的顺序一致，A->B 与 B->A 的并发事务不会互相等待成环。
// 调用方传入的 userIDs 必须已经去重排序（lock.SortedUnique）。
func (r *AccountRepository) LockByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*model.Account, error) {
	var accounts []*model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id IN ?", userIDs).
		Order("user_id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, Classify(err)
	}
	if len(accounts) != len(userIDs) {
		return nil, ErrAccountNotFound
	}
	return accounts, nil
}

// UpdateBalance 把已锁定账户的某个余额字段写成新值
//
// 行锁已经由 LockByUserIDs 持有，这里带上 version 条件，
// 如果有人绕过锁修改过账户，RowsAffected 为 0，返回 ErrStaleAccount 让整个事务回滚。
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, account *model.Account, field string, value decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]interface{}{
			field:     value,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return Classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleAccount
	}
	account.SetBalance(field, value)
	account.Version++
	return nil
}

// GetOrCreate 获取账户，不存在则创建一个空账户
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID: userID,
		Coin:   decimal.Zero,
		Money:  decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// ListAfterID 按主键分批扫描，对账任务使用
func (r *AccountRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
