package repository

import (
	"context"
	"errors"

	"giftledger/internal/model"

	"gorm.io/gorm"
)

// UserBillRepository 账单流水，只有插入和查询
type UserBillRepository struct {
	db *gorm.DB
}

func NewUserBillRepository(db *gorm.DB) *UserBillRepository {
	return &UserBillRepository{db: db}
}

func (r *UserBillRepository) Create(ctx context.Context, tx *gorm.DB, bill *model.UserBill) error {
	if tx == nil {
		tx = r.db
	}
	return Classify(tx.WithContext(ctx).Create(bill).Error)
}

func (r *UserBillRepository) ListByUID(ctx context.Context, uid int64, page, pageSize int) ([]*model.UserBill, int64, error) {
	var bills []*model.UserBill
	var total int64

	query := r.db.WithContext(ctx).Model(&model.UserBill{}).Where("uid = ?", uid)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&bills).Error

	return bills, total, err
}

// ListByLinkID 某次送礼派生的全部账单，按写入顺序
func (r *UserBillRepository) ListByLinkID(ctx context.Context, linkID int64) ([]*model.UserBill, error) {
	var bills []*model.UserBill
	err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("id ASC").
		Find(&bills).Error
	return bills, err
}

// Latest 某账户某字段最近一条账单，没有返回 nil, nil
func (r *UserBillRepository) Latest(ctx context.Context, uid int64, field string) (*model.UserBill, error) {
	var bill model.UserBill
	err := r.db.WithContext(ctx).
		Where("uid = ? AND field = ?", uid, field).
		Order("id DESC").
		First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bill, nil
}

func (r *UserBillRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.UserBill{}).Count(&total).Error
	return total, err
}
