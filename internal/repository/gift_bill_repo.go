package repository

import (
	"context"
	"errors"

	"giftledger/internal/model"

	"gorm.io/gorm"
)

type GiftBillRepository struct {
	db *gorm.DB
}

func NewGiftBillRepository(db *gorm.DB) *GiftBillRepository {
	return &GiftBillRepository{db: db}
}

func (r *GiftBillRepository) Create(ctx context.Context, tx *gorm.DB, bill *model.GiftBill) error {
	if tx == nil {
		tx = r.db
	}
	return Classify(tx.WithContext(ctx).Create(bill).Error)
}

func (r *GiftBillRepository) GetByBillNo(ctx context.Context, billNo string) (*model.GiftBill, error) {
	return r.first(ctx, "bill_no = ?", billNo)
}

func (r *GiftBillRepository) GetByID(ctx context.Context, id int64) (*model.GiftBill, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByRequestID 幂等查询，不存在返回 nil, nil
func (r *GiftBillRepository) GetByRequestID(ctx context.Context, requestID string) (*model.GiftBill, error) {
	bill, err := r.first(ctx, "request_id = ?", requestID)
	if errors.Is(err, ErrBillNotFound) {
		return nil, nil
	}
	return bill, err
}

func (r *GiftBillRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.GiftBill{}).Count(&total).Error
	return total, err
}

func (r *GiftBillRepository) first(ctx context.Context, query string, arg interface{}) (*model.GiftBill, error) {
	var bill model.GiftBill
	err := r.db.WithContext(ctx).Where(query, arg).First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	return &bill, nil
}
