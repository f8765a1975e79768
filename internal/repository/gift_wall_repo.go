package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidWallAmount = errors.New("礼物墙数量必须大于0")

// GiftWallRepository 礼物墙计数
type GiftWallRepository struct {
	db *gorm.DB
}

func NewGiftWallRepository(db *gorm.DB) *GiftWallRepository {
	return &GiftWallRepository{db: db}
}

// Increment 存在则累加，不存在则插入
//
// 【关键点】不能先查再决定 insert/update：两个并发的首次送礼都会查到"不存在"，
// 结果插入两行。这里用一条 upsert（MySQL ON DUPLICATE KEY UPDATE / ON CONFLICT DO UPDATE），
// 依赖 (uid, gift_id) 唯一索引保证只有一行。该语句只锁礼物墙行，不会和账户锁交叉。
func (r *GiftWallRepository) Increment(ctx context.Context, tx *gorm.DB, uid, giftID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidWallAmount
	}
	if tx == nil {
		tx = r.db
	}
	row := &model.GiftWall{UID: uid, GiftID: giftID, GiftNumber: amount}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "uid"}, {Name: "gift_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"gift_number": gorm.Expr(fmt.Sprintf("%s.gift_number + ?", model.GiftWall{}.TableName()), amount),
				"updated_at":  time.Now(),
			}),
		}).
		Create(row).Error
	return Classify(err)
}

func (r *GiftWallRepository) Get(ctx context.Context, uid, giftID int64) (*model.GiftWall, error) {
	var row model.GiftWall
	err := r.db.WithContext(ctx).Where("uid = ? AND gift_id = ?", uid, giftID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *GiftWallRepository) ListByUID(ctx context.Context, uid int64) ([]*model.GiftWall, error) {
	var rows []*model.GiftWall
	err := r.db.WithContext(ctx).
		Where("uid = ?", uid).
		Order("gift_number DESC, gift_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *GiftWallRepository) CountRows(ctx context.Context, uid, giftID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.GiftWall{}).
		Where("uid = ? AND gift_id = ?", uid, giftID).
		Count(&total).Error
	return total, err
}
