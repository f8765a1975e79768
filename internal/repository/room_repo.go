package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	return Classify(r.db.WithContext(ctx).Create(room).Error)
}

func (r *RoomRepository) GetByID(ctx context.Context, roomID int64) (*model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// AddSpend 累加房间总消费
func (r *RoomRepository) AddSpend(ctx context.Context, roomID int64, coin, money decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"spend_coin":  gorm.Expr("spend_coin + ?", coin),
			"spend_money": gorm.Expr("spend_money + ?", money),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// AddMemberExpend 送礼人的房间贡献
func (r *RoomRepository) AddMemberExpend(ctx context.Context, roomID, uid int64, coin decimal.Decimal) error {
	return r.upsertMember(ctx, roomID, uid, "expend_coin", coin)
}

// AddMemberIncome 收礼人的房间收益
func (r *RoomRepository) AddMemberIncome(ctx context.Context, roomID, uid int64, coin decimal.Decimal) error {
	return r.upsertMember(ctx, roomID, uid, "income_coin", coin)
}

func (r *RoomRepository) GetMember(ctx context.Context, roomID, uid int64) (*model.RoomMember, error) {
	var member model.RoomMember
	err := r.db.WithContext(ctx).Where("room_id = ? AND uid = ?", roomID, uid).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *RoomRepository) upsertMember(ctx context.Context, roomID, uid int64, column string, coin decimal.Decimal) error {
	member := &model.RoomMember{RoomID: roomID, UID: uid, IncomeCoin: decimal.Zero, ExpendCoin: decimal.Zero}
	member.SetCoin(column, coin)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "room_id"}, {Name: "uid"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column:       gorm.Expr(fmt.Sprintf("%s.%s + ?", model.RoomMember{}.TableName(), column), coin),
				"updated_at": time.Now(),
			}),
		}).
		Create(member).Error
	return Classify(err)
}
