package service

import (
	"context"

	"giftledger/internal/model"
	"giftledger/internal/repository"

	"gorm.io/gorm"
)

// WallService 礼物墙，只用于展示
type WallService struct {
	wallRepo *repository.GiftWallRepository
}

func NewWallService(db *gorm.DB) *WallService {
	return &WallService{wallRepo: repository.NewGiftWallRepository(db)}
}

// Increment 存在则累加，不存在则创建；送礼事务内直接使用仓储，这里给非送礼场景（补发、运营）用
func (s *WallService) Increment(ctx context.Context, uid, giftID, amount int64) error {
	return s.wallRepo.Increment(ctx, nil, uid, giftID, amount)
}

func (s *WallService) List(ctx context.Context, uid int64) ([]*model.GiftWall, error) {
	return s.wallRepo.ListByUID(ctx, uid)
}
