package hook

import (
	"context"
	"errors"

	"giftledger/internal/repository"
)

// RoomMemberHook 房间成员统计：送礼人累加贡献，收礼人累加收益
// 两个方向拆成两个回调，重试时不会把已经成功的一边再加一次
type RoomMemberHook struct {
	rooms  *repository.RoomRepository
	income bool
}

func NewRoomExpendHook(rooms *repository.RoomRepository) *RoomMemberHook {
	return &RoomMemberHook{rooms: rooms}
}

func NewRoomIncomeHook(rooms *repository.RoomRepository) *RoomMemberHook {
	return &RoomMemberHook{rooms: rooms, income: true}
}

func (h *RoomMemberHook) Name() string {
	if h.income {
		return "room_member_income"
	}
	return "room_member_expend"
}

func (h *RoomMemberHook) Handle(ctx context.Context, ev *GiftEvent) error {
	if ev.RoomID <= 0 || !ev.GiftCoin.IsPositive() {
		return nil
	}
	if h.income {
		return h.rooms.AddMemberIncome(ctx, ev.RoomID, ev.RecipientID, ev.GiftCoin)
	}
	return h.rooms.AddMemberExpend(ctx, ev.RoomID, ev.SenderID, ev.GiftCoin)
}

// RoomSpendHook 房间累计消费
type RoomSpendHook struct {
	rooms *repository.RoomRepository
}

func NewRoomSpendHook(rooms *repository.RoomRepository) *RoomSpendHook {
	return &RoomSpendHook{rooms: rooms}
}

func (h *RoomSpendHook) Name() string { return "room_spend" }

func (h *RoomSpendHook) Handle(ctx context.Context, ev *GiftEvent) error {
	if ev.RoomID <= 0 {
		return nil
	}
	err := h.rooms.AddSpend(ctx, ev.RoomID, ev.GiftCoin, ev.GiftMoney)
	if errors.Is(err, repository.ErrRoomNotFound) {
		// 房间已删除，重试也没用
		return nil
	}
	return err
}
