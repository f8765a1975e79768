package service

import (
	"encoding/json"
	"fmt"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/model"
)

// 通知类型
const (
	NoticeCharisma  = "charisma"    // 收礼人魅力值
	NoticeLevelUp   = "level_up"    // 送礼人财富等级经验
	NoticeGift      = "gift_notice" // 送礼消息
	NoticeBroadcast = "broadcast"   // 全站飘屏
	NoticeRoomLucky = "room_lucky"  // 房间内幸运中奖，延迟展示
)

// Notice 发给通知服务的消息体
type Notice struct {
	Type        string `json:"type"`
	BillNo      string `json:"bill_no"`
	RoomID      int64  `json:"room_id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	GiftID      int64  `json:"gift_id"`
	GiftName    string `json:"gift_name"`
	GiftNumber  int    `json:"gift_number"`
	NumberGroup int    `json:"number_group"`
	GiftCoin    string `json:"gift_coin"`
	Multiple    int64  `json:"multiple"`
	BackCoin    string `json:"back_coin"`
	CreatedAt   string `json:"created_at"`
}

// buildOutbox 送礼事务内要写的消息
//
// 通知和结算事件都走消息表：和账务同事务写入，提交之后才会被 OutboxSender 投递，
// 房间幸运消息通过 available_at 延迟发送。
func buildOutbox(cfg *config.Config, bill *model.GiftBill, now time.Time) ([]*model.OutboxMessage, error) {
	base := Notice{
		BillNo:      bill.BillNo,
		RoomID:      bill.RoomID,
		SenderID:    bill.UID,
		RecipientID: bill.ToUID,
		GiftID:      bill.GiftID,
		GiftName:    bill.GiftName,
		GiftNumber:  bill.GiftNumber,
		NumberGroup: bill.NumberGroup,
		GiftCoin:    bill.GiftCoin.String(),
		Multiple:    bill.Multiple,
		BackCoin:    bill.BackCoin.String(),
		CreatedAt:   now.Format(time.RFC3339),
	}

	type pending struct {
		topic string
		kind  string
		at    time.Time
	}
	list := []pending{
		{cfg.Kafka.Topic.Notice, NoticeCharisma, now},
		{cfg.Kafka.Topic.Notice, NoticeLevelUp, now},
		{cfg.Kafka.Topic.Notice, NoticeGift, now},
	}
	threshold := cfg.Gift.BroadcastThreshold
	if threshold > 0 && bill.Multiple >= threshold {
		list = append(list, pending{cfg.Kafka.Topic.Notice, NoticeBroadcast, now})
	}
	if bill.RoomID > 0 && bill.Multiple > 0 {
		list = append(list, pending{cfg.Kafka.Topic.Notice, NoticeRoomLucky, now.Add(cfg.Gift.RoomNoticeDelay)})
	}

	msgs := make([]*model.OutboxMessage, 0, len(list)+1)
	for _, p := range list {
		n := base
		n.Type = p.kind
		payload, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &model.OutboxMessage{
			MessageKey:  fmt.Sprintf("%s:%s", bill.BillNo, p.kind),
			Topic:       p.topic,
			Payload:     string(payload),
			Status:      model.OutboxStatusPending,
			AvailableAt: p.at,
		})
	}

	settled, err := json.Marshal(bill)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, &model.OutboxMessage{
		MessageKey:  bill.BillNo,
		Topic:       cfg.Kafka.Topic.GiftSettled,
		Payload:     string(settled),
		Status:      model.OutboxStatusPending,
		AvailableAt: now,
	})
	return msgs, nil
}
