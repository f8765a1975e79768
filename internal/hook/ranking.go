package hook

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const rankingTTL = 48 * time.Hour

// 一次送礼要累加的榜单在同一个脚本里写完，重试时要么全没写要么全写了
//
//	KEYS[i]      榜单 key
//	ARGV[1]      分数
//	ARGV[2i]     KEYS[i] 的成员
//	ARGV[2i+1]   KEYS[i] 的过期秒数，0 表示不过期
var rankingScript = redis.NewScript(`
	for i, key in ipairs(KEYS) do
		redis.call("ZINCRBY", key, ARGV[1], ARGV[2 * i])
		local ttl = tonumber(ARGV[2 * i + 1])
		if ttl > 0 then
			redis.call("EXPIRE", key, ttl)
		end
	end
	return #KEYS
`)

// RankingHook 礼物排行榜（redis 有序集合）
// 分数只用于展示，按金币值累加
type RankingHook struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRankingHook(client redis.Cmdable) *RankingHook {
	return &RankingHook{client: client, now: time.Now}
}

func (h *RankingHook) Name() string { return "ranking" }

// 日榜 key 按天分片，房间榜只在房间内送礼时累加
func DailySendKey(day string) string     { return fmt.Sprintf("gift:rank:daily:%s:send", day) }
func DailyReceiveKey(day string) string  { return fmt.Sprintf("gift:rank:daily:%s:receive", day) }
func RoomSendKey(roomID int64) string    { return fmt.Sprintf("gift:rank:room:%d:send", roomID) }
func RoomReceiveKey(roomID int64) string { return fmt.Sprintf("gift:rank:room:%d:receive", roomID) }

func (h *RankingHook) Handle(ctx context.Context, ev *GiftEvent) error {
	score := ev.GiftCoin.InexactFloat64()
	if score <= 0 {
		return nil
	}
	sender := strconv.FormatInt(ev.SenderID, 10)
	recipient := strconv.FormatInt(ev.RecipientID, 10)
	dailyTTL := int64(rankingTTL / time.Second)

	day := h.now().Format("20060102")
	keys := []string{DailySendKey(day), DailyReceiveKey(day)}
	args := []interface{}{score, sender, dailyTTL, recipient, dailyTTL}
	if ev.RoomID > 0 {
		keys = append(keys, RoomSendKey(ev.RoomID), RoomReceiveKey(ev.RoomID))
		args = append(args, sender, int64(0), recipient, int64(0))
	}

	if err := rankingScript.Run(ctx, h.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("更新排行榜 %s: %w", ev.BillNo, err)
	}
	return nil
}
