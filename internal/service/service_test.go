package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/hook"
	"giftledger/internal/infrastructure/database/dbtest"
	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/ledger"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/pkg/fixed"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*hook.GiftEvent
}

func (p *recordingPublisher) Publish(ev *hook.GiftEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type env struct {
	db        *gorm.DB
	cfg       *config.Config
	ledger    *ledger.Ledger
	gift      *GiftService
	account   *AccountService
	wall      *WallService
	publisher *recordingPublisher
	accounts  *repository.AccountRepository
	bills     *repository.UserBillRepository
	giftBills *repository.GiftBillRepository
	walls     *repository.GiftWallRepository
	rooms     *repository.RoomRepository
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{GiftSettled: "gift_settled", Notice: "gift_notice"}},
		Lock:  config.LockConfig{Driver: "local", WaitTimeout: 5 * time.Second},
		Gift: config.GiftConfig{
			ExchangeRate:       "0.1",
			Shares:             config.ShareConfig{Owner: "0.05", Host: "0.03", Recipient: "0.02"},
			BroadcastThreshold: 500,
			RoomNoticeDelay:    time.Second,
		},
	}
}

func newEnv(t *testing.T, cfg *config.Config, multiplier Multiplier) *env {
	t.Helper()
	db := dbtest.Open(t)
	e := &env{
		db:        db,
		cfg:       cfg,
		publisher: &recordingPublisher{},
		accounts:  repository.NewAccountRepository(db),
		bills:     repository.NewUserBillRepository(db),
		giftBills: repository.NewGiftBillRepository(db),
		walls:     repository.NewGiftWallRepository(db),
		rooms:     repository.NewRoomRepository(db),
	}
	e.ledger = ledger.New(db, lock.NewLocalLocker(), e.accounts, e.bills, cfg.Lock.WaitTimeout, nil, zap.NewNop())
	e.gift = NewGiftService(db, cfg, e.ledger, multiplier, e.publisher, nil, zap.NewNop())
	e.account = NewAccountService(db, e.ledger, zap.NewNop())
	e.wall = NewWallService(db)
	return e
}

func (e *env) seed(t *testing.T, uid int64, coin string) {
	t.Helper()
	require.NoError(t, e.accounts.Create(context.Background(), &model.Account{UserID: uid, Coin: fixed.MustParse(coin)}))
}

func (e *env) acc(t *testing.T, uid int64) *model.Account {
	t.Helper()
	acc, err := e.accounts.GetByUserID(context.Background(), uid)
	require.NoError(t, err)
	return acc
}

func (e *env) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

func transferReq(sender, recipient int64, cost string) *TransferRequest {
	return &TransferRequest{
		SenderID:    sender,
		RecipientID: recipient,
		Gift:        GiftInfo{ID: 1, Name: "rose"},
		GiftNumber:  1,
		NumberGroup: 1,
		Cost:        fixed.MustParse(cost),
		UnitCoin:    fixed.MustParse(cost),
	}
}
