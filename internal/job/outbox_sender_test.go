package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/infrastructure/database/dbtest"
	"giftledger/internal/infrastructure/mq"
	"giftledger/internal/model"
	"giftledger/internal/repository"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func statusOf(t *testing.T, db *gorm.DB, id int64) model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg, id).Error)
	return msg
}

func TestOutboxSenderDeliversDueMessagesOnly(t *testing.T) {
	db := dbtest.Open(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()
	now := time.Now()

	due := &model.OutboxMessage{MessageKey: "B1:gift_notice", Topic: "gift_notice", Payload: `{"type":"gift_notice"}`, Status: model.OutboxStatusPending, AvailableAt: now.Add(-time.Minute)}
	later := &model.OutboxMessage{MessageKey: "B1:room_lucky", Topic: "gift_notice", Payload: `{"type":"room_lucky"}`, Status: model.OutboxStatusPending, AvailableAt: now.Add(time.Hour)}
	require.NoError(t, repo.CreateBatch(ctx, nil, []*model.OutboxMessage{due, later}))

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"gift_notice"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	sender := NewOutboxSender(db, config.OutboxConfig{BatchSize: 10, MaxRetryCount: 3}, mq.NewProducer(producer), nil, zap.NewNop())
	sender.now = func() time.Time { return now }

	assert.Equal(t, 1, sender.processPendingMessages(ctx))
	assert.Equal(t, model.OutboxStatusSent, statusOf(t, db, due.ID).Status)
	assert.Equal(t, model.OutboxStatusPending, statusOf(t, db, later.ID).Status)

	// 到点之后延迟消息才会发出
	producer.ExpectSendMessageAndSucceed()
	sender.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Equal(t, 1, sender.processPendingMessages(ctx))
	assert.Equal(t, model.OutboxStatusSent, statusOf(t, db, later.ID).Status)

	require.NoError(t, producer.Close())
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := dbtest.Open(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()

	msg := &model.OutboxMessage{MessageKey: "B2", Topic: "gift_settled", Payload: "{}", Status: model.OutboxStatusPending}
	require.NoError(t, repo.Create(ctx, nil, msg))

	producer := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}
	sender := NewOutboxSender(db, config.OutboxConfig{BatchSize: 10, MaxRetryCount: 3, RetryBackoff: time.Minute, MaxBackoff: time.Hour}, mq.NewProducer(producer), nil, zap.NewNop())
	clock := time.Now().Add(time.Second)
	sender.now = func() time.Time { return clock }

	assert.Zero(t, sender.processPendingMessages(ctx))
	stored := statusOf(t, db, msg.ID)
	assert.Equal(t, 1, stored.RetryCount)
	assert.WithinDuration(t, clock.Add(time.Minute), stored.AvailableAt, time.Second)

	// 退避期内不会再发，producer 也不会被调用
	clock = clock.Add(30 * time.Second)
	assert.Zero(t, sender.processPendingMessages(ctx))
	assert.Equal(t, 1, statusOf(t, db, msg.ID).RetryCount)

	clock = clock.Add(31 * time.Second)
	assert.Zero(t, sender.processPendingMessages(ctx))
	stored = statusOf(t, db, msg.ID)
	assert.Equal(t, 2, stored.RetryCount)
	assert.WithinDuration(t, clock.Add(2*time.Minute), stored.AvailableAt, time.Second)

	clock = clock.Add(2*time.Minute + time.Second)
	assert.Zero(t, sender.processPendingMessages(ctx))

	stored = statusOf(t, db, msg.ID)
	assert.Equal(t, model.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	// FAILED 不会再被捞出来
	assert.Zero(t, sender.processPendingMessages(ctx))

	n, err := sender.Requeue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored = statusOf(t, db, msg.ID)
	assert.Equal(t, model.OutboxStatusPending, stored.Status)
	assert.Zero(t, stored.RetryCount)

	require.NoError(t, producer.Close())
}

func TestOutboxRetryDelayDoublesUpToCap(t *testing.T) {
	sender := NewOutboxSender(nil, config.OutboxConfig{RetryBackoff: time.Second, MaxBackoff: 5 * time.Second}, nil, nil, zap.NewNop())
	assert.Equal(t, time.Second, sender.retryDelay(1))
	assert.Equal(t, 2*time.Second, sender.retryDelay(2))
	assert.Equal(t, 4*time.Second, sender.retryDelay(3))
	assert.Equal(t, 5*time.Second, sender.retryDelay(4))
	assert.Equal(t, 5*time.Second, sender.retryDelay(30))
}

func TestOutboxSenderStartStop(t *testing.T) {
	db := dbtest.Open(t)
	producer := mocks.NewSyncProducer(t, nil)
	sender := NewOutboxSender(db, config.OutboxConfig{Interval: 5 * time.Millisecond}, mq.NewProducer(producer), nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	sender.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
	require.NoError(t, producer.Close())
}
