package job

import (
	"context"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageSender 消息投递方，生产环境是 mq.Producer
type MessageSender interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 把已提交的消息表记录投递到 Kafka
//
// 只取 available_at 已到的 PENDING 消息，房间幸运通知这类延迟消息到点才会发出。
// 投递是至少一次：发送成功但更新状态失败时，下一轮会再发一次，消费方按 message_key 去重。
type OutboxSender struct {
	db         *gorm.DB
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	metrics    *metrics.Metrics
	logger     *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

func NewOutboxSender(db *gorm.DB, cfg config.OutboxConfig, sender MessageSender, m *metrics.Metrics, logger *zap.Logger) *OutboxSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	return &OutboxSender{
		db:         db,
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		metrics:    m,
		logger:     logger.Named("OutboxSender"),
		stopCh:     make(chan struct{}),
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		maxRetry:   cfg.MaxRetryCount,
		backoff:    cfg.RetryBackoff,
		maxBackoff: cfg.MaxBackoff,
		now:        time.Now,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 处理一批到期消息，返回成功发送的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetDueMessages(ctx, s.now(), s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.sender.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.logger.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
		} else {
			s.logger.Debug("消息发送成功", zap.Int64("id", msg.ID), zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		}
		s.metrics.OutboxDelivered(model.OutboxStatusSent)
		return true
	}

	s.logger.Warn("消息发送失败", zap.Int64("id", msg.ID), zap.Int("retry_count", msg.RetryCount), zap.Error(err))

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", zap.Int64("id", msg.ID), zap.Error(err))
		} else {
			s.logger.Error("消息超过最大重试次数，标记为失败", zap.Int64("id", msg.ID), zap.String("key", msg.MessageKey))
			s.metrics.OutboxDelivered(model.OutboxStatusFailed)
		}
		return false
	}

	nextAt := s.now().Add(s.retryDelay(msg.RetryCount + 1))
	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID, nextAt); err != nil {
		s.logger.Error("增加重试次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
	return false
}

// retryDelay 第 n 次重试前的等待：backoff * 2^(n-1)，不超过 maxBackoff
func (s *OutboxSender) retryDelay(n int) time.Duration {
	d := s.backoff
	for i := 1; i < n && d < s.maxBackoff; i++ {
		d *= 2
	}
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	return d
}

// Requeue 把 FAILED 消息重新放回待发送，运维手动触发
func (s *OutboxSender) Requeue(ctx context.Context, limit int) (int, error) {
	messages, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, msg := range messages {
		if err := s.outboxRepo.Requeue(ctx, msg.ID); err != nil {
			s.logger.Error("重新入队失败", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		n++
	}
	s.logger.Info("失败消息重新入队", zap.Int("count", n))
	return n, nil
}
