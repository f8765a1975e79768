package hook

import (
	"context"
	"errors"
	"sync"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================================
// 提交后回调
// ============================================================================
//
// 排行榜、房间贡献、房间消费这类统计不属于账务一致性范围：
//   - 只在事务提交成功之后 Publish，回调永远看不到未提交的数据
//   - 回调失败只记日志和指标，不会回滚已经提交的送礼
//   - Publish 不阻塞送礼请求，队列满了直接丢弃并记录
//
// ============================================================================

var ErrDispatcherClosed = errors.New("dispatcher 已关闭")

// GiftEvent 一次已提交的送礼
type GiftEvent struct {
	BillID      int64
	BillNo      string
	RoomID      int64
	SenderID    int64
	RecipientID int64
	GiftID      int64
	GiftName    string
	GiftCoin    decimal.Decimal
	GiftMoney   decimal.Decimal
	Multiple    int64
	CreatedAt   time.Time
}

// Hook 一个提交后回调，需要自己保证重复执行的后果可接受
type Hook interface {
	Name() string
	Handle(ctx context.Context, ev *GiftEvent) error
}

type Dispatcher struct {
	hooks       []Hook
	queue       chan *GiftEvent
	workers     int
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(cfg config.HookConfig, m *metrics.Metrics, logger *zap.Logger, hooks ...Hook) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		hooks:       hooks,
		queue:       make(chan *GiftEvent, cfg.QueueSize),
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		backoff:     50 * time.Millisecond,
		timeout:     5 * time.Second,
		metrics:     m,
		logger:      logger.Named("HookDispatcher"),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("hook dispatcher 启动", zap.Int("workers", d.workers), zap.Int("hooks", len(d.hooks)))
}

// Publish 投递事件，不阻塞；返回 false 表示事件被丢弃
func (d *Dispatcher) Publish(ev *GiftEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher 已关闭，丢弃事件", zap.String("bill_no", ev.BillNo))
		d.metrics.HookDropped()
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Error("hook 队列已满，丢弃事件", zap.String("bill_no", ev.BillNo))
		d.metrics.HookDropped()
		return false
	}
}

// Stop 不再接收新事件，等待队列中的事件处理完或 ctx 结束
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("hook dispatcher 已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		for _, h := range d.hooks {
			d.run(h, ev)
		}
	}
}

// run 单个回调按 maxAttempts 重试，互不影响
func (d *Dispatcher) run(h Hook, ev *GiftEvent) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err = d.call(h, ev)
		if err == nil {
			return
		}
		d.logger.Warn("hook 执行失败",
			zap.String("hook", h.Name()),
			zap.String("bill_no", ev.BillNo),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < d.maxAttempts {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
	}
	d.metrics.HookFailed(h.Name())
	d.logger.Error("hook 重试耗尽，放弃",
		zap.String("hook", h.Name()),
		zap.String("bill_no", ev.BillNo),
		zap.Error(err))
}

func (d *Dispatcher) call(h Hook, ev *GiftEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("hook panic")
			d.logger.Error("hook panic", zap.String("hook", h.Name()), zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return h.Handle(ctx, ev)
}
