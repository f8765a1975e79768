package job

import (
	"context"
	"fmt"
	"sync"

	"giftledger/internal/config"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mismatch 账户余额与最近一条账单快照不一致
type Mismatch struct {
	UserID   int64           `json:"user_id"`
	Field    string          `json:"field"`
	Snapshot decimal.Decimal `json:"snapshot"`
	Balance  decimal.Decimal `json:"balance"`
	EntryNo  string          `json:"entry_no"`
}

type ReconcileReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// ReconcileJob 定时对账，只读
//
// 账单的 balance 是变动之后的余额快照，任何一次余额变动都伴随一条账单，
// 所以每个账户最近一条账单的 balance 必须等于当前余额。不相等说明有人绕过账本改了余额。
// 没有任何账单的账户跳过（初始化导入的余额）。
// 读取不加锁，和并发送礼交错时可能误报一次，连续两轮都不一致才需要人工处理。
type ReconcileJob struct {
	accountRepo  *repository.AccountRepository
	userBillRepo *repository.UserBillRepository
	spec         string
	batchSize    int
	metrics      *metrics.Metrics
	logger       *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReconcileJob(db *gorm.DB, cfg config.ReconcileConfig, m *metrics.Metrics, logger *zap.Logger) *ReconcileJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &ReconcileJob{
		accountRepo:  repository.NewAccountRepository(db),
		userBillRepo: repository.NewUserBillRepository(db),
		spec:         cfg.Spec,
		batchSize:    cfg.BatchSize,
		metrics:      m,
		logger:       logger.Named("ReconcileJob"),
	}
}

// Start 按 cron 表达式调度；上一轮没跑完时跳过本轮
func (j *ReconcileJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(j.spec, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("对账失败", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("对账任务 cron 表达式无效 %q: %w", j.spec, err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("对账任务启动", zap.String("spec", j.spec))
	return nil
}

// Stop 停止调度并等待正在执行的一轮结束
func (j *ReconcileJob) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := j.cron.Stop()
	j.cron = nil
	j.logger.Info("对账任务停止")
	return ctx
}

func (j *ReconcileJob) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	var afterID int64
	for {
		accounts, err := j.accountRepo.ListAfterID(ctx, afterID, j.batchSize)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			break
		}
		for _, acc := range accounts {
			report.Checked++
			for _, field := range []string{model.FieldCoin, model.FieldMoney} {
				entry, err := j.userBillRepo.Latest(ctx, acc.UserID, field)
				if err != nil {
					return nil, err
				}
				if entry == nil || entry.Balance.Equal(acc.Balance(field)) {
					continue
				}
				m := Mismatch{
					UserID:   acc.UserID,
					Field:    field,
					Snapshot: entry.Balance,
					Balance:  acc.Balance(field),
					EntryNo:  entry.EntryNo,
				}
				report.Mismatches = append(report.Mismatches, m)
				j.logger.Error("余额与账单快照不一致",
					zap.Int64("user_id", m.UserID),
					zap.String("field", m.Field),
					zap.String("snapshot", m.Snapshot.String()),
					zap.String("balance", m.Balance.String()),
					zap.String("entry_no", m.EntryNo))
			}
		}
		afterID = accounts[len(accounts)-1].ID
	}

	j.metrics.SetReconcileMismatches(len(report.Mismatches))
	j.logger.Info("对账完成", zap.Int("checked", report.Checked), zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}
