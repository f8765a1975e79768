package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/handler"
	"giftledger/internal/hook"
	"giftledger/internal/infrastructure/cache"
	"giftledger/internal/infrastructure/database"
	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/infrastructure/mq"
	"giftledger/internal/job"
	"giftledger/internal/ledger"
	"giftledger/internal/metrics"
	"giftledger/internal/repository"
	"giftledger/internal/service"
	"giftledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func runServe(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 初始化 ID 生成器
	if err := idgen.Init(int64(cfg.Server.WorkerID)); err != nil {
		return err
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	// 初始化 Redis：redis 锁必须可用，local 锁时只影响排行榜
	redisClient, err := cache.InitRedis(&cfg.Redis, logger)
	if err != nil {
		if cfg.Lock.Driver == "redis" {
			return err
		}
		logger.Warn("Redis 不可用，排行榜回调停用", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	locker := newLocker(cfg, redisClient, logger)
	lg := ledger.New(db, locker,
		repository.NewAccountRepository(db),
		repository.NewUserBillRepository(db),
		cfg.Lock.WaitTimeout, m, logger)

	// 提交后回调
	rooms := repository.NewRoomRepository(db)
	hooks := []hook.Hook{
		hook.NewRoomExpendHook(rooms),
		hook.NewRoomIncomeHook(rooms),
		hook.NewRoomSpendHook(rooms),
	}
	if redisClient != nil {
		hooks = append(hooks, hook.NewRankingHook(redisClient))
	}
	dispatcher := hook.NewDispatcher(cfg.Hook, m, logger, hooks...)
	dispatcher.Start()

	multiplier, err := service.NewMultiplier(cfg.Gift)
	if err != nil {
		return fmt.Errorf("幸运倍数配置无效: %w", err)
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 初始化 Kafka 并启动消息投递
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		outboxSender := job.NewOutboxSender(db, cfg.Outbox, producer, m, logger)
		go outboxSender.Start(ctx)
	} else {
		logger.Warn("未配置 kafka.brokers，通知消息只落库不投递")
	}

	reconcileJob := job.NewReconcileJob(db, cfg.Reconcile, m, logger)
	if err := reconcileJob.Start(); err != nil {
		return err
	}

	// 设置路由
	h := handler.NewHandler(
		service.NewGiftService(db, cfg, lg, multiplier, dispatcher, m, logger),
		service.NewAccountService(db, lg, logger),
		service.NewWallService(db),
		logger,
	)
	router := handler.SetupRouter(h, m, logger)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("服务启动失败", zap.Error(err))
		return err
	}

	logger.Info("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒），之后不会再有新的送礼
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", zap.Error(err))
	}

	// 停止后台任务，回调队列处理完再退出
	cancel()
	<-reconcileJob.Stop().Done()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("回调队列未处理完", zap.Error(err))
	}

	logger.Info("服务已关闭")
	return nil
}

func newLocker(cfg *config.Config, client *redis.Client, logger *zap.Logger) lock.Locker {
	if cfg.Lock.Driver == "local" || client == nil {
		logger.Info("使用进程内账户锁，只适用于单实例部署")
		return lock.NewLocalLocker()
	}
	return lock.NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.RetryInterval, func(key string, err error) {
		logger.Error("释放账户锁失败", zap.String("key", key), zap.Error(err))
	})
}

func runMigrate() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if _, err := database.Open(&cfg.Database, logger); err != nil {
		return err
	}
	logger.Info("表结构迁移完成")
	return nil
}

func runReconcile(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return err
	}
	report, err := job.NewReconcileJob(db, cfg.Reconcile, nil, logger).RunOnce(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runRequeue(ctx context.Context, limit int) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return err
	}
	n, err := job.NewOutboxSender(db, cfg.Outbox, nil, nil, logger).Requeue(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("requeued %d messages\n", n)
	return nil
}
