package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Lock      LockConfig      `mapstructure:"lock"`
	Gift      GiftConfig      `mapstructure:"gift"`
	Hook      HookConfig      `mapstructure:"hook"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Port     int `mapstructure:"port"`
	WorkerID int `mapstructure:"worker_id"` // 雪花算法机器ID
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql / postgres / sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	SQLLog       bool   `mapstructure:"sql_log"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	GiftSettled string `mapstructure:"gift_settled"`
	Notice      string `mapstructure:"notice"`
}

// LockConfig 账户锁
type LockConfig struct {
	Driver        string        `mapstructure:"driver"`         // redis / local
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`   // 等锁上限，超时返回 LockTimeout
	TTL           time.Duration `mapstructure:"ttl"`            // redis 锁过期时间
	RetryInterval time.Duration `mapstructure:"retry_interval"` // redis 抢锁间隔
}

// GiftConfig 送礼业务参数
// 金额类配置全部用字符串，避免 yaml 解析成 float64
type GiftConfig struct {
	ExchangeRate       string            `mapstructure:"exchange_rate"` // 每 100 金币兑换的现金
	Shares             ShareConfig       `mapstructure:"shares"`
	BonusMultiplier    int64             `mapstructure:"bonus_multiplier"`
	LuckTable          []LuckTableConfig `mapstructure:"luck_table"`
	BroadcastThreshold int64             `mapstructure:"broadcast_threshold"` // 达到该倍数发飘屏
	RoomNoticeDelay    time.Duration     `mapstructure:"room_notice_delay"`
}

type ShareConfig struct {
	Owner     string `mapstructure:"owner"`
	Host      string `mapstructure:"host"`
	Recipient string `mapstructure:"recipient"`
}

type LuckTableConfig struct {
	Multiple int64 `mapstructure:"multiple"`
	Weight   int   `mapstructure:"weight"`
}

type HookConfig struct {
	Workers     int `mapstructure:"workers"`
	QueueSize   int `mapstructure:"queue_size"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

type OutboxConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxRetryCount int           `mapstructure:"max_retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"` // 第一次重试的等待时间，之后每次翻倍
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
}

type ReconcileConfig struct {
	Spec      string `mapstructure:"spec"` // cron 表达式
	BatchSize int    `mapstructure:"batch_size"`
}

// LoadConfig 加载配置文件
// 环境变量优先级高于文件，例如 GIFT_DATABASE_DSN 覆盖 database.dsn
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("kafka.topic.gift_settled", "gift_settled")
	v.SetDefault("kafka.topic.notice", "gift_notice")
	v.SetDefault("lock.driver", "redis")
	v.SetDefault("lock.wait_timeout", 3*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.retry_interval", 20*time.Millisecond)
	v.SetDefault("gift.exchange_rate", "0.1")
	v.SetDefault("gift.shares.owner", "0")
	v.SetDefault("gift.shares.host", "0")
	v.SetDefault("gift.shares.recipient", "0")
	v.SetDefault("gift.bonus_multiplier", 0)
	v.SetDefault("gift.broadcast_threshold", 500)
	v.SetDefault("gift.room_notice_delay", time.Second)
	v.SetDefault("hook.workers", 4)
	v.SetDefault("hook.queue_size", 1024)
	v.SetDefault("hook.max_attempts", 3)
	v.SetDefault("outbox.interval", 100*time.Millisecond)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retry_count", 5)
	v.SetDefault("outbox.retry_backoff", time.Second)
	v.SetDefault("outbox.max_backoff", time.Minute)
	v.SetDefault("reconcile.spec", "@every 5m")
	v.SetDefault("reconcile.batch_size", 500)
}

// Validate 检查启动必需项
// 兑换率和分成比例不在这里拦截：它们在送礼时按 ConfigurationError 处理，只跳过分成
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver 不支持: %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn 不能为空"))
	}
	switch c.Lock.Driver {
	case "redis", "local":
	default:
		errs = append(errs, fmt.Errorf("lock.driver 不支持: %q", c.Lock.Driver))
	}
	if c.Lock.WaitTimeout <= 0 {
		errs = append(errs, errors.New("lock.wait_timeout 必须大于0"))
	}
	if c.Server.WorkerID < 0 || c.Server.WorkerID > 1023 {
		errs = append(errs, errors.New("server.worker_id 必须在 0-1023 之间"))
	}
	return errors.Join(errs...)
}
