package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 雪花ID：1位符号 | 41位毫秒时间戳 | 10位机器ID | 12位序列号
// 礼物单号和账单流水号都带唯一索引，多实例部署时 worker_id 必须互不相同。

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10                   // 机器ID位数
	sequenceBits   = 12                   // 序列号位数
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	mu               sync.Mutex
)

// New 创建ID生成器
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	mu.Lock()
	defer mu.Unlock()
	if defaultGenerator != nil {
		return nil
	}
	g, err := New(workerID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	mu.Lock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1} // 默认使用 workerID = 1
	}
	g := defaultGenerator
	mu.Unlock()
	return g.Generate()
}

// Generate 生成ID
// 时钟回拨时沿用上一次的时间戳继续发号，序列号耗尽再借用下一毫秒，保证单调递增
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		now = s.timestamp
	}
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			now++
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return (now-epoch)<<timestampShift | s.workerID<<workerIDShift | s.sequence
}

// GenerateBillNo 生成礼物单号
// 格式：GFT + 年月日时分秒 + 雪花ID
// 例如：GFT20240115143052_xxxxxxxxxxxxxxxxx
func GenerateBillNo() string {
	return generate("GFT")
}

// GenerateEntryNo 生成账单流水号
func GenerateEntryNo() string {
	return generate("BIL")
}

// 完整保留雪花ID：账单号有唯一索引，截断会在高并发下撞号
func generate(prefix string) string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("%s%s_%d", prefix, timestamp, id)
}
