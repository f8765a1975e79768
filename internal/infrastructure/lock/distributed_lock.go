package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（持有者崩溃时锁自动释放）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本里先比较 value 再删除，保证原子性
//
// ============================================================================

// 检查 value 是否匹配，匹配则删除
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁，直到成功或 ctx 结束
// 等锁上限由调用方通过 ctx 的 deadline 控制
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		success, err := l.TryLock(ctx)
		if err != nil {
			return timeoutErr(ctx, err)
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return timeoutErr(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock 释放锁
//
// 为什么要检查 value？
//
//	A 获取锁 -> A 处理超时，锁自动过期 -> B 获取锁 -> A 执行完毕，调用 Unlock
//	如果不检查 value，A 会把 B 的锁删掉
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// ============================================================================
// RedisLocker：按账户ID升序获取多把分布式锁
// ============================================================================

// RedisLocker 多实例部署使用的账户锁
type RedisLocker struct {
	client        redis.Cmdable
	ttl           time.Duration
	retryInterval time.Duration
	onUnlockError func(key string, err error)
}

func NewRedisLocker(client redis.Cmdable, ttl, retryInterval time.Duration, onUnlockError func(key string, err error)) *RedisLocker {
	if retryInterval <= 0 {
		retryInterval = 20 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		onUnlockError: onUnlockError,
	}
}

// AccountLockKey 账户锁的 key
func AccountLockKey(accountID int64) string {
	return fmt.Sprintf("gift:lock:account:%d", accountID)
}

func (r *RedisLocker) LockAccounts(ctx context.Context, accountIDs []int64) (func(), error) {
	ids := SortedUnique(accountIDs)
	if len(ids) == 0 {
		return nil, ErrNoAccounts
	}

	// 同一事务的所有锁共用一个 token，便于排查是谁持有
	token := uuid.NewString()
	held := make([]*DistributedLock, 0, len(ids))
	for _, id := range ids {
		l := NewDistributedLock(r.client, AccountLockKey(id), token, r.ttl)
		if err := l.Lock(ctx, r.retryInterval); err != nil {
			r.unlockAll(held)
			return nil, err
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unlockAll(held) })
	}, nil
}

// unlockAll 逆序释放；调用时原 ctx 可能已经超时，单独给一个短超时
func (r *RedisLocker) unlockAll(held []*DistributedLock) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if err := held[i].Unlock(ctx); err != nil && r.onUnlockError != nil {
			r.onUnlockError(held[i].key, err)
		}
	}
}
