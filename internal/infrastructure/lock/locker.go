package lock

import (
	"context"
	"errors"
	"sort"
)

// ============================================================================
// 账户锁
// ============================================================================
//
// 【为什么必须按顺序加锁？】
//
// 场景：A 送礼给 B，同一时刻 B 送礼给 A
//
// 按请求顺序加锁：
//   请求1: 锁A -> 等待锁B
//   请求2: 锁B -> 等待锁A
//   互相等待，形成死锁
//
// 按账户ID升序加锁：
//   请求1: 锁A -> 锁B -> 执行 -> 释放
//   请求2: 等待锁A ... -> 锁A -> 锁B -> 执行 -> 释放
//   不存在环路等待
//
// 所以一个事务要用到的账户，必须在任何变更之前一次性按升序锁住。
//
// ============================================================================

var (
	ErrLockTimeout = errors.New("获取账户锁超时")
	ErrNoAccounts  = errors.New("没有需要加锁的账户")
)

// Locker 按全局顺序锁住一组账户
type Locker interface {
	// LockAccounts 阻塞直到拿到全部锁，或者 ctx 结束（返回 ErrLockTimeout）。
	// 返回的 release 只能调用一次。
	LockAccounts(ctx context.Context, accountIDs []int64) (release func(), err error)
}

// SortedUnique 去重并升序排列账户ID，这是唯一合法的加锁顺序
func SortedUnique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}
