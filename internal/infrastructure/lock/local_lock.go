package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LocalLocker 进程内账户锁
// 单实例部署或测试使用；多实例部署必须用 RedisLocker
type LocalLocker struct {
	mu      sync.Mutex
	entries map[int64]*localEntry
}

type localEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[int64]*localEntry)}
}

func (l *LocalLocker) LockAccounts(ctx context.Context, accountIDs []int64) (func(), error) {
	ids := SortedUnique(accountIDs)
	if len(ids) == 0 {
		return nil, ErrNoAccounts
	}

	held := make([]int64, 0, len(ids))
	for _, id := range ids {
		if err := l.acquire(ctx, id); err != nil {
			l.releaseAll(held)
			return nil, timeoutErr(ctx, err)
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

func (l *LocalLocker) acquire(ctx context.Context, id int64) error {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &localEntry{sem: semaphore.NewWeighted(1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(id, e)
		return err
	}
	return nil
}

// releaseAll 逆序释放
func (l *LocalLocker) releaseAll(ids []int64) {
	for i := len(ids) - 1; i >= 0; i-- {
		l.mu.Lock()
		e := l.entries[ids[i]]
		l.mu.Unlock()
		e.sem.Release(1)
		l.unref(ids[i], e)
	}
}

func (l *LocalLocker) unref(id int64, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// size 当前登记的账户数，测试用
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
