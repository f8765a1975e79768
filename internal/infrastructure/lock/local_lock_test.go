package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 7}, SortedUnique([]int64{7, 3, 7, 1, 3}))
	assert.Empty(t, SortedUnique(nil))
}

func TestLocalLockerRejectsEmptySet(t *testing.T) {
	_, err := NewLocalLocker().LockAccounts(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestLocalLockerTimesOutWhileHeld(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.LockAccounts(context.Background(), []int64{1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.LockAccounts(ctx, []int64{2, 1})
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	release() // 重复释放无副作用

	// 超时失败后 2 号账户不能被遗留在锁住状态
	again, err := locker.LockAccounts(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, locker.size())
}

func TestLocalLockerIsMutuallyExclusive(t *testing.T) {
	locker := NewLocalLocker()
	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.LockAccounts(context.Background(), []int64{42})
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, int32(1), atomic.AddInt32(&inside, 1))
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, locker.size())
}

// A 锁 {A,B} 与 B 锁 {B,A} 同时发生，必须都能在有限时间内完成
func TestLocalLockerCrossOrderDoesNotDeadlock(t *testing.T) {
	locker := NewLocalLocker()
	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			ids := []int64{1, 2}
			if i%2 == 1 {
				ids = []int64{2, 1}
			}
			wg.Add(1)
			go func(ids []int64) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				release, err := locker.LockAccounts(ctx, ids)
				if assert.NoError(t, err) {
					release()
				}
			}(ids)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("cross-order locking did not finish")
	}
}
