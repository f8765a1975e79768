package repository

import (
	"context"
	"sync"
	"testing"

	"giftledger/internal/infrastructure/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallIncrementCreatesThenAdds(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewGiftWallRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Increment(ctx, nil, 1, 10, 1))
	require.NoError(t, repo.Increment(ctx, nil, 1, 10, 4))
	require.NoError(t, repo.Increment(ctx, nil, 1, 11, 2))

	row, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(5), row.GiftNumber)

	rows, err := repo.ListByUID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].GiftID)

	assert.ErrorIs(t, repo.Increment(ctx, nil, 1, 10, 0), ErrInvalidWallAmount)
}

func TestWallConcurrentFirstIncrementsKeepOneRow(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewGiftWallRepository(db)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Increment(ctx, nil, 7, 99, 1))
		}()
	}
	wg.Wait()

	rows, err := repo.CountRows(ctx, 7, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	row, err := repo.Get(ctx, 7, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(n), row.GiftNumber)
}
