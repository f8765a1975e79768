package repository

import (
	"context"
	"testing"

	"giftledger/internal/infrastructure/database/dbtest"
	"giftledger/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMySQLMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func TestLockByUserIDsIssuesOrderedForUpdate(t *testing.T) {
	db, mock := newMySQLMock(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `account` WHERE user_id IN \\(\\?,\\?\\) ORDER BY user_id ASC FOR UPDATE").
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "coin", "money", "version"}).
			AddRow(1, 3, "10", "0", 0).
			AddRow(2, 7, "5", "0.5", 4))

	accounts, err := repo.LockByUserIDs(context.Background(), db, []int64{3, 7})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, int64(3), accounts[0].UserID)
	assert.True(t, accounts[1].Money.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 4, accounts[1].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockByUserIDsMissingAccount(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Account{UserID: 1}))

	_, err := repo.LockByUserIDs(ctx, db, []int64{1, 2})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUpdateBalanceBumpsVersion(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Account{UserID: 9, Coin: decimal.NewFromInt(100)}))

	accounts, err := repo.LockByUserIDs(ctx, db, []int64{9})
	require.NoError(t, err)
	acc := accounts[0]

	require.NoError(t, repo.UpdateBalance(ctx, db, acc, model.FieldCoin, decimal.NewFromInt(60)))
	assert.Equal(t, 1, acc.Version)

	stored, err := repo.GetByUserID(ctx, 9)
	require.NoError(t, err)
	assert.True(t, stored.Coin.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 1, stored.Version)

	stale := *stored
	stale.Version = 0
	err = repo.UpdateBalance(ctx, db, &stale, model.FieldCoin, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrStaleAccount)
}

func TestNegativeCoinRejectedByStorage(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Account{UserID: 5, Coin: decimal.NewFromInt(1)}))

	acc, err := repo.GetByUserID(ctx, 5)
	require.NoError(t, err)
	err = repo.UpdateBalance(ctx, db, acc, model.FieldCoin, decimal.NewFromInt(-1))
	require.Error(t, err)

	stored, err := repo.GetByUserID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, stored.Coin.Equal(decimal.NewFromInt(1)))
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, 77)
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Coin.IsZero())
}
