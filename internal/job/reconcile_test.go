package job

import (
	"context"
	"testing"
	"time"

	"giftledger/internal/config"
	"giftledger/internal/infrastructure/database/dbtest"
	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/ledger"
	"giftledger/internal/model"
	"giftledger/internal/repository"
	"giftledger/pkg/fixed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconcileFindsTamperedBalance(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	accounts := repository.NewAccountRepository(db)
	bills := repository.NewUserBillRepository(db)
	lg := ledger.New(db, lock.NewLocalLocker(), accounts, bills, time.Second, nil, zap.NewNop())

	for _, uid := range []int64{1, 2, 3} {
		require.NoError(t, accounts.Create(ctx, &model.Account{UserID: uid}))
	}
	// 3 号账户没有账单，不参与比较
	for _, uid := range []int64{1, 2} {
		require.NoError(t, lg.Atomic(ctx, []int64{uid}, func(uow *ledger.UnitOfWork) error {
			if _, err := uow.Credit(ctx, uid, model.FieldCoin, fixed.MustParse("10")); err != nil {
				return err
			}
			return uow.RecordEntry(ctx, &model.UserBill{Title: model.BillTitleRecharge, UID: uid, Field: model.FieldCoin, Number: fixed.MustParse("10"), Status: model.BillStatusSettled})
		}))
	}

	job := NewReconcileJob(db, config.ReconcileConfig{Spec: "@every 1h", BatchSize: 2}, nil, zap.NewNop())
	report, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Mismatches)

	require.NoError(t, db.Model(&model.Account{}).Where("user_id = ?", 2).Update("coin", fixed.MustParse("99")).Error)

	report, err = job.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, int64(2), report.Mismatches[0].UserID)
	assert.Equal(t, model.FieldCoin, report.Mismatches[0].Field)
	assert.Equal(t, "10", report.Mismatches[0].Snapshot.String())
	assert.Equal(t, "99", report.Mismatches[0].Balance.String())
}

func TestReconcileScheduleLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	job := NewReconcileJob(db, config.ReconcileConfig{Spec: "not a cron spec"}, nil, zap.NewNop())
	assert.Error(t, job.Start())

	job = NewReconcileJob(db, config.ReconcileConfig{Spec: "@every 1h"}, nil, zap.NewNop())
	require.NoError(t, job.Start())
	require.NoError(t, job.Start())
	<-job.Stop().Done()
	<-job.Stop().Done()
}
