package ledger

import (
	"errors"
	"fmt"
	"testing"

	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestWrapClassifiesCauses(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{lock.ErrLockTimeout, KindLockTimeout},
		{fmt.Errorf("exec: %w", repository.ErrLockConflict), KindLockTimeout},
		{repository.ErrAccountNotFound, KindAccountNotFound},
		{repository.ErrDuplicate, KindDuplicateRequest},
		{errors.New("disk full"), KindPersistenceFailure},
	}
	for _, tc := range cases {
		err := Wrap("op", tc.err)
		assert.Equal(t, tc.kind, KindOf(err), tc.err.Error())
		assert.ErrorIs(t, err, tc.err)
	}
	assert.NoError(t, Wrap("op", nil))
}

func TestWrapKeepsExistingTransferError(t *testing.T) {
	orig := newError(KindInsufficientFunds, "ledger.debit", nil)
	wrapped := Wrap("ledger.commit", orig)
	assert.Same(t, orig, wrapped)
	assert.Equal(t, "ledger.debit: InsufficientFunds", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrInsufficientFunds)
	assert.NotErrorIs(t, wrapped, ErrLockTimeout)
}
