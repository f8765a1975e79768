package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, ErrLockConflict},
		{"mysql deadlock", fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1213}), ErrLockConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrDuplicate},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, ErrLockConflict},
		{"pg lock not available", &pgconn.PgError{Code: "55P03"}, ErrLockConflict},
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrDuplicate},
		{"gorm duplicate", gorm.ErrDuplicatedKey, ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tc.err), tc.want)
		})
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, Classify(boom))
	assert.Nil(t, Classify(nil))
	assert.False(t, IsLockConflict(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsDuplicate(&pgconn.PgError{Code: "40P01"}))
}
