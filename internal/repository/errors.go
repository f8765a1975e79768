package repository

import (
	"errors"
	"fmt"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrStaleAccount    = errors.New("账户版本已变化")
	ErrBillNotFound    = errors.New("礼物记录不存在")
	ErrRoomNotFound    = errors.New("房间不存在")
	ErrDuplicate       = errors.New("唯一键冲突")
	ErrLockConflict    = errors.New("行锁等待超时或死锁")
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213

	pgUniqueViolation     = "23505"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"
	sqliteBusy            = 5
	sqliteLocked          = 6
	sqliteConstraintPK    = 1555
	sqliteConstraintUniq  = 2067
	sqlitePrimaryCodeMask = 0xFF
)

// Classify 把驱动错误归类成仓储层的哨兵错误，其它错误原样返回
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsLockConflict(err):
		return fmt.Errorf("%w: %v", ErrLockConflict, err)
	case IsDuplicate(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// IsDuplicate 唯一索引冲突
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintUniq || sqliteErr.Code() == sqliteConstraintPK
	}
	return false
}

// IsLockConflict 锁等待超时、死锁被数据库回滚、sqlite 忙
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLockConflict) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlock
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFail, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return true
		}
		return false
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & sqlitePrimaryCodeMask
		return code == sqliteBusy || code == sqliteLocked
	}
	return false
}
