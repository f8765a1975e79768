package ledger

import (
	"context"
	"errors"
	"fmt"

	"giftledger/internal/infrastructure/lock"
	"giftledger/internal/repository"
)

// Kind 送礼失败的类型，调用方只需要按 Kind 分支
type Kind int

const (
	KindUnknown Kind = iota
	KindInsufficientFunds
	KindLockTimeout
	KindPersistenceFailure
	KindConfigurationError
	KindInvalidRequest
	KindAccountNotFound
	KindDuplicateRequest
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindInsufficientFunds:  "InsufficientFunds",
	KindLockTimeout:        "LockTimeout",
	KindPersistenceFailure: "PersistenceFailure",
	KindConfigurationError: "ConfigurationError",
	KindInvalidRequest:     "InvalidRequest",
	KindAccountNotFound:    "AccountNotFound",
	KindDuplicateRequest:   "DuplicateRequest",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// 每个 Kind 对应一个哨兵错误，errors.Is(err, ledger.ErrInsufficientFunds) 可以穿透 TransferError
var (
	ErrInsufficientFunds  = errors.New("余额不足")
	ErrLockTimeout        = errors.New("账户繁忙，请稍后重试")
	ErrPersistenceFailure = errors.New("账务写入失败")
	ErrConfiguration      = errors.New("配置无效")
	ErrInvalidRequest     = errors.New("请求参数无效")
	ErrAccountNotFound    = errors.New("账户不存在")
	ErrDuplicateRequest   = errors.New("重复请求")

	// ErrNotLocked 操作了本次事务没有锁住的账户，属于调用方的编程错误
	ErrNotLocked = errors.New("账户未在本事务中加锁")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindLockTimeout:
		return ErrLockTimeout
	case KindConfigurationError:
		return ErrConfiguration
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindAccountNotFound:
		return ErrAccountNotFound
	case KindDuplicateRequest:
		return ErrDuplicateRequest
	default:
		return ErrPersistenceFailure
	}
}

// TransferError 账务操作的统一错误
type TransferError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func newError(kind Kind, op string, err error) *TransferError {
	return &TransferError{Kind: kind, Op: op, Err: err}
}

// KindOf 取出错误的 Kind，非 TransferError 一律按 PersistenceFailure 处理
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return classifyKind(err)
}

// Wrap 把任意错误转换成 TransferError，已经是 TransferError 的原样返回
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return newError(classifyKind(err), op, err)
}

func classifyKind(err error) Kind {
	switch {
	case errors.Is(err, lock.ErrLockTimeout),
		errors.Is(err, repository.ErrLockConflict),
		errors.Is(err, context.DeadlineExceeded):
		return KindLockTimeout
	case errors.Is(err, repository.ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, lock.ErrNoAccounts), errors.Is(err, ErrNotLocked):
		return KindInvalidRequest
	case errors.Is(err, repository.ErrDuplicate):
		return KindDuplicateRequest
	default:
		return KindPersistenceFailure
	}
}
