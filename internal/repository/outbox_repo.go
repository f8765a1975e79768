package repository

import (
	"context"
	"time"

	"giftledger/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	if msg.AvailableAt.IsZero() {
		msg.AvailableAt = time.Now()
	}
	return Classify(tx.WithContext(ctx).Create(msg).Error)
}

// CreateBatch 同一事务内写入多条消息
func (r *OutboxRepository) CreateBatch(ctx context.Context, tx *gorm.DB, msgs []*model.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	for _, msg := range msgs {
		if msg.AvailableAt.IsZero() {
			msg.AvailableAt = now
		}
	}
	return Classify(tx.WithContext(ctx).Create(&msgs).Error)
}

// GetDueMessages 已到投递时间的待发送消息
func (r *OutboxRepository) GetDueMessages(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND available_at <= ?", model.OutboxStatusPending, now).
		Order("available_at ASC, id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// IncrementRetryCount 重试次数 +1，并把下次投递时间推迟到 nextAt
func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id int64, nextAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"retry_count":  gorm.Expr("retry_count + 1"),
			"available_at": nextAt,
		}).Error
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.OutboxStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

func (r *OutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusFailed).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// Requeue 失败消息重置为待发送，重试次数清零
func (r *OutboxRepository) Requeue(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusFailed).
		Updates(map[string]interface{}{
			"status":       model.OutboxStatusPending,
			"retry_count":  0,
			"available_at": time.Now(),
		}).Error
}
