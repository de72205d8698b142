package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence/models"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// GormMessageRepository GORM 实现的消息仓储
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GORM 消息仓储
func NewGormMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &GormMessageRepository{db: db}
}

// Save 保存消息
func (r *GormMessageRepository) Save(ctx context.Context, message *entity.Message) error {
	// 使用 Save 支持创建或更新
	err := r.db.WithContext(ctx).Save(messageToModel(message)).Error
	return dbError("failed to save message", "message not found", err)
}

// FindByID 根据ID查找消息
func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*entity.Message, error) {
	var model models.MessageModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, dbError("failed to find message", "message not found", err)
	}
	return messageToEntity(&model), nil
}

// FindByConversationID 取最近的 Limit 条，再按时间升序返回
func (r *GormMessageRepository) FindByConversationID(ctx context.Context, conversationID string, q repository.MessageQuery) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if !q.IncludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}
	if q.Before != nil {
		query = query.Where("created_at < ?", *q.Before)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []models.MessageModel
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, apperrors.NewPersistenceError("failed to find messages", err)
	}

	messages := make([]*entity.Message, len(rows))
	for i := range rows {
		messages[len(rows)-1-i] = messageToEntity(&rows[i])
	}
	return messages, nil
}

// DeleteByConversationID 物理删除会话的全部消息
func (r *GormMessageRepository) DeleteByConversationID(ctx context.Context, conversationID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&models.MessageModel{})
	if result.Error != nil {
		return 0, apperrors.NewPersistenceError("failed to delete messages", result.Error)
	}
	return result.RowsAffected, nil
}

// Count 统计会话中未删除的消息数量
func (r *GormMessageRepository) Count(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MessageModel{}).
		Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewPersistenceError("failed to count messages", err)
	}
	return count, nil
}
