package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence/models"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// GormConversationRepository GORM 实现的会话仓储
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建 GORM 会话仓储
func NewGormConversationRepository(db *gorm.DB) repository.ConversationRepository {
	return &GormConversationRepository{db: db}
}

// Save 保存会话，分享表整体替换
func (r *GormConversationRepository) Save(ctx context.Context, conversation *entity.Conversation) error {
	model := conversationToModel(conversation)
	shares := model.Shares
	model.Shares = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(model).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", model.ID).Delete(&models.ConversationShareModel{}).Error; err != nil {
			return err
		}
		if len(shares) == 0 {
			return nil
		}
		return tx.Create(&shares).Error
	})
	return dbError("failed to save conversation", "conversation not found", err)
}

// FindByID 根据ID查找会话
func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	var model models.ConversationModel
	if err := r.db.WithContext(ctx).Preload("Shares").First(&model, "id = ?", id).Error; err != nil {
		return nil, dbError("failed to find conversation", "conversation not found", err)
	}
	return conversationToEntity(&model), nil
}

// ListForUser 列出用户拥有或被分享的会话
func (r *GormConversationRepository) ListForUser(ctx context.Context, userID string, q repository.ConversationQuery) ([]*entity.Conversation, error) {
	shared := r.db.Model(&models.ConversationShareModel{}).Select("conversation_id").Where("user_id = ?", userID)

	query := r.db.WithContext(ctx).
		Preload("Shares").
		Where(r.db.Where("user_id = ?", userID).Or("id IN (?)", shared))
	if q.Archived != nil {
		query = query.Where("is_archived = ?", *q.Archived)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var rows []models.ConversationModel
	if err := query.Order("is_pinned DESC").Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, apperrors.NewPersistenceError("failed to list conversations", err)
	}
	return toConversations(rows), nil
}

// FindWithPendingTurn 查找存在未完成回合的会话
func (r *GormConversationRepository) FindWithPendingTurn(ctx context.Context) ([]*entity.Conversation, error) {
	var rows []models.ConversationModel
	err := r.db.WithContext(ctx).
		Preload("Shares").
		Where("pending_turn_message_id <> ''").
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to find pending conversations", err)
	}
	return toConversations(rows), nil
}

// ClaimPendingTurn 条件更新清除未完成回合标记，多实例下只有一个能成功
func (r *GormConversationRepository) ClaimPendingTurn(ctx context.Context, conversationID, messageID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ConversationModel{}).
		Where("id = ? AND pending_turn_message_id = ?", conversationID, messageID).
		Update("pending_turn_message_id", "")
	if result.Error != nil {
		return false, apperrors.NewPersistenceError("failed to claim pending turn", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete 删除会话及其分享记录
func (r *GormConversationRepository) Delete(ctx context.Context, id string) error {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.ConversationShareModel{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.ConversationModel{}, "id = ?", id)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete conversation", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("conversation not found")
	}
	return nil
}

func toConversations(rows []models.ConversationModel) []*entity.Conversation {
	out := make([]*entity.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, conversationToEntity(&rows[i]))
	}
	return out
}
