package repository

import (
	"context"
	"time"

	"github.com/ngoclaw/aichat/internal/domain/entity"
)

// MessageQuery 消息查询条件
type MessageQuery struct {
	Limit          int
	Before         *time.Time
	IncludeDeleted bool
}

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Save 保存消息（创建或更新）
	Save(ctx context.Context, message *entity.Message) error

	// FindByID 根据ID查找消息，包括已软删除的
	FindByID(ctx context.Context, id string) (*entity.Message, error)

	// FindByConversationID 按时间升序返回会话中最近的 Limit 条消息
	FindByConversationID(ctx context.Context, conversationID string, q MessageQuery) ([]*entity.Message, error)

	// DeleteByConversationID 物理删除会话的全部消息
	DeleteByConversationID(ctx context.Context, conversationID string) (int64, error)

	// Count 统计会话中未删除的消息数量
	Count(ctx context.Context, conversationID string) (int64, error)
}
