package repository

import (
	"context"

	"github.com/ngoclaw/aichat/internal/domain/entity"
)

// ConversationQuery 会话列表条件
type ConversationQuery struct {
	Archived *bool
	Limit    int
	Offset   int
}

// ConversationRepository 会话仓储接口
type ConversationRepository interface {
	// Save 保存会话（创建或更新），分享列表整体替换
	Save(ctx context.Context, conversation *entity.Conversation) error

	// FindByID 根据ID查找会话
	FindByID(ctx context.Context, id string) (*entity.Conversation, error)

	// ListForUser 列出用户拥有或被分享的会话，置顶优先，其次按更新时间倒序
	ListForUser(ctx context.Context, userID string, q ConversationQuery) ([]*entity.Conversation, error)

	// FindWithPendingTurn 查找存在未完成回合的会话
	FindWithPendingTurn(ctx context.Context) ([]*entity.Conversation, error)

	// ClaimPendingTurn 仅当标记仍指向 messageID 时清除它，返回是否由本次调用清除
	ClaimPendingTurn(ctx context.Context, conversationID, messageID string) (bool, error)

	// Delete 物理删除会话
	Delete(ctx context.Context, id string) error
}
