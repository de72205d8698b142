package repository

import "context"

// Repositories 绑定到同一事务的仓储集合
type Repositories struct {
	Users         UserRepository
	Conversations ConversationRepository
	Messages      MessageRepository
}

// Transactor 事务执行器，fn 返回错误时回滚
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
