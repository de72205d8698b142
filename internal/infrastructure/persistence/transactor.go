package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/ngoclaw/aichat/internal/domain/repository"
)

// GormTransactor 在同一 gorm 事务中提供全部仓储
type GormTransactor struct {
	db *gorm.DB
}

// NewGormTransactor 创建事务执行器
func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// Repositories 返回不在事务中的仓储
func (t *GormTransactor) Repositories() repository.Repositories {
	return gormRepositories(t.db)
}

// WithinTx fn 返回错误时回滚
func (t *GormTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, gormRepositories(tx))
	})
}

func gormRepositories(db *gorm.DB) repository.Repositories {
	return repository.Repositories{
		Users:         NewGormUserRepository(db),
		Conversations: NewGormConversationRepository(db),
		Messages:      NewGormMessageRepository(db),
	}
}
