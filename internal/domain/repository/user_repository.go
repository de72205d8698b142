package repository

import (
	"context"

	"github.com/ngoclaw/aichat/internal/domain/entity"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 创建用户，用户名或邮箱重复时返回 ALREADY_EXISTS
	Create(ctx context.Context, user *entity.User) error

	// Update 更新用户
	Update(ctx context.Context, user *entity.User) error

	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
}
