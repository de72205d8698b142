package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence/models"
)

// GormUserRepository GORM 实现的用户仓储
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GORM 用户仓储
func NewGormUserRepository(db *gorm.DB) repository.UserRepository {
	return &GormUserRepository{db: db}
}

// Create 创建用户
func (r *GormUserRepository) Create(ctx context.Context, user *entity.User) error {
	err := r.db.WithContext(ctx).Create(userToModel(user)).Error
	return dbError("failed to create user", "user not found", err)
}

// Update 更新用户
func (r *GormUserRepository) Update(ctx context.Context, user *entity.User) error {
	err := r.db.WithContext(ctx).Save(userToModel(user)).Error
	return dbError("failed to update user", "user not found", err)
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *GormUserRepository) findOne(ctx context.Context, query string, arg string) (*entity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		return nil, dbError("failed to find user", "user not found", err)
	}
	return userToEntity(&model), nil
}
