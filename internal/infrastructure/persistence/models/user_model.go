package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// UserModel 数据库用户模型
type UserModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Username     string `gorm:"uniqueIndex;size:50;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`

	Preferences datatypes.JSONType[valueobject.Preferences]

	Tier      string `gorm:"size:16;not null;default:free"`
	ExpiresAt *time.Time

	MessagesUsed int `gorm:"not null;default:0"`
	ImagesUsed   int `gorm:"not null;default:0"`
	CodeUsed     int `gorm:"not null;default:0"`

	IsActive     bool `gorm:"not null;default:true"`
	LastActiveAt time.Time
	LoginHistory datatypes.JSONSlice[valueobject.LoginRecord]

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}
