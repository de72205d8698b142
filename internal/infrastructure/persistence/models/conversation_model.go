package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// ConversationModel 数据库会话模型
type ConversationModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	UserID       string `gorm:"index;size:64;not null"`
	Title        string `gorm:"size:200;not null"`
	LastMessage  string `gorm:"size:512"`
	MessageCount int    `gorm:"not null;default:0"`
	IsArchived   bool   `gorm:"index;not null;default:false"`
	IsPinned     bool   `gorm:"not null;default:false"`

	Tags      datatypes.JSONSlice[string]
	Settings  datatypes.JSONType[valueobject.ConversationSettings]
	Analytics datatypes.JSONType[valueobject.ConversationAnalytics]

	// 非空表示该会话有用户消息尚未得到 AI 回复
	PendingTurnMessageID string `gorm:"index;size:64"`

	Shares []ConversationShareModel `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index;autoUpdateTime:false"`
}

// TableName 指定表名
func (ConversationModel) TableName() string {
	return "conversations"
}

// ConversationShareModel 会话分享记录
type ConversationShareModel struct {
	ConversationID string `gorm:"primaryKey;size:64"`
	UserID         string `gorm:"primaryKey;size:64;index"`
	Permission     string `gorm:"size:16;not null"`
	SharedAt       time.Time
}

// TableName 指定表名
func (ConversationShareModel) TableName() string {
	return "conversation_shares"
}
