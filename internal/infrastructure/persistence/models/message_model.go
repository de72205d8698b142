package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// MessageModel 数据库消息模型
// 软删除由 IsDeleted 表达，不使用 gorm.DeletedAt，已删除消息仍需可读
type MessageModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	ConversationID string `gorm:"index:idx_messages_conv_created,priority:1;size:64;not null"`
	Sender         string `gorm:"size:8;not null"` // user, ai
	SenderID       string `gorm:"size:64"`
	Content        string `gorm:"type:text;not null"`
	MessageType    string `gorm:"size:16;not null"`
	Status         string `gorm:"size:16;not null"`

	Metadata datatypes.JSONType[valueobject.Metadata]

	IsDeleted bool   `gorm:"not null;default:false"`
	DeletedBy string `gorm:"size:64"`
	DeletedAt *time.Time

	EditHistory  datatypes.JSONSlice[valueobject.EditRecord]
	Reactions    datatypes.JSONSlice[valueobject.Reaction]
	Mentions     datatypes.JSONSlice[valueobject.Mention]
	LinkPreviews datatypes.JSONSlice[valueobject.LinkPreview]
	Attachments  datatypes.JSONSlice[valueobject.Attachment]

	CreatedAt time.Time `gorm:"index:idx_messages_conv_created,priority:2"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

// TableName 指定表名
func (MessageModel) TableName() string {
	return "messages"
}
