package valueobject

import (
	"fmt"
	"time"
)

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeCode   MessageType = "code"
	MessageTypeVoice  MessageType = "voice"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ParseMessageType 解析消息类型，空字符串视为 text
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case "":
		return MessageTypeText, nil
	case MessageTypeText, MessageTypeImage, MessageTypeCode, MessageTypeVoice, MessageTypeFile, MessageTypeSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// Sender 消息发送方
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// MessageStatus 消息投递状态
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// EditRecord 编辑历史条目
type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"editedAt"`
}

// Reaction 表情回应
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Mention 提及
type Mention struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LinkPreview 链接预览
type LinkPreview struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Attachment 附件
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}
