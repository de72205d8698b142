package usecase

import (
	"time"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// UserView is the JSON shape of a user. The password hash never leaves the service.
type UserView struct {
	ID           string                        `json:"id"`
	Username     string                        `json:"username"`
	Email        string                        `json:"email"`
	Preferences  valueobject.Preferences       `json:"preferences"`
	Subscription valueobject.Subscription      `json:"subscription"`
	Usage        valueobject.Usage             `json:"usage"`
	Remaining    map[valueobject.UsageKind]int `json:"remaining"`
	IsActive     bool                          `json:"isActive"`
	LastActiveAt time.Time                     `json:"lastActiveAt"`
	LoginHistory []valueobject.LoginRecord     `json:"loginHistory,omitempty"`
	CreatedAt    time.Time                     `json:"createdAt"`
}

// NewUserView renders u, computing remaining quota at now.
func NewUserView(u *entity.User, now time.Time) UserView {
	remaining := make(map[valueobject.UsageKind]int, 3)
	for _, kind := range []valueobject.UsageKind{valueobject.UsageMessages, valueobject.UsageImages, valueobject.UsageCode} {
		remaining[kind] = u.Remaining(kind, now)
	}
	return UserView{
		ID:           u.ID(),
		Username:     u.Username(),
		Email:        u.Email(),
		Preferences:  u.Preferences(),
		Subscription: u.Subscription(),
		Usage:        u.Usage(),
		Remaining:    remaining,
		IsActive:     u.IsActive(),
		LastActiveAt: u.LastActiveAt(),
		LoginHistory: u.LoginHistory(),
		CreatedAt:    u.CreatedAt(),
	}
}

// ConversationView is the JSON shape of a conversation.
type ConversationView struct {
	ID           string                            `json:"id"`
	UserID       string                            `json:"userId"`
	Title        string                            `json:"title"`
	LastMessage  string                            `json:"lastMessage"`
	MessageCount int                               `json:"messageCount"`
	IsArchived   bool                              `json:"isArchived"`
	IsPinned     bool                              `json:"isPinned"`
	Tags         []string                          `json:"tags"`
	SharedWith   []valueobject.Share               `json:"sharedWith"`
	Settings     valueobject.ConversationSettings  `json:"settings"`
	Analytics    valueobject.ConversationAnalytics `json:"analytics"`
	CreatedAt    time.Time                         `json:"createdAt"`
	UpdatedAt    time.Time                         `json:"updatedAt"`
}

// NewConversationView renders c.
func NewConversationView(c *entity.Conversation) ConversationView {
	tags := c.Tags()
	if tags == nil {
		tags = []string{}
	}
	shares := c.SharedWith()
	if shares == nil {
		shares = []valueobject.Share{}
	}
	return ConversationView{
		ID:           c.ID(),
		UserID:       c.UserID(),
		Title:        c.Title(),
		LastMessage:  c.LastMessage(),
		MessageCount: c.MessageCount(),
		IsArchived:   c.IsArchived(),
		IsPinned:     c.IsPinned(),
		Tags:         tags,
		SharedWith:   shares,
		Settings:     c.Settings(),
		Analytics:    c.Analytics(),
		CreatedAt:    c.CreatedAt(),
		UpdatedAt:    c.UpdatedAt(),
	}
}

// MessageView is the JSON shape of a message. Deleted messages show the
// placeholder instead of their content and hide their edit history.
type MessageView struct {
	ID             string                    `json:"id"`
	ConversationID string                    `json:"conversationId"`
	Sender         valueobject.Sender        `json:"sender"`
	SenderID       string                    `json:"senderId,omitempty"`
	Content        string                    `json:"content"`
	Type           valueobject.MessageType   `json:"type"`
	Metadata       valueobject.Metadata      `json:"metadata"`
	Status         valueobject.MessageStatus `json:"status"`
	IsDeleted      bool                      `json:"isDeleted"`
	DeletedBy      string                    `json:"deletedBy,omitempty"`
	DeletedAt      *time.Time                `json:"deletedAt,omitempty"`
	EditHistory    []valueobject.EditRecord  `json:"editHistory,omitempty"`
	Reactions      []valueobject.Reaction    `json:"reactions,omitempty"`
	Mentions       []valueobject.Mention     `json:"mentions,omitempty"`
	LinkPreviews   []valueobject.LinkPreview `json:"linkPreviews,omitempty"`
	Attachments    []valueobject.Attachment  `json:"attachments,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// NewMessageView renders m.
func NewMessageView(m *entity.Message) MessageView {
	v := MessageView{
		ID:             m.ID(),
		ConversationID: m.ConversationID(),
		Sender:         m.Sender(),
		SenderID:       m.SenderID(),
		Content:        m.DisplayContent(),
		Type:           m.Type(),
		Metadata:       m.Metadata(),
		Status:         m.Status(),
		IsDeleted:      m.IsDeleted(),
		DeletedBy:      m.DeletedBy(),
		DeletedAt:      m.DeletedAt(),
		Reactions:      m.Reactions(),
		Mentions:       m.Mentions(),
		LinkPreviews:   m.LinkPreviews(),
		Attachments:    m.Attachments(),
		CreatedAt:      m.CreatedAt(),
		UpdatedAt:      m.UpdatedAt(),
	}
	if !m.IsDeleted() {
		v.EditHistory = m.EditHistory()
		return v
	}
	// 删除后只保留消息类型，元数据、预览和附件都可能带出原文
	detail, err := valueobject.DetailFor(m.Type())
	if err != nil {
		detail = valueobject.TextDetail{}
	}
	v.Metadata = valueobject.Metadata{Detail: detail}
	v.LinkPreviews = nil
	v.Attachments = nil
	return v
}

// NewMessageViews renders ms in order.
func NewMessageViews(ms []*entity.Message) []MessageView {
	out := make([]MessageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMessageView(m))
	}
	return out
}

// ExchangeView is the payload of message_response and voice_response events
// and of POST /chat.
type ExchangeView struct {
	ConversationID string           `json:"conversationId"`
	UserMessage    MessageView      `json:"userMessage"`
	AIMessage      MessageView      `json:"aiMessage"`
	Conversation   ConversationView `json:"conversation"`
}

// NewExchangeView renders r.
func NewExchangeView(r *ExchangeResult) ExchangeView {
	return ExchangeView{
		ConversationID: r.Conversation.ID(),
		UserMessage:    NewMessageView(r.UserMessage),
		AIMessage:      NewMessageView(r.AIMessage),
		Conversation:   NewConversationView(r.Conversation),
	}
}
