package entity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

const (
	// DefaultConversationTitle 空首条消息时的标题
	DefaultConversationTitle = "New Conversation"

	titleRunes       = 50
	lastMessageRunes = 100
	maxTitleRunes    = 200
)

// Conversation 会话实体
type Conversation struct {
	id                   string
	userID               string
	title                string
	lastMessage          string
	messageCount         int
	isArchived           bool
	isPinned             bool
	tags                 []string
	sharedWith           []valueobject.Share
	settings             valueobject.ConversationSettings
	analytics            valueobject.ConversationAnalytics
	pendingTurnMessageID string
	createdAt            time.Time
	updatedAt            time.Time
}

// ConversationState 会话持久化快照
type ConversationState struct {
	ID                   string
	UserID               string
	Title                string
	LastMessage          string
	MessageCount         int
	IsArchived           bool
	IsPinned             bool
	Tags                 []string
	SharedWith           []valueobject.Share
	Settings             valueobject.ConversationSettings
	Analytics            valueobject.ConversationAnalytics
	PendingTurnMessageID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewConversation 创建会话，标题取首条消息前 50 个字符
func NewConversation(id, userID, firstMessage string, now time.Time) (*Conversation, error) {
	if id == "" {
		return nil, ErrInvalidConversationID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return &Conversation{
		id:        id,
		userID:    userID,
		title:     TitleFromMessage(firstMessage),
		settings:  valueobject.DefaultConversationSettings(),
		createdAt: now,
		updatedAt: now,
	}, nil
}

// TitleFromMessage 从首条消息生成标题
func TitleFromMessage(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultConversationTitle
	}
	return truncateRunes(text, titleRunes, "...")
}

func truncateRunes(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + suffix
}

// ReconstructConversation 从持久化层恢复
func ReconstructConversation(s ConversationState) *Conversation {
	return &Conversation{
		id:                   s.ID,
		userID:               s.UserID,
		title:                s.Title,
		lastMessage:          s.LastMessage,
		messageCount:         s.MessageCount,
		isArchived:           s.IsArchived,
		isPinned:             s.IsPinned,
		tags:                 append([]string(nil), s.Tags...),
		sharedWith:           append([]valueobject.Share(nil), s.SharedWith...),
		settings:             s.Settings,
		analytics:            s.Analytics,
		pendingTurnMessageID: s.PendingTurnMessageID,
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
	}
}

// Snapshot 导出持久化快照
func (c *Conversation) Snapshot() ConversationState {
	return ConversationState{
		ID:                   c.id,
		UserID:               c.userID,
		Title:                c.title,
		LastMessage:          c.lastMessage,
		MessageCount:         c.messageCount,
		IsArchived:           c.isArchived,
		IsPinned:             c.isPinned,
		Tags:                 c.Tags(),
		SharedWith:           c.SharedWith(),
		Settings:             c.settings,
		Analytics:            c.analytics,
		PendingTurnMessageID: c.pendingTurnMessageID,
		CreatedAt:            c.createdAt,
		UpdatedAt:            c.updatedAt,
	}
}

func (c *Conversation) ID() string                                   { return c.id }
func (c *Conversation) UserID() string                               { return c.userID }
func (c *Conversation) Title() string                                { return c.title }
func (c *Conversation) LastMessage() string                          { return c.lastMessage }
func (c *Conversation) MessageCount() int                            { return c.messageCount }
func (c *Conversation) IsArchived() bool                             { return c.isArchived }
func (c *Conversation) IsPinned() bool                               { return c.isPinned }
func (c *Conversation) Settings() valueobject.ConversationSettings   { return c.settings }
func (c *Conversation) Analytics() valueobject.ConversationAnalytics { return c.analytics }
func (c *Conversation) PendingTurnMessageID() string                 { return c.pendingTurnMessageID }
func (c *Conversation) CreatedAt() time.Time                         { return c.createdAt }
func (c *Conversation) UpdatedAt() time.Time                         { return c.updatedAt }

// Tags 返回标签副本
func (c *Conversation) Tags() []string {
	return append([]string(nil), c.tags...)
}

// SharedWith 返回分享列表副本
func (c *Conversation) SharedWith() []valueobject.Share {
	return append([]valueobject.Share(nil), c.sharedWith...)
}

// Rename 重命名
func (c *Conversation) Rename(title string, at time.Time) error {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleRunes {
		return ErrInvalidTitle
	}
	c.title = title
	c.updatedAt = at
	return nil
}

// Archive 归档
func (c *Conversation) Archive(at time.Time) {
	c.isArchived = true
	c.updatedAt = at
}

// Unarchive 取消归档
func (c *Conversation) Unarchive(at time.Time) {
	c.isArchived = false
	c.updatedAt = at
}

// Pin 置顶
func (c *Conversation) Pin(at time.Time) {
	c.isPinned = true
	c.updatedAt = at
}

// Unpin 取消置顶
func (c *Conversation) Unpin(at time.Time) {
	c.isPinned = false
	c.updatedAt = at
}

// AddTag 添加标签，重复标签忽略
func (c *Conversation) AddTag(tag string, at time.Time) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrInvalidTag
	}
	for _, t := range c.tags {
		if t == tag {
			return nil
		}
	}
	c.tags = append(c.tags, tag)
	c.updatedAt = at
	return nil
}

// RemoveTag 移除标签
func (c *Conversation) RemoveTag(tag string, at time.Time) {
	tag = strings.TrimSpace(tag)
	for i, t := range c.tags {
		if t == tag {
			c.tags = append(c.tags[:i:i], c.tags[i+1:]...)
			c.updatedAt = at
			return
		}
	}
}

// SetTags 整体替换标签集合
func (c *Conversation) SetTags(tags []string, at time.Time) error {
	prev := c.tags
	c.tags = nil
	for _, t := range tags {
		if err := c.AddTag(t, at); err != nil {
			c.tags = prev
			return err
		}
	}
	c.updatedAt = at
	return nil
}

// Share 分享给其他用户，同一用户再次分享会替换原条目
func (c *Conversation) Share(userID string, perm valueobject.Permission, at time.Time) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if userID == c.userID {
		return ErrShareWithOwner
	}
	if _, err := valueobject.ParseSharePermission(string(perm)); err != nil {
		return apperrors.NewInvalidInputErrorWithCause("invalid permission", err)
	}
	entry := valueobject.Share{UserID: userID, Permission: perm, SharedAt: at}
	for i, s := range c.sharedWith {
		if s.UserID == userID {
			c.sharedWith[i] = entry
			c.updatedAt = at
			return nil
		}
	}
	c.sharedWith = append(c.sharedWith, entry)
	c.updatedAt = at
	return nil
}

// Unshare 取消分享
func (c *Conversation) Unshare(userID string, at time.Time) {
	for i, s := range c.sharedWith {
		if s.UserID == userID {
			c.sharedWith = append(c.sharedWith[:i:i], c.sharedWith[i+1:]...)
			c.updatedAt = at
			return
		}
	}
}

// AccessFor 返回用户对会话的权限
func (c *Conversation) AccessFor(userID string) valueobject.Permission {
	if userID == "" {
		return valueobject.PermissionNone
	}
	if userID == c.userID {
		return valueobject.PermissionOwner
	}
	for _, s := range c.sharedWith {
		if s.UserID == userID {
			return s.Permission
		}
	}
	return valueobject.PermissionNone
}

// IsOwner 判断是否为所有者
func (c *Conversation) IsOwner(userID string) bool { return userID != "" && userID == c.userID }

// CanRead 判断是否可读
func (c *Conversation) CanRead(userID string) bool {
	return c.AccessFor(userID).Includes(valueobject.PermissionRead)
}

// CanWrite 判断是否可写
func (c *Conversation) CanWrite(userID string) bool {
	return c.AccessFor(userID).Includes(valueobject.PermissionWrite)
}

// Require 权限不足时返回 AccessDenied
func (c *Conversation) Require(userID string, perm valueobject.Permission) error {
	if !c.AccessFor(userID).Includes(perm) {
		return ErrAccessDenied
	}
	return nil
}

// RecordMessage 新消息持久化后调用
func (c *Conversation) RecordMessage(text string, at time.Time) {
	c.lastMessage = truncateRunes(text, lastMessageRunes, "")
	c.messageCount++
	c.updatedAt = at
}

// ForgetMessage 消息被软删除后调用；若 lastMessage 缓存的正是该内容则替换为占位符
func (c *Conversation) ForgetMessage(content string, at time.Time) {
	if c.messageCount > 0 {
		c.messageCount--
	}
	if c.lastMessage != "" && c.lastMessage == truncateRunes(content, lastMessageRunes, "") {
		c.lastMessage = DeletedPlaceholder
	}
	c.updatedAt = at
}

// RestoreMessage 消息被恢复后调用
func (c *Conversation) RestoreMessage(content string, at time.Time) {
	c.messageCount++
	if c.lastMessage == DeletedPlaceholder {
		c.lastMessage = truncateRunes(content, lastMessageRunes, "")
	}
	c.updatedAt = at
}

// RecordResponse 记录一次 AI 回复的统计
func (c *Conversation) RecordResponse(tokens int, responseTimeMs int64) {
	c.analytics = c.analytics.Record(tokens, responseTimeMs)
}

// UpdateSettings 更新会话 AI 设置
func (c *Conversation) UpdateSettings(s valueobject.ConversationSettings, at time.Time) error {
	if err := s.Validate(); err != nil {
		return apperrors.NewInvalidInputErrorWithCause("invalid settings", err)
	}
	c.settings = s
	c.updatedAt = at
	return nil
}

// MarkPendingTurn 标记未完成的回合
func (c *Conversation) MarkPendingTurn(messageID string) { c.pendingTurnMessageID = messageID }

// ClearPendingTurn 清除回合标记
func (c *Conversation) ClearPendingTurn() { c.pendingTurnMessageID = "" }

// HasPendingTurn 是否有未完成的回合
func (c *Conversation) HasPendingTurn() bool { return c.pendingTurnMessageID != "" }
