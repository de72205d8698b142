package entity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

const (
	// MaxContentRunes 消息内容上限
	MaxContentRunes = 10000
	// DeletedPlaceholder 软删除消息的展示内容
	DeletedPlaceholder = "This message was deleted"
)

// Message 消息实体
type Message struct {
	id             string
	conversationID string
	sender         valueobject.Sender
	senderID       string
	content        string
	metadata       valueobject.Metadata
	status         valueobject.MessageStatus
	isDeleted      bool
	deletedBy      string
	deletedAt      *time.Time
	editHistory    []valueobject.EditRecord
	reactions      []valueobject.Reaction
	mentions       []valueobject.Mention
	linkPreviews   []valueobject.LinkPreview
	attachments    []valueobject.Attachment
	createdAt      time.Time
	updatedAt      time.Time
}

// MessageState 消息持久化快照
type MessageState struct {
	ID             string
	ConversationID string
	Sender         valueobject.Sender
	SenderID       string
	Content        string
	Metadata       valueobject.Metadata
	Status         valueobject.MessageStatus
	IsDeleted      bool
	DeletedBy      string
	DeletedAt      *time.Time
	EditHistory    []valueobject.EditRecord
	Reactions      []valueobject.Reaction
	Mentions       []valueobject.Mention
	LinkPreviews   []valueobject.LinkPreview
	Attachments    []valueobject.Attachment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMessage 创建新消息（工厂方法）
func NewMessage(
	id string,
	conversationID string,
	sender valueobject.Sender,
	senderID string,
	content string,
	msgType valueobject.MessageType,
	metadata valueobject.Metadata,
	now time.Time,
) (*Message, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	if sender == valueobject.SenderUser && senderID == "" {
		return nil, ErrMissingSenderID
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	if metadata.Detail == nil {
		detail, err := valueobject.DetailFor(msgType)
		if err != nil {
			return nil, ErrMetadataMismatch
		}
		metadata.Detail = detail
	}
	if metadata.Type() != msgType {
		return nil, ErrMetadataMismatch
	}
	if sender == valueobject.SenderAI {
		senderID = ""
	}

	return &Message{
		id:             id,
		conversationID: conversationID,
		sender:         sender,
		senderID:       senderID,
		content:        content,
		metadata:       metadata,
		status:         valueobject.StatusSent,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// ValidateContent 校验内容长度 1..10000
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return ErrContentTooLong
	}
	return nil
}

// ReconstructMessage 重建消息（用于从持久化层恢复）
func ReconstructMessage(s MessageState) *Message {
	return &Message{
		id:             s.ID,
		conversationID: s.ConversationID,
		sender:         s.Sender,
		senderID:       s.SenderID,
		content:        s.Content,
		metadata:       s.Metadata,
		status:         s.Status,
		isDeleted:      s.IsDeleted,
		deletedBy:      s.DeletedBy,
		deletedAt:      s.DeletedAt,
		editHistory:    append([]valueobject.EditRecord(nil), s.EditHistory...),
		reactions:      append([]valueobject.Reaction(nil), s.Reactions...),
		mentions:       append([]valueobject.Mention(nil), s.Mentions...),
		linkPreviews:   append([]valueobject.LinkPreview(nil), s.LinkPreviews...),
		attachments:    append([]valueobject.Attachment(nil), s.Attachments...),
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}
}

// Snapshot 导出持久化快照
func (m *Message) Snapshot() MessageState {
	return MessageState{
		ID:             m.id,
		ConversationID: m.conversationID,
		Sender:         m.sender,
		SenderID:       m.senderID,
		Content:        m.content,
		Metadata:       m.metadata,
		Status:         m.status,
		IsDeleted:      m.isDeleted,
		DeletedBy:      m.deletedBy,
		DeletedAt:      m.deletedAt,
		EditHistory:    m.EditHistory(),
		Reactions:      m.Reactions(),
		Mentions:       m.Mentions(),
		LinkPreviews:   m.LinkPreviews(),
		Attachments:    m.Attachments(),
		CreatedAt:      m.createdAt,
		UpdatedAt:      m.updatedAt,
	}
}

func (m *Message) ID() string                        { return m.id }
func (m *Message) ConversationID() string            { return m.conversationID }
func (m *Message) Sender() valueobject.Sender        { return m.sender }
func (m *Message) SenderID() string                  { return m.senderID }
func (m *Message) Content() string                   { return m.content }
func (m *Message) Metadata() valueobject.Metadata    { return m.metadata }
func (m *Message) Type() valueobject.MessageType     { return m.metadata.Type() }
func (m *Message) Status() valueobject.MessageStatus { return m.status }
func (m *Message) IsDeleted() bool                   { return m.isDeleted }
func (m *Message) DeletedBy() string                 { return m.deletedBy }
func (m *Message) DeletedAt() *time.Time             { return m.deletedAt }
func (m *Message) CreatedAt() time.Time              { return m.createdAt }
func (m *Message) UpdatedAt() time.Time              { return m.updatedAt }
func (m *Message) IsFromUser() bool                  { return m.sender == valueobject.SenderUser }
func (m *Message) IsFromAI() bool                    { return m.sender == valueobject.SenderAI }

func (m *Message) EditHistory() []valueobject.EditRecord {
	return append([]valueobject.EditRecord(nil), m.editHistory...)
}

func (m *Message) Reactions() []valueobject.Reaction {
	return append([]valueobject.Reaction(nil), m.reactions...)
}

func (m *Message) Mentions() []valueobject.Mention {
	return append([]valueobject.Mention(nil), m.mentions...)
}

func (m *Message) LinkPreviews() []valueobject.LinkPreview {
	return append([]valueobject.LinkPreview(nil), m.linkPreviews...)
}

func (m *Message) Attachments() []valueobject.Attachment {
	return append([]valueobject.Attachment(nil), m.attachments...)
}

// DisplayContent 读路径展示的内容，软删除后为占位文本
func (m *Message) DisplayContent() string {
	if m.isDeleted {
		return DeletedPlaceholder
	}
	return m.content
}

// IsAuthor 判断是否为作者
func (m *Message) IsAuthor(userID string) bool {
	return m.sender == valueobject.SenderUser && userID != "" && m.senderID == userID
}

// SoftDelete 软删除，保留原内容
func (m *Message) SoftDelete(by string, at time.Time) error {
	if m.isDeleted {
		return ErrMessageDeleted
	}
	m.isDeleted = true
	m.deletedBy = by
	m.deletedAt = &at
	m.updatedAt = at
	return nil
}

// Restore 恢复软删除的消息
func (m *Message) Restore(at time.Time) error {
	if !m.isDeleted {
		return ErrMessageNotDeleted
	}
	m.isDeleted = false
	m.deletedBy = ""
	m.deletedAt = nil
	m.updatedAt = at
	return nil
}

// Edit 修改内容，旧内容追加到编辑历史
func (m *Message) Edit(newContent string, at time.Time) error {
	if m.isDeleted {
		return ErrMessageDeleted
	}
	if m.sender == valueobject.SenderAI {
		return ErrEditAIMessage
	}
	if err := ValidateContent(newContent); err != nil {
		return err
	}
	m.editHistory = append(m.editHistory, valueobject.EditRecord{Content: m.content, EditedAt: at})
	m.content = newContent
	m.updatedAt = at
	return nil
}

// React 添加回应，同一用户只保留最新的一个
func (m *Message) React(userID, emoji string, at time.Time) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ErrInvalidEmoji
	}
	m.removeReaction(userID)
	m.reactions = append(m.reactions, valueobject.Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
	m.updatedAt = at
	return nil
}

// Unreact 移除用户的回应
func (m *Message) Unreact(userID string, at time.Time) {
	if m.removeReaction(userID) {
		m.updatedAt = at
	}
}

func (m *Message) removeReaction(userID string) bool {
	for i, r := range m.reactions {
		if r.UserID == userID {
			m.reactions = append(m.reactions[:i:i], m.reactions[i+1:]...)
			return true
		}
	}
	return false
}

// Mention 提及用户，幂等
func (m *Message) Mention(userID, username string, at time.Time) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	for _, mn := range m.mentions {
		if mn.UserID == userID {
			return nil
		}
	}
	m.mentions = append(m.mentions, valueobject.Mention{UserID: userID, Username: username})
	m.updatedAt = at
	return nil
}

// AddLinkPreview 添加链接预览，同一 URL 只保留一个
func (m *Message) AddLinkPreview(p valueobject.LinkPreview) {
	for _, existing := range m.linkPreviews {
		if existing.URL == p.URL {
			return
		}
	}
	m.linkPreviews = append(m.linkPreviews, p)
}

// AddAttachment 添加附件
func (m *Message) AddAttachment(a valueobject.Attachment) {
	m.attachments = append(m.attachments, a)
}

// AttachVoice 语音回合附加音频信息，消息类型变为 voice
func (m *Message) AttachVoice(audioURL string, durationSeconds float64, transcript string) {
	m.metadata.Detail = valueobject.VoiceDetail{
		AudioURL:        audioURL,
		DurationSeconds: durationSeconds,
		Transcript:      transcript,
	}
}

func (m *Message) MarkDelivered(at time.Time) { m.setStatus(valueobject.StatusDelivered, at) }
func (m *Message) MarkRead(at time.Time)      { m.setStatus(valueobject.StatusRead, at) }
func (m *Message) MarkFailed(at time.Time)    { m.setStatus(valueobject.StatusFailed, at) }

func (m *Message) setStatus(s valueobject.MessageStatus, at time.Time) {
	m.status = s
	m.updatedAt = at
}
