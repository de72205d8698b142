package persistence

import (
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	"github.com/ngoclaw/aichat/internal/infrastructure/persistence/models"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// dbError 把 gorm 错误翻译为领域错误
func dbError(op, notFound string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NewNotFoundError(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.NewAlreadyExistsError(op + ": duplicate key")
	default:
		return apperrors.NewPersistenceError(op, err)
	}
}

// ─── User ───

func userToModel(u *entity.User) *models.UserModel {
	s := u.Snapshot()
	return &models.UserModel{
		ID:           s.ID,
		Username:     s.Username,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		Preferences:  datatypes.NewJSONType(s.Preferences),
		Tier:         string(s.Subscription.Tier),
		ExpiresAt:    s.Subscription.ExpiresAt,
		MessagesUsed: s.Usage.Messages,
		ImagesUsed:   s.Usage.Images,
		CodeUsed:     s.Usage.Code,
		IsActive:     s.IsActive,
		LastActiveAt: s.LastActiveAt,
		LoginHistory: datatypes.NewJSONSlice(s.LoginHistory),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func userToEntity(m *models.UserModel) *entity.User {
	return entity.ReconstructUser(entity.UserState{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Preferences:  m.Preferences.Data(),
		Subscription: valueobject.Subscription{Tier: valueobject.Tier(m.Tier), ExpiresAt: m.ExpiresAt},
		Usage:        valueobject.Usage{Messages: m.MessagesUsed, Images: m.ImagesUsed, Code: m.CodeUsed},
		IsActive:     m.IsActive,
		LastActiveAt: m.LastActiveAt,
		LoginHistory: []valueobject.LoginRecord(m.LoginHistory),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	})
}

// ─── Conversation ───

func conversationToModel(c *entity.Conversation) *models.ConversationModel {
	s := c.Snapshot()
	shares := make([]models.ConversationShareModel, 0, len(s.SharedWith))
	for _, sh := range s.SharedWith {
		shares = append(shares, models.ConversationShareModel{
			ConversationID: s.ID,
			UserID:         sh.UserID,
			Permission:     string(sh.Permission),
			SharedAt:       sh.SharedAt,
		})
	}
	return &models.ConversationModel{
		ID:                   s.ID,
		UserID:               s.UserID,
		Title:                s.Title,
		LastMessage:          s.LastMessage,
		MessageCount:         s.MessageCount,
		IsArchived:           s.IsArchived,
		IsPinned:             s.IsPinned,
		Tags:                 datatypes.NewJSONSlice(s.Tags),
		Settings:             datatypes.NewJSONType(s.Settings),
		Analytics:            datatypes.NewJSONType(s.Analytics),
		PendingTurnMessageID: s.PendingTurnMessageID,
		Shares:               shares,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func conversationToEntity(m *models.ConversationModel) *entity.Conversation {
	shares := make([]valueobject.Share, 0, len(m.Shares))
	for _, sh := range m.Shares {
		shares = append(shares, valueobject.Share{
			UserID:     sh.UserID,
			Permission: valueobject.Permission(sh.Permission),
			SharedAt:   sh.SharedAt,
		})
	}
	return entity.ReconstructConversation(entity.ConversationState{
		ID:                   m.ID,
		UserID:               m.UserID,
		Title:                m.Title,
		LastMessage:          m.LastMessage,
		MessageCount:         m.MessageCount,
		IsArchived:           m.IsArchived,
		IsPinned:             m.IsPinned,
		Tags:                 []string(m.Tags),
		SharedWith:           shares,
		Settings:             m.Settings.Data(),
		Analytics:            m.Analytics.Data(),
		PendingTurnMessageID: m.PendingTurnMessageID,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	})
}

// ─── Message ───

func messageToModel(msg *entity.Message) *models.MessageModel {
	s := msg.Snapshot()
	return &models.MessageModel{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		Sender:         string(s.Sender),
		SenderID:       s.SenderID,
		Content:        s.Content,
		MessageType:    string(s.Metadata.Type()),
		Status:         string(s.Status),
		Metadata:       datatypes.NewJSONType(s.Metadata),
		IsDeleted:      s.IsDeleted,
		DeletedBy:      s.DeletedBy,
		DeletedAt:      s.DeletedAt,
		EditHistory:    datatypes.NewJSONSlice(s.EditHistory),
		Reactions:      datatypes.NewJSONSlice(s.Reactions),
		Mentions:       datatypes.NewJSONSlice(s.Mentions),
		LinkPreviews:   datatypes.NewJSONSlice(s.LinkPreviews),
		Attachments:    datatypes.NewJSONSlice(s.Attachments),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func messageToEntity(m *models.MessageModel) *entity.Message {
	return entity.ReconstructMessage(entity.MessageState{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         valueobject.Sender(m.Sender),
		SenderID:       m.SenderID,
		Content:        m.Content,
		Metadata:       m.Metadata.Data(),
		Status:         valueobject.MessageStatus(m.Status),
		IsDeleted:      m.IsDeleted,
		DeletedBy:      m.DeletedBy,
		DeletedAt:      m.DeletedAt,
		EditHistory:    []valueobject.EditRecord(m.EditHistory),
		Reactions:      []valueobject.Reaction(m.Reactions),
		Mentions:       []valueobject.Mention(m.Mentions),
		LinkPreviews:   []valueobject.LinkPreview(m.LinkPreviews),
		Attachments:    []valueobject.Attachment(m.Attachments),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	})
}
