package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// MessageService applies user mutations to single messages.
//
// Every operation needs read access to the message's conversation. On top of that:
// mention needs write, edit needs authorship plus write, and soft delete or
// restore need authorship or conversation ownership.
type MessageService struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	tx            repository.Transactor
	now           func() time.Time
	logger        *zap.Logger
}

// NewMessageService creates the service.
func NewMessageService(repos repository.Repositories, tx repository.Transactor, logger *zap.Logger) *MessageService {
	return &MessageService{
		users:         repos.Users,
		conversations: repos.Conversations,
		messages:      repos.Messages,
		tx:            tx,
		now:           time.Now,
		logger:        logger.With(zap.String("component", "messages")),
	}
}

// Get returns a message the user can read.
func (s *MessageService) Get(ctx context.Context, userID, id string) (*entity.Message, error) {
	msg, _, err := s.load(ctx, userID, id, valueobject.PermissionRead)
	return msg, err
}

// Edit replaces the content of the user's own message.
func (s *MessageService) Edit(ctx context.Context, userID, id, content string) (*entity.Message, error) {
	msg, _, err := s.load(ctx, userID, id, valueobject.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if !msg.IsAuthor(userID) {
		return nil, entity.ErrAccessDenied
	}
	if err := msg.Edit(content, s.now()); err != nil {
		return nil, err
	}
	return msg, s.messages.Save(ctx, msg)
}

// Delete soft-deletes the message and decrements the conversation count.
func (s *MessageService) Delete(ctx context.Context, userID, id string) (*entity.Message, error) {
	msg, conv, err := s.loadForModeration(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := msg.SoftDelete(userID, now); err != nil {
		return nil, err
	}
	conv.ForgetMessage(msg.Content(), now)
	return msg, s.saveBoth(ctx, msg, conv)
}

// Restore brings a soft-deleted message back.
func (s *MessageService) Restore(ctx context.Context, userID, id string) (*entity.Message, error) {
	msg, conv, err := s.loadForModeration(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := msg.Restore(now); err != nil {
		return nil, err
	}
	conv.RestoreMessage(msg.Content(), now)
	return msg, s.saveBoth(ctx, msg, conv)
}

// React sets the user's reaction, replacing any earlier one.
func (s *MessageService) React(ctx context.Context, userID, id, emoji string) (*entity.Message, error) {
	msg, _, err := s.load(ctx, userID, id, valueobject.PermissionRead)
	if err != nil {
		return nil, err
	}
	if err := msg.React(userID, emoji, s.now()); err != nil {
		return nil, err
	}
	return msg, s.messages.Save(ctx, msg)
}

// Unreact removes the user's reaction if present.
func (s *MessageService) Unreact(ctx context.Context, userID, id string) (*entity.Message, error) {
	msg, _, err := s.load(ctx, userID, id, valueobject.PermissionRead)
	if err != nil {
		return nil, err
	}
	msg.Unreact(userID, s.now())
	return msg, s.messages.Save(ctx, msg)
}

// Mention records a mention of targetID on the message.
func (s *MessageService) Mention(ctx context.Context, userID, id, targetID string) (*entity.Message, error) {
	msg, _, err := s.load(ctx, userID, id, valueobject.PermissionWrite)
	if err != nil {
		return nil, err
	}
	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := msg.Mention(target.ID(), target.Username(), s.now()); err != nil {
		return nil, err
	}
	return msg, s.messages.Save(ctx, msg)
}

func (s *MessageService) load(ctx context.Context, userID, id string, perm valueobject.Permission) (*entity.Message, *entity.Conversation, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.conversations.FindByID(ctx, msg.ConversationID())
	if err != nil {
		return nil, nil, err
	}
	if err := conv.Require(userID, valueobject.PermissionRead); err != nil {
		return nil, nil, err
	}
	if err := conv.Require(userID, perm); err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (s *MessageService) loadForModeration(ctx context.Context, userID, id string) (*entity.Message, *entity.Conversation, error) {
	msg, conv, err := s.load(ctx, userID, id, valueobject.PermissionRead)
	if err != nil {
		return nil, nil, err
	}
	if !msg.IsAuthor(userID) && !conv.IsOwner(userID) {
		return nil, nil, entity.ErrAccessDenied
	}
	return msg, conv, nil
}

func (s *MessageService) saveBoth(ctx context.Context, msg *entity.Message, conv *entity.Conversation) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Messages.Save(ctx, msg); err != nil {
			return err
		}
		return repos.Conversations.Save(ctx, conv)
	})
}
