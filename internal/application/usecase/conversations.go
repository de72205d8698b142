package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

const (
	defaultHistoryPage = 50
	maxHistoryPage     = 200
)

// ConversationPatch lists the fields a PATCH may change. Nil means unchanged.
// Title and Settings need write access; the rest need ownership.
type ConversationPatch struct {
	Title    *string
	Settings *valueobject.ConversationSettings
	Archived *bool
	Pinned   *bool
	Tags     *[]string
}

func (p ConversationPatch) ownerOnly() bool {
	return p.Archived != nil || p.Pinned != nil || p.Tags != nil
}

// ConversationService manages conversations outside of turns.
type ConversationService struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	tx            repository.Transactor
	now           func() time.Time
	logger        *zap.Logger
}

// NewConversationService creates the service.
func NewConversationService(repos repository.Repositories, tx repository.Transactor, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		users:         repos.Users,
		conversations: repos.Conversations,
		messages:      repos.Messages,
		tx:            tx,
		now:           time.Now,
		logger:        logger.With(zap.String("component", "conversations")),
	}
}

// Create starts an empty conversation. An empty title gives the default one.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*entity.Conversation, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, entity.ErrUserInactive
	}
	now := s.now()
	conv, err := entity.NewConversation(uuid.NewString(), userID, "", now)
	if err != nil {
		return nil, err
	}
	if title != "" {
		if err := conv.Rename(title, now); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get returns the conversation if userID can read it.
func (s *ConversationService) Get(ctx context.Context, userID, id string) (*entity.Conversation, error) {
	return s.load(ctx, userID, id, valueobject.PermissionRead)
}

// List returns conversations owned by or shared with userID.
func (s *ConversationService) List(ctx context.Context, userID string, q repository.ConversationQuery) ([]*entity.Conversation, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.conversations.ListForUser(ctx, userID, q)
}

// Update applies patch. Permissions are checked before anything changes.
func (s *ConversationService) Update(ctx context.Context, userID, id string, patch ConversationPatch) (*entity.Conversation, error) {
	required := valueobject.PermissionWrite
	if patch.ownerOnly() {
		required = valueobject.PermissionOwner
	}
	conv, err := s.load(ctx, userID, id, required)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if patch.Title != nil {
		if err := conv.Rename(*patch.Title, now); err != nil {
			return nil, err
		}
	}
	if patch.Settings != nil {
		if err := conv.UpdateSettings(*patch.Settings, now); err != nil {
			return nil, err
		}
	}
	if patch.Archived != nil {
		if *patch.Archived {
			conv.Archive(now)
		} else {
			conv.Unarchive(now)
		}
	}
	if patch.Pinned != nil {
		if *patch.Pinned {
			conv.Pin(now)
		} else {
			conv.Unpin(now)
		}
	}
	if patch.Tags != nil {
		if err := conv.SetTags(*patch.Tags, now); err != nil {
			return nil, err
		}
	}

	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete removes the conversation and all of its messages. Owner only.
func (s *ConversationService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.load(ctx, userID, id, valueobject.PermissionOwner); err != nil {
		return err
	}
	var removed int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		n, err := repos.Messages.DeleteByConversationID(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		return repos.Conversations.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Conversation deleted",
		zap.String("conversation_id", id),
		zap.Int64("messages", removed),
	)
	return nil
}

// History returns messages oldest first. Deleted messages are included and
// render as a placeholder. Fetching marks other senders' messages read.
func (s *ConversationService) History(ctx context.Context, userID, id string, limit int, before *time.Time) ([]*entity.Message, error) {
	if _, err := s.load(ctx, userID, id, valueobject.PermissionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	msgs, err := s.messages.FindByConversationID(ctx, id, repository.MessageQuery{
		Limit:          limit,
		Before:         before,
		IncludeDeleted: true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.markRead(ctx, userID, msgs); err != nil {
		s.logger.Warn("Failed to mark messages read", zap.String("conversation_id", id), zap.Error(err))
	}
	return msgs, nil
}

func (s *ConversationService) markRead(ctx context.Context, readerID string, msgs []*entity.Message) error {
	var unread []*entity.Message
	for _, m := range msgs {
		switch {
		case m.IsDeleted(), m.IsAuthor(readerID):
			continue
		case m.Status() == valueobject.StatusSent, m.Status() == valueobject.StatusDelivered:
			unread = append(unread, m)
		}
	}
	if len(unread) == 0 {
		return nil
	}
	now := s.now()
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, m := range unread {
			m.MarkRead(now)
			if err := repos.Messages.Save(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// Share grants targetID access. The actor must be owner or admin, and only
// the owner may hand out admin or change an existing admin's access.
func (s *ConversationService) Share(ctx context.Context, actorID, id, targetID string, perm valueobject.Permission) (*entity.Conversation, error) {
	conv, err := s.load(ctx, actorID, id, valueobject.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(actorID) && (perm == valueobject.PermissionAdmin || conv.AccessFor(targetID) == valueobject.PermissionAdmin) {
		return nil, entity.ErrAccessDenied
	}
	if _, err := s.users.FindByID(ctx, targetID); err != nil {
		return nil, err
	}
	if err := conv.Share(targetID, perm, s.now()); err != nil {
		return nil, err
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Unshare revokes targetID's access. The actor must be owner or admin, and
// only the owner may revoke an admin. An admin may always leave.
func (s *ConversationService) Unshare(ctx context.Context, actorID, id, targetID string) (*entity.Conversation, error) {
	conv, err := s.load(ctx, actorID, id, valueobject.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(actorID) && actorID != targetID && conv.AccessFor(targetID) == valueobject.PermissionAdmin {
		return nil, entity.ErrAccessDenied
	}
	conv.Unshare(targetID, s.now())
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) load(ctx context.Context, userID, id string, perm valueobject.Permission) (*entity.Conversation, error) {
	if id == "" {
		return nil, apperrors.NewInvalidInputError("conversation id is required")
	}
	conv, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := conv.Require(userID, perm); err != nil {
		return nil, err
	}
	return conv, nil
}
