package persistence

import (
	"context"
	"sort"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
	"github.com/ngoclaw/aichat/pkg/errors"
)

// MemoryUserRepository 内存实现的用户仓储
type MemoryUserRepository struct {
	store *MemoryStore
}

// Create 创建用户
func (r *MemoryUserRepository) Create(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID()]; ok {
		return errors.NewAlreadyExistsError("user already exists")
	}
	for _, u := range r.store.users {
		if u.Email == user.Email() || u.Username == user.Username() {
			return errors.NewAlreadyExistsError("username or email already taken")
		}
	}
	r.store.users[user.ID()] = user.Snapshot()
	return nil
}

// Update 更新用户
func (r *MemoryUserRepository) Update(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID()]; !ok {
		return errors.NewNotFoundError("user not found")
	}
	r.store.users[user.ID()] = user.Snapshot()
	return nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.find(func(s entity.UserState) bool { return s.ID == id })
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.find(func(s entity.UserState) bool { return s.Email == email })
}

func (r *MemoryUserRepository) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.find(func(s entity.UserState) bool { return s.Username == username })
}

func (r *MemoryUserRepository) find(match func(entity.UserState) bool) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, s := range r.store.users {
		if match(s) {
			return entity.ReconstructUser(s), nil
		}
	}
	return nil, errors.NewNotFoundError("user not found")
}

// MemoryConversationRepository 内存实现的会话仓储
type MemoryConversationRepository struct {
	store *MemoryStore
}

// Save 保存会话
func (r *MemoryConversationRepository) Save(ctx context.Context, conversation *entity.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.conversations[conversation.ID()] = conversation.Snapshot()
	return nil
}

// FindByID 根据ID查找会话
func (r *MemoryConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.conversations[id]
	if !ok {
		return nil, errors.NewNotFoundError("conversation not found")
	}
	return entity.ReconstructConversation(s), nil
}

// ListForUser 列出用户拥有或被分享的会话
func (r *MemoryConversationRepository) ListForUser(ctx context.Context, userID string, q repository.ConversationQuery) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	var out []*entity.Conversation
	for _, s := range r.store.conversations {
		c := entity.ReconstructConversation(s)
		if !c.CanRead(userID) {
			continue
		}
		if q.Archived != nil && c.IsArchived() != *q.Archived {
			continue
		}
		out = append(out, c)
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned() != out[j].IsPinned() {
			return out[i].IsPinned()
		}
		return out[i].UpdatedAt().After(out[j].UpdatedAt())
	})
	return paginate(out, q.Limit, q.Offset), nil
}

// FindWithPendingTurn 查找存在未完成回合的会话
func (r *MemoryConversationRepository) FindWithPendingTurn(ctx context.Context) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.Conversation
	for _, s := range r.store.conversations {
		if s.PendingTurnMessageID != "" {
			out = append(out, entity.ReconstructConversation(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt().Before(out[j].UpdatedAt()) })
	return out, nil
}

// ClaimPendingTurn 清除未完成回合标记
func (r *MemoryConversationRepository) ClaimPendingTurn(ctx context.Context, conversationID, messageID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s, ok := r.store.conversations[conversationID]
	if !ok || s.PendingTurnMessageID == "" || s.PendingTurnMessageID != messageID {
		return false, nil
	}
	s.PendingTurnMessageID = ""
	r.store.conversations[conversationID] = s
	return true, nil
}

// Delete 删除会话
func (r *MemoryConversationRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.conversations[id]; !ok {
		return errors.NewNotFoundError("conversation not found")
	}
	delete(r.store.conversations, id)
	return nil
}

// MemoryMessageRepository 内存实现的消息仓储
type MemoryMessageRepository struct {
	store *MemoryStore
}

// Save 保存消息
func (r *MemoryMessageRepository) Save(ctx context.Context, message *entity.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.messages[message.ID()] = message.Snapshot()
	return nil
}

// FindByID 根据ID查找消息
func (r *MemoryMessageRepository) FindByID(ctx context.Context, id string) (*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.messages[id]
	if !ok {
		return nil, errors.NewNotFoundError("message not found")
	}
	return entity.ReconstructMessage(s), nil
}

// FindByConversationID 按时间升序返回最近的 Limit 条消息
func (r *MemoryMessageRepository) FindByConversationID(ctx context.Context, conversationID string, q repository.MessageQuery) ([]*entity.Message, error) {
	r.store.mu.RLock()
	var out []*entity.Message
	for _, s := range r.store.messages {
		if s.ConversationID != conversationID {
			continue
		}
		if s.IsDeleted && !q.IncludeDeleted {
			continue
		}
		if q.Before != nil && !s.CreatedAt.Before(*q.Before) {
			continue
		}
		out = append(out, entity.ReconstructMessage(s))
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// DeleteByConversationID 删除会话的全部消息
func (r *MemoryMessageRepository) DeleteByConversationID(ctx context.Context, conversationID string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for id, s := range r.store.messages {
		if s.ConversationID == conversationID {
			delete(r.store.messages, id)
			n++
		}
	}
	return n, nil
}

// Count 统计会话中未删除的消息数量
func (r *MemoryMessageRepository) Count(ctx context.Context, conversationID string) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int64
	for _, s := range r.store.messages {
		if s.ConversationID == conversationID && !s.IsDeleted {
			n++
		}
	}
	return n, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
