package persistence

import (
	"context"
	"maps"
	"sync"

	"github.com/ngoclaw/aichat/internal/domain/entity"
	"github.com/ngoclaw/aichat/internal/domain/repository"
)

// MemoryStore 内存存储（用于开发/测试），保存实体快照而非指针
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]entity.UserState
	conversations map[string]entity.ConversationState
	messages      map[string]entity.MessageState

	// 串行化事务，保证快照回滚不会覆盖并发事务
	txMu sync.Mutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]entity.UserState),
		conversations: make(map[string]entity.ConversationState),
		messages:      make(map[string]entity.MessageState),
	}
}

// Repositories 返回基于该存储的全部仓储
func (s *MemoryStore) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:         &MemoryUserRepository{store: s},
		Conversations: &MemoryConversationRepository{store: s},
		Messages:      &MemoryMessageRepository{store: s},
	}
}

// WithinTx fn 返回错误时恢复到调用前的快照
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	users, conversations, messages := maps.Clone(s.users), maps.Clone(s.conversations), maps.Clone(s.messages)
	s.mu.RUnlock()

	if err := fn(ctx, s.Repositories()); err != nil {
		s.mu.Lock()
		s.users, s.conversations, s.messages = users, conversations, messages
		s.mu.Unlock()
		return err
	}
	return nil
}

var _ repository.Transactor = (*MemoryStore)(nil)
