package storage

import (
	"sync"
	"time"
)

// MemoryStorage keeps users and prompt records in process memory. Used as
// the fallback when Mongo is unavailable and as the store in tests.
type MemoryStorage struct {
	users   map[int64]*User
	prompts []PromptRecord
	mutex   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[int64]*User),
	}
}

func (m *MemoryStorage) GetUser(userId int64) (*User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	user, ok := m.users[userId]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *MemoryStorage) CreateUser(userId int64, credits int, language string) (*User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.users[userId]; ok {
		copied := *existing
		return &copied, nil
	}
	user := &User{
		ID:        userId,
		Credits:   credits,
		Language:  language,
		CreatedAt: time.Now(),
	}
	m.users[userId] = user
	copied := *user
	return &copied, nil
}

func (m *MemoryStorage) SetCredits(userId int64, credits int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if user, ok := m.users[userId]; ok {
		user.Credits = credits
	}
	return nil
}

func (m *MemoryStorage) SavePrompt(record PromptRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record.CreatedAt = time.Now()
	m.prompts = append(m.prompts, record)
	return nil
}

// Prompts returns a snapshot of saved records, oldest first.
func (m *MemoryStorage) Prompts() []PromptRecord {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]PromptRecord, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *MemoryStorage) Close() error {
	return nil
}
