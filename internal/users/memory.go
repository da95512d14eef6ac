package users

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
)

// MemoryRepository is the in-process Store used when no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[int64]*WebUser
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]*WebUser)}
}

func (m *MemoryRepository) CreateUser(ctx context.Context, login, passwordHash string, email *string) (*WebUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Login == login {
			return nil, ErrUserAlreadyExists
		}
	}
	m.nextID++
	now := time.Now()
	user := &WebUser{
		ID:           m.nextID,
		Login:        login,
		Email:        email,
		PasswordHash: passwordHash,
		TelegramIDs:  pq.Int64Array{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user
	return cloneUser(user), nil
}

func (m *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*WebUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Login == login {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) GetUserByID(ctx context.Context, id int64) (*WebUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetWebUserByTelegramID(ctx context.Context, telegramID int64) (*WebUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		for _, id := range u.TelegramIDs {
			if id == telegramID {
				return cloneUser(u), nil
			}
		}
	}
	return nil, nil
}

func (m *MemoryRepository) AddTelegramIDToWebUser(ctx context.Context, webUserID, telegramID int64) (pq.Int64Array, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[webUserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	for _, id := range u.TelegramIDs {
		if id == telegramID {
			return append(pq.Int64Array{}, u.TelegramIDs...), nil
		}
	}
	u.TelegramIDs = append(u.TelegramIDs, telegramID)
	u.UpdatedAt = time.Now()
	return append(pq.Int64Array{}, u.TelegramIDs...), nil
}

func cloneUser(u *WebUser) *WebUser {
	out := *u
	out.TelegramIDs = append(pq.Int64Array{}, u.TelegramIDs...)
	return &out
}
