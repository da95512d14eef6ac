package messagestore

import (
	"context"
	"sort"
	"sync"
	"time"
	"yieldbot/internal/messagestore/models"
)

// MemoryStore keeps everything in process memory. It backs local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
	feedback []models.Feedback

	messageCounter  int64
	feedbackCounter int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
		now:      time.Now,
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session.IsActive = true
	session.MessageCount = 0
	session.TotalTokens = 0
	session.CreatedAt = now
	session.UpdatedAt = now

	stored := *session
	stored.UserContext = copyMap(session.UserContext)
	m.sessions[session.ID] = &stored
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *session
	out.UserContext = copyMap(session.UserContext)
	return &out, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, owner models.Owner) ([]models.Session, error) {
	if owner.IsAnonymous() {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []models.Session
	for _, session := range m.sessions {
		if session.Owner.Equal(owner) {
			out := *session
			out.UserContext = copyMap(session.UserContext)
			sessions = append(sessions, out)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) UpdateUserContext(ctx context.Context, sessionID string, userContext map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.UserContext = copyMap(userContext)
	session.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.messages, sessionID)

	kept := m.feedback[:0]
	for _, fb := range m.feedback {
		if fb.SessionID != sessionID {
			kept = append(kept, fb)
		}
	}
	m.feedback = kept
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg models.NewMessage) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	createdAt := m.now()
	// created_at is the only ordering key, so keep it strictly increasing.
	if existing := m.messages[sessionID]; len(existing) > 0 {
		if last := existing[len(existing)-1].CreatedAt; !createdAt.After(last) {
			createdAt = last.Add(time.Microsecond)
		}
	}

	m.messageCounter++
	stored := models.Message{
		ID:         m.messageCounter,
		SessionID:  sessionID,
		Role:       msg.Role,
		Content:    msg.Content,
		Metadata:   copyMap(msg.Metadata),
		ModelUsed:  msg.ModelUsed,
		Origin:     msg.Origin,
		TokensUsed: msg.TokensUsed,
		CreatedAt:  createdAt,
	}
	m.messages[sessionID] = append(m.messages[sessionID], stored)

	session.MessageCount++
	session.TotalTokens += msg.TokensUsed
	session.UpdatedAt = createdAt

	return &stored, nil
}

func (m *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}

	recent := make([]models.Message, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		recent = append(recent, all[i])
	}
	return recent, nil
}

func (m *MemoryStore) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[sessionID]
	out := make([]models.Message, len(all))
	copy(out, all)
	return out, nil
}

func (m *MemoryStore) AddFeedback(ctx context.Context, feedback *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[feedback.SessionID]; !ok {
		return ErrNotFound
	}
	if feedback.MessageID != nil {
		found := false
		for _, msg := range m.messages[feedback.SessionID] {
			if msg.ID == *feedback.MessageID {
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
	}

	m.feedbackCounter++
	feedback.ID = m.feedbackCounter
	feedback.CreatedAt = m.now()
	m.feedback = append(m.feedback, *feedback)
	return nil
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
