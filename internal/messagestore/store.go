package messagestore

import (
	"context"
	"errors"
	"yieldbot/internal/messagestore/models"
)

var ErrNotFound = errors.New("messagestore: record not found")

// Store persists sessions and their ordered messages. RecentMessages returns
// newest first; Messages returns the whole session oldest first.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, owner models.Owner) ([]models.Session, error)
	UpdateUserContext(ctx context.Context, sessionID string, userContext map[string]interface{}) error
	DeleteSession(ctx context.Context, sessionID string) error

	AppendMessage(ctx context.Context, sessionID string, msg models.NewMessage) (*models.Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)

	AddFeedback(ctx context.Context, feedback *models.Feedback) error
}
