package messagestore

import (
	"context"
	"strings"
	"yieldbot/internal/messagestore/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const titleMaxRunes = 50

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
	}
}

// CreateSession opens a new session for owner, titled after the first message.
func (s *Service) CreateSession(ctx context.Context, owner models.Owner, firstMessage string) (*models.Session, error) {
	session := &models.Session{
		ID:    uuid.New().String(),
		Owner: owner,
		Title: makeTitle(firstMessage),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	logrus.WithField("session_id", session.ID).Info("Created chat session")
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, owner models.Owner) ([]models.Session, error) {
	return s.store.ListSessions(ctx, owner)
}

func (s *Service) UpdateUserContext(ctx context.Context, sessionID string, userContext map[string]interface{}) error {
	return s.store.UpdateUserContext(ctx, sessionID, userContext)
}

func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	logrus.WithField("session_id", sessionID).Info("Deleted chat session")
	return nil
}

func (s *Service) Append(ctx context.Context, sessionID string, msg models.NewMessage) (*models.Message, error) {
	logrus.Debugf("Appending %s message to session %s", msg.Role, sessionID)
	return s.store.AppendMessage(ctx, sessionID, msg)
}

// History returns up to limit most recent messages in chronological order.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	logrus.Debugf("Reading last %d messages of session %s", limit, sessionID)
	recent, err := s.store.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func (s *Service) LastMessage(ctx context.Context, sessionID string) (*models.Message, error) {
	recent, err := s.store.RecentMessages(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}
	return &recent[0], nil
}

func (s *Service) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	return s.store.Messages(ctx, sessionID)
}

func (s *Service) AddFeedback(ctx context.Context, feedback *models.Feedback) error {
	if err := s.store.AddFeedback(ctx, feedback); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"session_id": feedback.SessionID,
		"rating":     feedback.Rating,
	}).Info("Stored assistant feedback")
	return nil
}

func makeTitle(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "..."
}
