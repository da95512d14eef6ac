// Package chat is the conversation entry point shared by the HTTP API, the
// Telegram bot and the CLI. It resolves the caller, keeps the session history
// and asks the assistant for exactly one reply per user message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"yieldbot/internal/assistant"
	"yieldbot/internal/messagestore"
	"yieldbot/internal/messagestore/models"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyMessage     = errors.New("message is required")
	ErrInvalidWallet    = errors.New("wallet address must be 0x followed by 40 hex characters")
	ErrIdentityRequired = errors.New("authentication or wallet address required")
	ErrSessionNotFound  = errors.New("conversation not found")
	ErrMessageNotFound  = errors.New("message not found in this conversation")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
)

const (
	DefaultHistoryLimit = 10
	previewMaxRunes     = 100
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Caller is the resolved identity of whoever sent a message. UserID wins over
// WalletAddress; neither means anonymous.
type Caller struct {
	UserID        *int64
	WalletAddress string
}

func UserCaller(id int64) Caller {
	return Caller{UserID: &id}
}

func WalletCaller(address string) Caller {
	return Caller{WalletAddress: strings.TrimSpace(address)}
}

func (c Caller) Owner() models.Owner {
	if c.UserID != nil {
		return models.Owner{UserID: c.UserID}
	}
	return models.Owner{WalletAddress: c.WalletAddress}
}

func (c Caller) validate() error {
	if c.UserID == nil && c.WalletAddress != "" && !walletPattern.MatchString(c.WalletAddress) {
		return ErrInvalidWallet
	}
	return nil
}

// AccountSource provides account snapshots for registered users.
type AccountSource interface {
	Snapshot(ctx context.Context, userID int64) (*assistant.UserContext, error)
}

type Service struct {
	sessions     *messagestore.Service
	responder    *assistant.Responder
	accounts     AccountSource
	historyLimit int
}

// NewService wires the chat flow. accounts may be nil, in which case every
// caller is treated as a new user.
func NewService(sessions *messagestore.Service, responder *assistant.Responder, accounts AccountSource, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		sessions:     sessions,
		responder:    responder,
		accounts:     accounts,
		historyLimit: historyLimit,
	}
}

type Request struct {
	SessionID string
	Message   string
	Caller    Caller
}

type Response struct {
	SessionID   string        `json:"session_id"`
	Message     string        `json:"message"`
	Source      models.Origin `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
	MessageID   int64         `json:"message_id"`
	ErrorDetail string        `json:"-"`
}

func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if err := req.Caller.validate(); err != nil {
		return nil, err
	}

	var session *models.Session
	var err error
	if req.SessionID == "" {
		session, err = s.sessions.CreateSession(ctx, req.Caller.Owner(), message)
	} else {
		session, err = s.ownedSession(ctx, req.Caller, req.SessionID)
	}
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("session_id", session.ID)

	userContext := s.userContext(ctx, req.Caller)
	if err := s.sessions.UpdateUserContext(ctx, session.ID, userContext.ToMap()); err != nil {
		return nil, fmt.Errorf("failed to store user context: %w", err)
	}

	userMetadata := map[string]interface{}{}
	if req.Caller.UserID == nil && req.Caller.WalletAddress != "" {
		userMetadata["wallet_address"] = req.Caller.WalletAddress
	}
	if _, err := s.sessions.Append(ctx, session.ID, models.NewMessage{
		Role:     models.RoleUser,
		Content:  message,
		Metadata: userMetadata,
	}); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	history, err := s.sessions.History(ctx, session.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	reply := s.responder.Respond(ctx, assistant.Turns(history), userContext)

	metadata := map[string]interface{}{"source": string(reply.Origin)}
	if reply.ErrorDetail != "" {
		metadata["error"] = reply.ErrorDetail
	}
	stored, err := s.sessions.Append(ctx, session.ID, models.NewMessage{
		Role:       models.RoleAssistant,
		Content:    reply.Text,
		Metadata:   metadata,
		ModelUsed:  reply.Model,
		Origin:     reply.Origin,
		TokensUsed: reply.Tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	log.WithField("source", reply.Origin).Info("Answered chat message")
	return &Response{
		SessionID:   session.ID,
		Message:     reply.Text,
		Source:      reply.Origin,
		Timestamp:   stored.CreatedAt,
		MessageID:   stored.ID,
		ErrorDetail: reply.ErrorDetail,
	}, nil
}

// userContext never fails: a broken account lookup degrades to no context.
func (s *Service) userContext(ctx context.Context, caller Caller) *assistant.UserContext {
	if caller.UserID == nil || s.accounts == nil {
		return assistant.NewUserContext()
	}
	uc, err := s.accounts.Snapshot(ctx, *caller.UserID)
	if err != nil {
		logrus.Warnf("Account snapshot for user %d unavailable: %v", *caller.UserID, err)
		return nil
	}
	return uc
}

// ownedSession hides sessions of other owners behind ErrSessionNotFound.
func (s *Service) ownedSession(ctx context.Context, caller Caller, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, messagestore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !session.Owner.Equal(caller.Owner()) {
		logrus.Warnf("Caller does not own session %s", sessionID)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

type Conversation struct {
	Session  *models.Session  `json:"session"`
	Messages []models.Message `json:"messages"`
}

// History returns the whole conversation, oldest message first.
func (s *Service) History(ctx context.Context, caller Caller, sessionID string) (*Conversation, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	session, err := s.ownedSession(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.sessions.Messages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &Conversation{Session: session, Messages: messages}, nil
}

type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListSessions lists the caller's conversations, most recently active first.
func (s *Service) ListSessions(ctx context.Context, caller Caller) ([]SessionSummary, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	owner := caller.Owner()
	if owner.IsAnonymous() {
		return nil, ErrIdentityRequired
	}

	sessions, err := s.sessions.ListSessions(ctx, owner)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summary := SessionSummary{
			SessionID:    session.ID,
			Title:        session.Title,
			MessageCount: session.MessageCount,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
		}
		last, err := s.sessions.LastMessage(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			summary.LastMessage = preview(last.Content)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Service) DeleteSession(ctx context.Context, caller Caller, sessionID string) error {
	if err := caller.validate(); err != nil {
		return err
	}
	if _, err := s.ownedSession(ctx, caller, sessionID); err != nil {
		return err
	}
	err := s.sessions.DeleteSession(ctx, sessionID)
	if errors.Is(err, messagestore.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

type FeedbackInput struct {
	MessageID       *int64
	Rating          int
	Text            string
	ResponseHelpful *bool
}

func (s *Service) SubmitFeedback(ctx context.Context, caller Caller, sessionID string, in FeedbackInput) (*models.Feedback, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}
	if err := caller.validate(); err != nil {
		return nil, err
	}
	if _, err := s.ownedSession(ctx, caller, sessionID); err != nil {
		return nil, err
	}

	feedback := &models.Feedback{
		SessionID:       sessionID,
		MessageID:       in.MessageID,
		Rating:          in.Rating,
		FeedbackText:    strings.TrimSpace(in.Text),
		ResponseHelpful: in.ResponseHelpful,
	}
	err := s.sessions.AddFeedback(ctx, feedback)
	if errors.Is(err, messagestore.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxRunes {
		return text
	}
	return string(runes[:previewMaxRunes]) + "..."
}
