package messagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"yieldbot/internal/messagestore/models"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sirupsen/logrus"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

type sessionRow struct {
	ID            string         `db:"id"`
	UserID        sql.NullInt64  `db:"user_id"`
	WalletAddress sql.NullString `db:"wallet_address"`
	Title         string         `db:"title"`
	UserContext   types.JSONText `db:"user_context"`
	MessageCount  int            `db:"message_count"`
	TotalTokens   int            `db:"total_tokens"`
	IsActive      bool           `db:"is_active"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r sessionRow) toModel() models.Session {
	s := models.Session{
		ID:           r.ID,
		Title:        r.Title,
		MessageCount: r.MessageCount,
		TotalTokens:  r.TotalTokens,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.UserID.Valid {
		id := r.UserID.Int64
		s.Owner.UserID = &id
	}
	if r.WalletAddress.Valid {
		s.Owner.WalletAddress = r.WalletAddress.String
	}
	if err := r.UserContext.Unmarshal(&s.UserContext); err != nil {
		logrus.Warnf("Session %s has unreadable user_context: %v", r.ID, err)
	}
	return s
}

type messageRow struct {
	ID         int64          `db:"id"`
	SessionID  string         `db:"session_id"`
	Role       string         `db:"role"`
	Content    string         `db:"content"`
	Metadata   types.JSONText `db:"metadata"`
	ModelUsed  string         `db:"model_used"`
	Origin     string         `db:"origin"`
	TokensUsed int            `db:"tokens_used"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	m := models.Message{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Role:       models.Role(r.Role),
		Content:    r.Content,
		ModelUsed:  r.ModelUsed,
		Origin:     models.Origin(r.Origin),
		TokensUsed: r.TokensUsed,
		CreatedAt:  r.CreatedAt,
	}
	if err := r.Metadata.Unmarshal(&m.Metadata); err != nil {
		logrus.Warnf("Message %d has unreadable metadata: %v", r.ID, err)
	}
	return m
}

const sessionColumns = `id, user_id, wallet_address, title, user_context, message_count, total_tokens, is_active, created_at, updated_at`

const messageColumns = `id, session_id, role, content, metadata, model_used, origin, tokens_used, created_at`

func (r *Repository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO ai_sessions (id, user_id, wallet_address, title, user_context, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING message_count, total_tokens, is_active, created_at, updated_at
	`

	userContext, err := encodeJSON(session.UserContext)
	if err != nil {
		return fmt.Errorf("failed to encode user context: %w", err)
	}

	var wallet sql.NullString
	if session.Owner.WalletAddress != "" {
		wallet = sql.NullString{String: session.Owner.WalletAddress, Valid: true}
	}

	row := r.db.QueryRowxContext(ctx, query, session.ID, session.Owner.UserID, wallet, session.Title, userContext)
	if err := row.Scan(&session.MessageCount, &session.TotalTokens, &session.IsActive, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM ai_sessions WHERE id = $1`

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	session := row.toModel()
	return &session, nil
}

func (r *Repository) ListSessions(ctx context.Context, owner models.Owner) ([]models.Session, error) {
	var (
		query string
		arg   interface{}
	)
	switch {
	case owner.UserID != nil:
		query = `SELECT ` + sessionColumns + ` FROM ai_sessions WHERE user_id = $1 ORDER BY updated_at DESC`
		arg = *owner.UserID
	case owner.WalletAddress != "":
		query = `SELECT ` + sessionColumns + ` FROM ai_sessions WHERE wallet_address = $1 AND user_id IS NULL ORDER BY updated_at DESC`
		arg = owner.WalletAddress
	default:
		return nil, nil
	}

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]models.Session, len(rows))
	for i, row := range rows {
		sessions[i] = row.toModel()
	}
	return sessions, nil
}

func (r *Repository) UpdateUserContext(ctx context.Context, sessionID string, userContext map[string]interface{}) error {
	encoded, err := encodeJSON(userContext)
	if err != nil {
		return fmt.Errorf("failed to encode user context: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE ai_sessions SET user_context = $2, updated_at = NOW() WHERE id = $1`, sessionID, encoded)
	if err != nil {
		return fmt.Errorf("failed to update user context of session %s: %w", sessionID, err)
	}
	return expectAffected(res)
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ai_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return expectAffected(res)
}

// AppendMessage inserts the message and bumps the session counters in one
// statement; a missing session yields ErrNotFound.
func (r *Repository) AppendMessage(ctx context.Context, sessionID string, msg models.NewMessage) (*models.Message, error) {
	query := `
		WITH updated AS (
			UPDATE ai_sessions
			SET message_count = message_count + 1,
				total_tokens = total_tokens + $6::integer,
				updated_at = NOW()
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO ai_messages (session_id, role, content, metadata, model_used, origin, tokens_used)
		SELECT id, $2::text, $3::text, $4::jsonb, $5::text, $7::text, $6::integer FROM updated
		RETURNING id, created_at
	`

	metadata, err := encodeJSON(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message metadata: %w", err)
	}

	stored := &models.Message{
		SessionID:  sessionID,
		Role:       msg.Role,
		Content:    msg.Content,
		Metadata:   msg.Metadata,
		ModelUsed:  msg.ModelUsed,
		Origin:     msg.Origin,
		TokensUsed: msg.TokensUsed,
	}

	row := r.db.QueryRowxContext(ctx, query, sessionID, string(msg.Role), msg.Content, metadata, msg.ModelUsed, msg.TokensUsed, string(msg.Origin))
	if err := row.Scan(&stored.ID, &stored.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to append message to session %s: %w", sessionID, err)
	}

	return stored, nil
}

func (r *Repository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM ai_messages WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return r.selectMessages(ctx, query, sessionID, limit)
}

func (r *Repository) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM ai_messages WHERE session_id = $1 ORDER BY created_at ASC, id ASC`
	return r.selectMessages(ctx, query, sessionID)
}

func (r *Repository) selectMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	messages := make([]models.Message, len(rows))
	for i, row := range rows {
		messages[i] = row.toModel()
	}
	return messages, nil
}

func (r *Repository) AddFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `
		INSERT INTO ai_feedback (session_id, message_id, rating, feedback_text, response_helpful)
		SELECT $1::text, $2::bigint, $3::integer, $4::text, $5::boolean
		WHERE $2::bigint IS NULL
			OR EXISTS (SELECT 1 FROM ai_messages WHERE id = $2::bigint AND session_id = $1::text)
		RETURNING id, created_at
	`

	row := r.db.QueryRowxContext(ctx, query, feedback.SessionID, feedback.MessageID, feedback.Rating, feedback.FeedbackText, feedback.ResponseHelpful)
	if err := row.Scan(&feedback.ID, &feedback.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to store feedback for session %s: %w", feedback.SessionID, err)
	}
	return nil
}

func encodeJSON(v map[string]interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
