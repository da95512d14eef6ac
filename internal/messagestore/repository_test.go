package messagestore

import (
	"context"
	"testing"
	"time"
	"yieldbot/internal/messagestore/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestRepositoryGetSession(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "wallet_address", "title", "user_context", "message_count", "total_tokens", "is_active", "created_at", "updated_at"}).
		AddRow("s1", int64(42), nil, "hello", []byte(`{"is_new_user":true}`), 4, 120, true, now, now)
	mock.ExpectQuery("SELECT (.+) FROM ai_sessions WHERE id =").WithArgs("s1").WillReturnRows(rows)

	session, err := repo.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Owner.UserID)
	assert.Equal(t, int64(42), *session.Owner.UserID)
	assert.Empty(t, session.Owner.WalletAddress)
	assert.Equal(t, 4, session.MessageCount)
	assert.Equal(t, true, session.UserContext["is_new_user"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetSessionNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("SELECT (.+) FROM ai_sessions").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryAppendMessage(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO ai_messages").
		WithArgs("s1", "assistant", "reply", `{"source":"fallback"}`, "", 0, "fallback").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

	msg, err := repo.AppendMessage(context.Background(), "s1", models.NewMessage{
		Role:     models.RoleAssistant,
		Content:  "reply",
		Metadata: map[string]interface{}{"source": "fallback"},
		Origin:   models.OriginFallback,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), msg.ID)
	assert.Equal(t, now, msg.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAppendMessageMissingSession(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("INSERT INTO ai_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	_, err := repo.AppendMessage(context.Background(), "gone", models.NewMessage{Role: models.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryRecentMessages(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "session_id", "role", "content", "metadata", "model_used", "origin", "tokens_used", "created_at"}).
		AddRow(int64(2), "s1", "assistant", "answer", []byte(`{}`), "gemini", "api", 10, now.Add(time.Second)).
		AddRow(int64(1), "s1", "user", "question", []byte(`{}`), "", "", 0, now)
	mock.ExpectQuery("FROM ai_messages WHERE session_id = (.+) ORDER BY created_at DESC").
		WithArgs("s1", 10).WillReturnRows(rows)

	messages, err := repo.RecentMessages(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleAssistant, messages[0].Role)
	assert.Equal(t, models.OriginAPI, messages[0].Origin)
	assert.Equal(t, "question", messages[1].Content)
}

func TestRepositoryDeleteSessionNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec("DELETE FROM ai_sessions").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.DeleteSession(context.Background(), "s1"), ErrNotFound)
}

func TestRepositoryListSessionsAnonymous(t *testing.T) {
	repo, mock := newMockRepository(t)

	sessions, err := repo.ListSessions(context.Background(), models.Owner{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
