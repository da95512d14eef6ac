package messagestore

import (
	"context"
	"testing"
	"time"
	"yieldbot/internal/messagestore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryStoreAppendKeepsStrictOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "s1"}))

	for i := 0; i < 4; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := store.AppendMessage(ctx, "s1", models.NewMessage{Role: role, Content: "m", TokensUsed: i})
		require.NoError(t, err)
	}

	all, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "message %d not after %d", i, i-1)
	}

	session, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, session.MessageCount)
	assert.Equal(t, 6, session.TotalTokens)
}

func TestMemoryStoreRecentMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "s1"}))

	for _, text := range []string{"one", "two", "three"} {
		_, err := store.AppendMessage(ctx, "s1", models.NewMessage{Role: models.RoleUser, Content: text})
		require.NoError(t, err)
	}

	recent, err := store.RecentMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "two", recent[1].Content)

	all, err := store.RecentMessages(ctx, "s1", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreAppendUnknownSession(t *testing.T) {
	_, err := NewMemoryStore().AppendMessage(context.Background(), "missing", models.NewMessage{Role: models.RoleUser})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "s1"}))
	msg, err := store.AppendMessage(ctx, "s1", models.NewMessage{Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, store.AddFeedback(ctx, &models.Feedback{SessionID: "s1", MessageID: &msg.ID, Rating: 4}))

	require.NoError(t, store.DeleteSession(ctx, "s1"))

	_, err = store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	messages, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Empty(t, store.feedback)
	assert.ErrorIs(t, store.DeleteSession(ctx, "s1"), ErrNotFound)
}

func TestMemoryStoreListSessionsByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userID := int64(7)
	otherID := int64(8)

	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "u1", Owner: models.Owner{UserID: &userID}}))
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "u2", Owner: models.Owner{UserID: &otherID}}))
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "w1", Owner: models.Owner{WalletAddress: "0xabc"}}))
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "anon"}))

	sessions, err := store.ListSessions(ctx, models.Owner{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].ID)

	sessions, err = store.ListSessions(ctx, models.Owner{WalletAddress: "0xabc"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "w1", sessions[0].ID)

	sessions, err = store.ListSessions(ctx, models.Owner{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMemoryStoreFeedbackRequiresMessageInSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "s1"}))
	require.NoError(t, store.CreateSession(ctx, &models.Session{ID: "s2"}))
	msg, err := store.AppendMessage(ctx, "s2", models.NewMessage{Role: models.RoleAssistant, Content: "x"})
	require.NoError(t, err)

	err = store.AddFeedback(ctx, &models.Feedback{SessionID: "s1", MessageID: &msg.ID, Rating: 5})
	assert.ErrorIs(t, err, ErrNotFound)

	fb := &models.Feedback{SessionID: "s1", Rating: 5}
	require.NoError(t, store.AddFeedback(ctx, fb))
	assert.NotZero(t, fb.ID)
}
