package users

import (
	"context"
	"time"

	"github.com/lib/pq"
)

type WebUser struct {
	ID           int64         `db:"id" json:"id"`
	Login        string        `db:"login" json:"login"`
	Email        *string       `db:"email" json:"email,omitempty"`
	PasswordHash string        `db:"password_hash" json:"-"`
	TelegramIDs  pq.Int64Array `db:"telegram_ids" json:"telegram_ids,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Store lookups return (nil, nil) when no user matches.
type Store interface {
	CreateUser(ctx context.Context, login, passwordHash string, email *string) (*WebUser, error)
	GetUserByLogin(ctx context.Context, login string) (*WebUser, error)
	GetUserByID(ctx context.Context, id int64) (*WebUser, error)
	AddTelegramIDToWebUser(ctx context.Context, webUserID, telegramID int64) (pq.Int64Array, error)
	GetWebUserByTelegramID(ctx context.Context, telegramID int64) (*WebUser, error)
}
