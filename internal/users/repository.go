package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, login, email, password_hash, telegram_ids, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, login string, passwordHash string, email *string) (*WebUser, error) {
	query := `
		INSERT INTO web_users (login, password_hash, email, telegram_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	var user WebUser
	err := r.db.GetContext(ctx, &user, query, login, passwordHash, email, pq.Int64Array{})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create web_user: %w", err)
	}
	return &user, nil
}

func (r *Repository) GetUserByLogin(ctx context.Context, login string) (*WebUser, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM web_users WHERE login = $1`, login)
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*WebUser, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM web_users WHERE id = $1`, id)
}

func (r *Repository) GetWebUserByTelegramID(ctx context.Context, telegramID int64) (*WebUser, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM web_users WHERE $1 = ANY(telegram_ids) LIMIT 1`, telegramID)
}

func (r *Repository) getOne(ctx context.Context, query string, arg interface{}) (*WebUser, error) {
	var user WebUser
	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get web_user: %w", err)
	}
	return &user, nil
}

func (r *Repository) AddTelegramIDToWebUser(ctx context.Context, webUserID int64, telegramID int64) (pq.Int64Array, error) {
	query := `
		UPDATE web_users
		SET telegram_ids = array_append(COALESCE(telegram_ids, '{}'), $2::BIGINT), updated_at = NOW()
		WHERE id = $1
		AND NOT ($2::BIGINT = ANY(COALESCE(telegram_ids, '{}')))
		RETURNING telegram_ids
	`

	var updated pq.Int64Array
	err := r.db.GetContext(ctx, &updated, query, webUserID, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already linked, or the user is gone.
			current, getErr := r.GetUserByID(ctx, webUserID)
			if getErr != nil {
				return nil, getErr
			}
			if current == nil {
				return nil, ErrUserNotFound
			}
			return current.TelegramIDs, nil
		}
		return nil, fmt.Errorf("failed to add telegram_id %d to web_user %d: %w", telegramID, webUserID, err)
	}
	return updated, nil
}
