package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"yieldbot/internal/assistant"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Service struct {
	db *sqlx.DB
}

type Balance struct {
	UserID         int64           `db:"user_id"`
	CurrentBalance decimal.Decimal `db:"current_balance"`
	TotalDeposited decimal.Decimal `db:"total_deposited"`
	TotalEarned    decimal.Decimal `db:"total_earned"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func NewService(db *sqlx.DB) *Service {
	return &Service{
		db: db,
	}
}

// LatestBalance returns nil when the user has no balance record yet.
func (s *Service) LatestBalance(ctx context.Context, userID int64) (*Balance, error) {
	query := `
		SELECT user_id, current_balance, total_deposited, total_earned, updated_at
		FROM account_balances
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var b Balance
	err := s.db.GetContext(ctx, &b, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

// CurrentStrategy is the strategy of the user's latest deposit, or "".
func (s *Service) CurrentStrategy(ctx context.Context, userID int64) (string, error) {
	query := `
		SELECT strategy
		FROM account_transactions
		WHERE user_id = $1 AND transaction_type = 'deposit' AND strategy <> ''
		ORDER BY created_at DESC
		LIMIT 1
	`

	var strategy string
	err := s.db.GetContext(ctx, &strategy, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current strategy: %w", err)
	}
	return strategy, nil
}

func (s *Service) HasDeposits(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM account_transactions WHERE user_id = $1 AND transaction_type = 'deposit')`,
		userID)
	if err != nil {
		return false, fmt.Errorf("failed to check deposits: %w", err)
	}
	return exists, nil
}

// Snapshot assembles the assistant's view of a registered user's account.
func (s *Service) Snapshot(ctx context.Context, userID int64) (*assistant.UserContext, error) {
	hasDeposits, err := s.HasDeposits(ctx, userID)
	if err != nil {
		return nil, err
	}
	uc := &assistant.UserContext{IsNewUser: !hasDeposits}

	balance, err := s.LatestBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		uc.Balance = &balance.CurrentBalance
		uc.TotalDeposited = &balance.TotalDeposited
		uc.TotalEarned = &balance.TotalEarned
	}

	if uc.Strategy, err = s.CurrentStrategy(ctx, userID); err != nil {
		return nil, err
	}
	return uc, nil
}
