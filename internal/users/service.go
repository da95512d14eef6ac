package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"yieldbot/internal/auth"

	"github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound                       = errors.New("user not found")
	ErrUserAlreadyExists                  = errors.New("a user with this login already exists")
	ErrInvalidCredentials                 = errors.New("invalid login or password")
	ErrInvalidRegistration                = errors.New("login and password (min 8 characters) are required")
	ErrTelegramIDAlreadyLinkedToOtherUser = errors.New("this Telegram account is linked to another user")
	ErrTelegramIDAlreadyLinkedToThisUser  = errors.New("this Telegram account is already linked to your profile")
)

const minPasswordLength = 8

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) RegisterWebUser(ctx context.Context, login, password string, email *string) (*WebUser, error) {
	login = strings.TrimSpace(login)
	if login == "" || len(password) < minPasswordLength {
		return nil, ErrInvalidRegistration
	}

	existingUser, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		logrus.Errorf("Failed to check existing user '%s': %v", login, err)
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserAlreadyExists
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		logrus.Errorf("Failed to hash password for '%s': %v", login, err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, login, hashedPassword, email)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, err
		}
		logrus.Errorf("Failed to create user '%s': %v", login, err)
		return nil, err
	}
	logrus.Infof("Registered web user %d (%s)", user.ID, user.Login)
	return user, nil
}

func (s *Service) AuthenticateWebUser(ctx context.Context, login, password string) (*WebUser, error) {
	user, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		logrus.Errorf("Failed to load user '%s' for authentication: %v", login, err)
		return nil, err
	}
	if user == nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetWebUserByID(ctx context.Context, id int64) (*WebUser, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		logrus.Errorf("Failed to load user %d: %v", id, err)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *Service) LinkTelegramAccount(ctx context.Context, webUserID int64, telegramID int64) error {
	linked, err := s.repo.GetWebUserByTelegramID(ctx, telegramID)
	if err != nil {
		logrus.Errorf("Failed to check existing link for telegram_id %d: %v", telegramID, err)
		return err
	}
	if linked != nil {
		if linked.ID != webUserID {
			logrus.Warnf("telegram_id %d is already linked to web_user %d, refusing link to %d", telegramID, linked.ID, webUserID)
			return ErrTelegramIDAlreadyLinkedToOtherUser
		}
		return ErrTelegramIDAlreadyLinkedToThisUser
	}

	webUser, err := s.repo.GetUserByID(ctx, webUserID)
	if err != nil {
		return err
	}
	if webUser == nil {
		return ErrUserNotFound
	}

	if _, err := s.repo.AddTelegramIDToWebUser(ctx, webUserID, telegramID); err != nil {
		logrus.Errorf("Failed to link telegram_id %d to web_user %d: %v", telegramID, webUserID, err)
		return err
	}

	logrus.Infof("Linked telegram_id %d to web_user %d", telegramID, webUserID)
	return nil
}

func (s *Service) FindWebUserByTelegramID(ctx context.Context, telegramID int64) (*WebUser, error) {
	user, err := s.repo.GetWebUserByTelegramID(ctx, telegramID)
	if err != nil {
		logrus.Errorf("Failed to find web_user by telegram_id %d: %v", telegramID, err)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
