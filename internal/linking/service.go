// Package linking issues short-lived one-time tokens that connect a Telegram
// chat to a registered web user.
package linking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrTokenNotFound         = errors.New("link token not found or expired")
	ErrTokenAlreadyUsed      = errors.New("link token has already been used")
	ErrFailedToGenerateToken = errors.New("failed to generate link token")
)

const (
	linkTokenTTL         = 10 * time.Minute
	linkTokenLengthBytes = 16
)

type LinkTokenInfo struct {
	WebUserID int64
	ExpiresAt time.Time
	Used      bool
}

type Service struct {
	tokens map[string]LinkTokenInfo
	mu     sync.Mutex
	now    func() time.Time
}

func NewService() *Service {
	return &Service{
		tokens: make(map[string]LinkTokenInfo),
		now:    time.Now,
	}
}

func (s *Service) GenerateLinkToken(webUserID int64) (string, time.Time, error) {
	bytes := make([]byte, linkTokenLengthBytes)
	if _, err := rand.Read(bytes); err != nil {
		logrus.Errorf("Failed to read random bytes for link token: %v", err)
		return "", time.Time{}, ErrFailedToGenerateToken
	}
	token := hex.EncodeToString(bytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(linkTokenTTL)
	s.tokens[token] = LinkTokenInfo{WebUserID: webUserID, ExpiresAt: expiresAt}
	logrus.Debugf("Issued link token for web_user_id %d, expires at %v", webUserID, expiresAt)
	return token, expiresAt, nil
}

func (s *Service) ValidateAndUseLinkToken(token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.tokens[token]
	if !exists {
		return 0, ErrTokenNotFound
	}
	if s.now().After(info.ExpiresAt) {
		delete(s.tokens, token)
		return 0, ErrTokenNotFound
	}
	if info.Used {
		logrus.Warnf("Link token reuse attempt for web_user_id %d", info.WebUserID)
		return 0, ErrTokenAlreadyUsed
	}

	info.Used = true
	s.tokens[token] = info
	logrus.Infof("Link token used for web_user_id %d", info.WebUserID)
	return info.WebUserID, nil
}

// Run removes expired and used tokens until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(linkTokenTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Service) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, info := range s.tokens {
		if info.Used || now.After(info.ExpiresAt) {
			delete(s.tokens, token)
		}
	}
}
