package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Origin tags where an assistant reply came from.
type Origin string

const (
	OriginAPI      Origin = "api"
	OriginFallback Origin = "fallback"
	OriginCached   Origin = "cached"
)

// Owner identifies who a session belongs to. At most one of UserID and
// WalletAddress is set; neither set means the session is anonymous.
type Owner struct {
	UserID        *int64 `json:"user_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

func (o Owner) IsAnonymous() bool {
	return o.UserID == nil && o.WalletAddress == ""
}

func (o Owner) Equal(other Owner) bool {
	if (o.UserID == nil) != (other.UserID == nil) {
		return false
	}
	if o.UserID != nil && *o.UserID != *other.UserID {
		return false
	}
	return o.WalletAddress == other.WalletAddress
}

type Session struct {
	ID           string                 `json:"session_id"`
	Owner        Owner                  `json:"owner"`
	Title        string                 `json:"title"`
	UserContext  map[string]interface{} `json:"user_context"`
	MessageCount int                    `json:"message_count"`
	TotalTokens  int                    `json:"total_tokens"`
	IsActive     bool                   `json:"is_active"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

type Message struct {
	ID         int64                  `json:"id"`
	SessionID  string                 `json:"session_id"`
	Role       Role                   `json:"role"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	ModelUsed  string                 `json:"model_used,omitempty"`
	Origin     Origin                 `json:"source,omitempty"`
	TokensUsed int                    `json:"tokens_used"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewMessage is the input to an append.
type NewMessage struct {
	Role       Role
	Content    string
	Metadata   map[string]interface{}
	ModelUsed  string
	Origin     Origin
	TokensUsed int
}

type Feedback struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	MessageID       *int64    `json:"message_id,omitempty"`
	Rating          int       `json:"rating"`
	FeedbackText    string    `json:"feedback_text"`
	ResponseHelpful *bool     `json:"response_helpful,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
