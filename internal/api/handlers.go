package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"yieldbot/internal/auth"
	"yieldbot/internal/chat"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/linking"
	"yieldbot/internal/messagestore/models"
	"yieldbot/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	chatService     *chat.Service
	knowledgeBase   *knowledge.Base
	userService     *users.Service
	linkingService  *linking.Service
	jwtSigningKey   string
	telegramBotName string
}

func NewHandler(
	chatService *chat.Service,
	kb *knowledge.Base,
	userService *users.Service,
	linkService *linking.Service,
	jwtKey string,
	tgBotName string,
) *Handler {
	return &Handler{
		chatService:     chatService,
		knowledgeBase:   kb,
		userService:     userService,
		linkingService:  linkService,
		jwtSigningKey:   jwtKey,
		telegramBotName: tgBotName,
	}
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Login    string  `json:"login"`
	Password string  `json:"password"`
	Email    *string `json:"email,omitempty"`
}

type UserResponse struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) RegisterWebUserHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.userService.RegisterWebUser(r.Context(), req.Login, req.Password, req.Email)
	switch {
	case errors.Is(err, users.ErrInvalidRegistration):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, users.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		logrus.Errorf("Failed to register user '%s': %v", req.Login, err)
		respondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	respondJSON(w, http.StatusCreated, UserResponse{
		ID:        user.ID,
		Login:     user.Login,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
}

func (h *Handler) AuthLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Login == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	user, err := h.userService.AuthenticateWebUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, err.Error())
		} else {
			logrus.Errorf("Failed to authenticate '%s': %v", req.Login, err)
			respondError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	token, err := auth.GenerateJWTToken(user.ID, h.jwtSigningKey, auth.TokenTTL)
	if err != nil {
		logrus.Errorf("Failed to issue token for user %d: %v", user.ID, err)
		respondError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	respondJSON(w, http.StatusOK, LoginResponse{Token: token})
}

type GenerateTelegramLinkResponse struct {
	Link      string    `json:"link,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) GenerateTelegramLinkHandler(w http.ResponseWriter, r *http.Request) {
	webUserID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	token, expiresAt, err := h.linkingService.GenerateLinkToken(webUserID)
	if err != nil {
		logrus.Errorf("Failed to generate link token for user %d: %v", webUserID, err)
		respondError(w, http.StatusInternalServerError, "failed to generate link")
		return
	}

	resp := GenerateTelegramLinkResponse{Token: token, ExpiresAt: expiresAt}
	if h.telegramBotName != "" {
		resp.Link = fmt.Sprintf("https://t.me/%s?start=%s", h.telegramBotName, token)
	}
	respondJSON(w, http.StatusOK, resp)
}

type ChatRequest struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := callerFromContext(r.Context())
	if caller.UserID == nil && caller.WalletAddress == "" && req.WalletAddress != "" {
		caller = chat.WalletCaller(req.WalletAddress)
	}

	resp, err := h.chatService.Chat(r.Context(), chat.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		Caller:    caller,
	})
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.chatService.ListSessions(r.Context(), callerFromContext(r.Context()))
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Title     string           `json:"title"`
	Messages  []models.Message `json:"messages"`
}

func (h *Handler) ConversationHistoryHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.History(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{
		SessionID: conv.Session.ID,
		Title:     conv.Session.Title,
		Messages:  conv.Messages,
	})
}

func (h *Handler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	err := h.chatService.DeleteSession(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FeedbackRequest struct {
	MessageID       *int64 `json:"message_id,omitempty"`
	Rating          int    `json:"rating"`
	FeedbackText    string `json:"feedback_text"`
	ResponseHelpful *bool  `json:"response_helpful,omitempty"`
}

func (h *Handler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feedback, err := h.chatService.SubmitFeedback(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "sessionID"), chat.FeedbackInput{
		MessageID:       req.MessageID,
		Rating:          req.Rating,
		Text:            req.FeedbackText,
		ResponseHelpful: req.ResponseHelpful,
	})
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, feedback)
}

func (h *Handler) ExplainTermHandler(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		respondError(w, http.StatusBadRequest, "term parameter is required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"term":        term,
		"explanation": h.knowledgeBase.ExplainTerm(term),
	})
}

func (h *Handler) StrategiesHandler(w http.ResponseWriter, r *http.Request) {
	strategies := make(map[string]knowledge.Strategy, len(h.knowledgeBase.Strategies))
	for _, s := range h.knowledgeBase.Strategies {
		strategies[s.Key] = s
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"comparison": h.knowledgeBase.CompareStrategies(),
		"strategies": strategies,
	})
}

func (h *Handler) respondChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidWallet),
		errors.Is(err, chat.ErrInvalidRating):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrIdentityRequired):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chat.ErrSessionNotFound), errors.Is(err, chat.ErrMessageNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		logrus.Errorf("Chat request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
