// Package telegram exposes the assistant as a Telegram bot. Each chat keeps
// its own conversation; linked accounts chat as their web user.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"yieldbot/internal/chat"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/linking"
	"yieldbot/internal/users"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Transcriber turns voice notes into text.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audioData []byte) (string, error)
}

type Handler struct {
	bot            Messenger
	chatService    *chat.Service
	knowledgeBase  *knowledge.Base
	userService    *users.Service
	linkingService *linking.Service
	transcriber    Transcriber
	downloader     *resty.Client

	mu       sync.Mutex
	sessions map[int64]string
}

// NewHandler builds the update router. transcriber may be nil, in which case
// voice messages are declined.
func NewHandler(
	bot Messenger,
	chatService *chat.Service,
	kb *knowledge.Base,
	userService *users.Service,
	linkService *linking.Service,
	transcriber Transcriber,
) *Handler {
	return &Handler{
		bot:            bot,
		chatService:    chatService,
		knowledgeBase:  kb,
		userService:    userService,
		linkingService: linkService,
		transcriber:    transcriber,
		downloader:     resty.New().SetTimeout(30 * time.Second),
		sessions:       make(map[int64]string),
	}
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		logrus.Errorf("Failed to decode Telegram update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.HandleUpdate(context.WithoutCancel(r.Context()), update)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if token := strings.TrimSpace(msg.CommandArguments()); token != "" {
			h.handleLinkTokenStart(ctx, chatID, msg.From.ID, token)
			return
		}
		h.reply(chatID, h.knowledgeBase.FallbackText("greeting"))
		return
	case "new":
		h.resetSession(chatID)
		h.reply(chatID, "Started a new conversation. What would you like to know?")
		return
	case "explain":
		term := strings.TrimSpace(msg.CommandArguments())
		if term == "" {
			h.reply(chatID, "Usage: /explain <term>, for example /explain APY")
			return
		}
		h.reply(chatID, h.knowledgeBase.ExplainTerm(term))
		return
	case "strategies":
		h.reply(chatID, h.knowledgeBase.CompareStrategies())
		return
	}

	if msg.Voice != nil || msg.Audio != nil {
		h.handleAudioMessage(ctx, msg)
		return
	}
	if strings.TrimSpace(msg.Text) != "" {
		h.handleTextMessage(ctx, chatID, msg.From.ID, msg.Text)
	}
}

func (h *Handler) handleTextMessage(ctx context.Context, chatID, telegramUserID int64, text string) {
	caller := h.callerFor(ctx, telegramUserID)

	resp, err := h.chatService.Chat(ctx, chat.Request{
		SessionID: h.session(chatID),
		Message:   text,
		Caller:    caller,
	})
	if errors.Is(err, chat.ErrSessionNotFound) {
		// Deleted elsewhere or the chat was linked since; start over.
		h.resetSession(chatID)
		resp, err = h.chatService.Chat(ctx, chat.Request{Message: text, Caller: caller})
	}
	if err != nil {
		logrus.Errorf("Chat failed for telegram chat %d: %v", chatID, err)
		h.reply(chatID, "Sorry, something went wrong. Please try again in a moment.")
		return
	}

	h.setSession(chatID, resp.SessionID)
	h.reply(chatID, resp.Message)
}

func (h *Handler) handleAudioMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if h.transcriber == nil {
		h.reply(chatID, "Voice messages are not supported yet, please type your question.")
		return
	}

	var fileID string
	if msg.Voice != nil {
		fileID = msg.Voice.FileID
	} else {
		fileID = msg.Audio.FileID
	}

	audioData, err := h.download(ctx, fileID)
	if err != nil {
		logrus.Errorf("Failed to download voice message: %v", err)
		h.reply(chatID, "Could not download your voice message.")
		return
	}

	text, err := h.transcriber.TranscribeAudio(ctx, audioData)
	if err != nil || text == "" {
		logrus.Errorf("Failed to transcribe voice message: %v", err)
		h.reply(chatID, "Could not understand your voice message, please type your question.")
		return
	}

	h.handleTextMessage(ctx, chatID, msg.From.ID, text)
}

func (h *Handler) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := h.bot.FileURL(fileID)
	if err != nil {
		return nil, err
	}
	resp, err := h.downloader.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// callerFor chats as the linked web user when there is one.
func (h *Handler) callerFor(ctx context.Context, telegramUserID int64) chat.Caller {
	if h.userService == nil {
		return chat.Caller{}
	}
	user, err := h.userService.FindWebUserByTelegramID(ctx, telegramUserID)
	if err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			logrus.Warnf("Failed to resolve telegram user %d: %v", telegramUserID, err)
		}
		return chat.Caller{}
	}
	return chat.UserCaller(user.ID)
}

func (h *Handler) handleLinkTokenStart(ctx context.Context, chatID int64, telegramUserID int64, token string) {
	if h.linkingService == nil || h.userService == nil {
		h.reply(chatID, "Account linking is not available.")
		return
	}

	webUserID, err := h.linkingService.ValidateAndUseLinkToken(token)
	if err != nil {
		logrus.Warnf("Link token rejected for telegram_user_id %d: %v", telegramUserID, err)
		switch {
		case errors.Is(err, linking.ErrTokenAlreadyUsed):
			h.reply(chatID, "This link has already been used.")
		default:
			h.reply(chatID, "This link is invalid or has expired. Please generate a new one on the website.")
		}
		return
	}

	err = h.userService.LinkTelegramAccount(ctx, webUserID, telegramUserID)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrTelegramIDAlreadyLinkedToOtherUser):
			h.reply(chatID, "This Telegram account is already linked to another profile.")
		case errors.Is(err, users.ErrTelegramIDAlreadyLinkedToThisUser):
			h.reply(chatID, "This Telegram account is already linked to your profile.")
		case errors.Is(err, users.ErrUserNotFound):
			h.reply(chatID, "The profile you are linking to was not found.")
		default:
			logrus.Errorf("Failed to link telegram_id %d to web_user %d: %v", telegramUserID, webUserID, err)
			h.reply(chatID, "Linking failed, please try again later.")
		}
		return
	}

	h.resetSession(chatID)
	if webUser, err := h.userService.GetWebUserByID(ctx, webUserID); err == nil {
		h.reply(chatID, fmt.Sprintf("Your Telegram account is now linked to '%s'.", webUser.Login))
		return
	}
	h.reply(chatID, "Your Telegram account is now linked.")
}

func (h *Handler) reply(chatID int64, text string) {
	if err := h.bot.SendMessage(chatID, text); err != nil {
		logrus.Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (h *Handler) session(chatID int64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[chatID]
}

func (h *Handler) setSession(chatID int64, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[chatID] = sessionID
}

func (h *Handler) resetSession(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, chatID)
}
