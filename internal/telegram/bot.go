package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Messenger is the part of the Bot API the handler needs.
type Messenger interface {
	SendMessage(chatID int64, text string) error
	FileURL(fileID string) (string, error)
}

// Bot is the live Telegram Bot API client.
type Bot struct {
	api *tgbotapi.BotAPI
}

func NewBot(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Telegram bot: %w", err)
	}
	logrus.Infof("Telegram bot authorised as %s", api.Self.UserName)
	return &Bot{api: api}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// SetupWebhook points Telegram at https://<host>:<port>/webhook.
func (b *Bot) SetupWebhook(host, port string) error {
	webhookConfig, err := tgbotapi.NewWebhook(fmt.Sprintf("https://%s:%s/webhook", host, port))
	if err != nil {
		return fmt.Errorf("failed to build webhook config: %w", err)
	}
	if _, err := b.api.Request(webhookConfig); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) FileURL(fileID string) (string, error) {
	return b.api.GetFileDirectURL(fileID)
}
