package main

import (
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AlertService sends one-way operational alerts (stream loss, fatal auth
// failures) to a Telegram admin chat. Without a token it stays disabled and
// every Notify is a no-op.
type AlertService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewAlertService(apiKey, adminChatID string) (*AlertService, error) {
	if apiKey == "" || adminChatID == "" {
		log.Println("Telegram alerts disabled, no api key or admin chat configured")
		return &AlertService{}, nil
	}

	chatID, err := strconv.ParseInt(adminChatID, 10, 64)
	if err != nil {
		return nil, err
	}

	bot, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}

	log.Printf("Telegram alerts enabled for chat %d", chatID)
	return &AlertService{bot: bot, chatID: chatID}, nil
}

func (a *AlertService) Notify(message string) {
	if a.bot == nil {
		return
	}

	msg := tgbotapi.NewMessage(a.chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := a.bot.Send(msg); err != nil {
		log.Printf("Error sending telegram alert: %v", err)
	}
}
