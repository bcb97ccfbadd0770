package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token   string
	Debug   bool
	Timeout time.Duration
}

// Bot telegram delivery client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig
}

// ChannelInfo identity metadata returned by a connectivity test
type ChannelInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
}
