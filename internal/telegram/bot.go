package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"defiwatch-telegram-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:    bot,
		Config: c,
	}, nil
}

// TestConnection verifies the bot token against the Telegram API and returns
// the bot's channel identity on success.
func (b *Bot) TestConnection() (*ChannelInfo, error) {
	me, err := b.Bot.GetMe()
	if err != nil {
		return nil, classifyError(err, "connectivity test failed")
	}

	return &ChannelInfo{
		ID:       me.ID,
		Username: me.UserName,
		IsBot:    me.IsBot,
	}, nil
}

// Send delivers message to target, a numeric chat ID or an @username handle,
// under the caller's deadline. The returned DispatchError distinguishes
// permanent delivery failures from transient ones so the caller can decide
// whether to retry. Alert state is never touched here.
func (b *Bot) Send(ctx context.Context, target, message string) error {
	chatID, err := b.resolveTarget(target)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"

	// tgbotapi has no context support; an abandoned call stays bounded by
	// the client timeout set in NewBot.
	done := make(chan error, 1)
	go func() {
		_, err := b.Bot.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return &types.DispatchError{
			Msg:       fmt.Sprintf("delivery to %s timed out", target),
			Transient: true,
			Err:       ctx.Err(),
		}
	case err := <-done:
		if err != nil {
			return classifyError(err, fmt.Sprintf("could not deliver message to %s", target))
		}
	}

	log.Debugf("message delivered to %s", target)
	return nil
}

// SendToUsername resolves a human-readable @handle to a chat and delivers
// message there. Fails with NotFound when the handle cannot be resolved.
func (b *Bot) SendToUsername(ctx context.Context, handle, message string) error {
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}

	chat, err := b.Bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: handle},
	})
	if err != nil {
		log.Debugf("failed to resolve handle %s: %v", handle, err)
		return types.NewNotFoundError("chat handle", handle)
	}

	return b.Send(ctx, strconv.FormatInt(chat.ID, 10), message)
}

// resolveTarget accepts a numeric chat ID directly and resolves @handles
// through the Telegram API.
func (b *Bot) resolveTarget(target string) (int64, error) {
	if chatID, err := strconv.ParseInt(target, 10, 64); err == nil {
		return chatID, nil
	}

	if strings.HasPrefix(target, "@") {
		chat, err := b.Bot.GetChat(tgbotapi.ChatInfoConfig{
			ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: target},
		})
		if err != nil {
			return 0, types.NewNotFoundError("chat handle", target)
		}
		return chat.ID, nil
	}

	return 0, &types.DispatchError{Msg: "invalid notify target: " + target, Transient: false}
}

// classifyError maps a Telegram API failure onto the dispatch taxonomy.
// 4xx responses (unknown chat, blocked bot, bad token) are permanent; 5xx
// and transport failures are transient.
func classifyError(err error, msg string) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		transient := apiErr.Code >= 500 || apiErr.Code == 429
		return &types.DispatchError{
			Msg:       fmt.Sprintf("%s (telegram %d: %s)", msg, apiErr.Code, apiErr.Message),
			Transient: transient,
			Err:       err,
		}
	}

	return &types.DispatchError{Msg: msg, Transient: true, Err: err}
}
