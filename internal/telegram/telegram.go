// Package telegram connects the bot to Telegram via long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"timebot/internal/command"
	"timebot/internal/config"
	"timebot/internal/logging"
	"timebot/internal/metrics"
)

const platform = "telegram"

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}

	// Telegram only accepts reactions from a fixed emoji set.
	reactionEmoji = map[command.Reaction]string{
		command.ReactionAck:  "👍",
		command.ReactionDone: "👌",
	}
)

// Handler consumes inbound commands.
type Handler interface {
	Handle(ctx context.Context, msg command.Message)
}

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot     botAPI
	handler Handler
	logger  *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.defaultHandler),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Run receives updates via long polling, feeding commands to h, until the
// context is canceled.
func (c *Client) Run(ctx context.Context, h Handler) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client is not initialized")
	}
	if h == nil {
		return errors.New("handler is required")
	}
	c.handler = h

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
	return nil
}

// Post sends text to the chat whose decimal id is channel.
func (c *Client) Post(ctx context.Context, channel, text string) error {
	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", channel, err)
	}

	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

// React sets reaction on msg, mapped to a Telegram emoji.
func (c *Client) React(ctx context.Context, msg command.Message, reaction command.Reaction) error {
	chatID, err := strconv.ParseInt(msg.Channel, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.Channel, err)
	}
	messageID, err := strconv.Atoi(msg.Timestamp)
	if err != nil {
		return fmt.Errorf("telegram message id %q: %w", msg.Timestamp, err)
	}
	emoji, ok := reactionEmoji[reaction]
	if !ok {
		return fmt.Errorf("no telegram emoji for reaction %q", reaction)
	}

	_, err = c.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction: []models.ReactionType{{
			Type:              models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{Type: models.ReactionTypeTypeEmoji, Emoji: emoji},
		}},
	})
	if err != nil {
		return fmt.Errorf("telegram set reaction: %w", err)
	}
	return nil
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	updateType string
}

func (c *Client) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)

	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}
	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}
	c.logger.WithFields(fields).Debug("telegram update received")

	if c.handler == nil {
		return
	}
	if msg, ok := toMessage(update.Message); ok {
		c.handler.Handle(ctx, msg)
	}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     update.Message.Chat.ID,
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     update.EditedMessage.Chat.ID,
			text:       strings.TrimSpace(update.EditedMessage.Text),
			updateType: "edited_message",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func toMessage(msg *models.Message) (command.Message, bool) {
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return command.Message{}, false
	}
	if !command.Accepts(msg.Text) {
		return command.Message{}, false
	}

	return command.Message{
		Text:      msg.Text,
		Channel:   strconv.FormatInt(msg.Chat.ID, 10),
		User:      strconv.FormatInt(msg.From.ID, 10),
		UserName:  fullName(msg.From),
		Timestamp: strconv.Itoa(msg.ID),
		Direct:    msg.Chat.Type == models.ChatTypePrivate,
	}, true
}

func fullName(user *models.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		return user.Username
	}
	return name
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		metrics.ObserveReconnect(platform)
		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}
