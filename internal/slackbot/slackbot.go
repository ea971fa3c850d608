// Package slackbot connects the bot to Slack over Socket Mode.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"timebot/internal/command"
	"timebot/internal/config"
	"timebot/internal/feature/roster"
	"timebot/internal/logging"
	"timebot/internal/metrics"
)

const (
	platform          = "slack"
	slackbotUserID    = "USLACKBOT"
	directChannelType = "im"
)

type webAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
}

type eventSource interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
	Events() <-chan socketmode.Event
}

type socketModeClient struct {
	client *socketmode.Client
}

func (s socketModeClient) RunContext(ctx context.Context) error {
	return s.client.RunContext(ctx)
}

func (s socketModeClient) Ack(req socketmode.Request, payload ...interface{}) {
	s.client.Ack(req, payload...)
}

func (s socketModeClient) Events() <-chan socketmode.Event {
	return s.client.Events
}

var createClients = func(botToken, appToken string) (webAPI, eventSource) {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return api, socketModeClient{client: socketmode.New(api)}
}

// Handler consumes inbound commands.
type Handler interface {
	Handle(ctx context.Context, msg command.Message)
}

// Client wraps the Slack Web API and Socket Mode connection.
type Client struct {
	api       webAPI
	events    eventSource
	botUserID string
	logger    *logrus.Entry
}

// NewClient builds the Slack clients and resolves the bot's own user id via
// auth.test.
func NewClient(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.SlackBotToken) == "" {
		return nil, errors.New("slack bot token is required")
	}
	if strings.TrimSpace(cfg.SlackAppToken) == "" {
		return nil, errors.New("slack app token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	api, events := createClients(cfg.SlackBotToken, cfg.SlackAppToken)

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth test: %w", err)
	}

	logger.WithFields(logging.Fields{
		"event":       "slack_authenticated",
		"team":        auth.Team,
		"bot_user_id": auth.UserID,
	}).Info("authenticated with slack")

	return &Client{
		api:       api,
		events:    events,
		botUserID: auth.UserID,
		logger:    logger,
	}, nil
}

// Run connects over Socket Mode and feeds command messages to h until ctx is
// canceled or the connection gives up.
func (c *Client) Run(ctx context.Context, h Handler) error {
	if c == nil || c.events == nil {
		return errors.New("slack client is not initialized")
	}
	if h == nil {
		return errors.New("handler is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.events.RunContext(runCtx)
	}()

	c.logger.WithField("event", "slack_listen").Info("starting slack socket mode")

	events := c.events.Events()
	for {
		select {
		case <-ctx.Done():
			c.logger.WithField("event", "slack_stopped").Info("slack socket mode stopped")
			return nil
		case err := <-errCh:
			if ctx.Err() != nil {
				c.logger.WithField("event", "slack_stopped").Info("slack socket mode stopped")
				return nil
			}
			if err == nil {
				err = errors.New("socket mode connection closed")
			}
			return fmt.Errorf("slack socket mode: %w", err)
		case evt, ok := <-events:
			if !ok {
				return errors.New("slack event stream closed")
			}
			c.handleEvent(ctx, evt, h)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, evt socketmode.Event, h Handler) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		c.logger.WithField("event", "slack_connecting").Info("connecting to slack")
	case socketmode.EventTypeConnected:
		c.logger.WithField("event", "slack_connected").Info("connected to slack")
	case socketmode.EventTypeConnectionError, socketmode.EventTypeDisconnect:
		metrics.ObserveReconnect(platform)
		c.logger.WithFields(logging.Fields{
			"event": "slack_connection_lost",
			"type":  string(evt.Type),
		}).Warn("slack connection dropped, reconnecting")
	case socketmode.EventTypeInvalidAuth:
		c.logger.WithField("event", "slack_invalid_auth").Error("slack rejected the app token")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			c.events.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		msgEvent, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return
		}
		if msg, ok := c.toMessage(msgEvent); ok {
			h.Handle(ctx, msg)
		}
	}
}

func (c *Client) toMessage(ev *slackevents.MessageEvent) (command.Message, bool) {
	if ev == nil || ev.User == "" || ev.User == c.botUserID || ev.BotID != "" || ev.SubType != "" {
		return command.Message{}, false
	}
	if !command.Accepts(ev.Text) {
		return command.Message{}, false
	}

	return command.Message{
		Text:      ev.Text,
		Channel:   ev.Channel,
		User:      ev.User,
		Timestamp: ev.TimeStamp,
		Direct:    ev.ChannelType == directChannelType || strings.HasPrefix(ev.Channel, "D"),
	}, true
}

// Post sends text to channel.
func (c *Client) Post(ctx context.Context, channel, text string) error {
	if _, _, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack post message: %w", err)
	}
	return nil
}

// React adds reaction to msg.
func (c *Client) React(ctx context.Context, msg command.Message, reaction command.Reaction) error {
	if err := c.api.AddReactionContext(ctx, string(reaction), slack.NewRefToMessage(msg.Channel, msg.Timestamp)); err != nil {
		return fmt.Errorf("slack add reaction: %w", err)
	}
	return nil
}

// DisplayName looks up the member's real name, falling back to the handle.
func (c *Client) DisplayName(ctx context.Context, memberID string) (string, error) {
	user, err := c.api.GetUserInfoContext(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("slack user info: %w", err)
	}
	if user == nil {
		return "", nil
	}
	return displayName(*user), nil
}

// ListProfiles returns every human, non-deleted workspace member.
func (c *Client) ListProfiles(ctx context.Context) ([]roster.Profile, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack users list: %w", err)
	}

	profiles := make([]roster.Profile, 0, len(users))
	for _, u := range users {
		if u.IsBot || u.Deleted || u.ID == slackbotUserID {
			continue
		}
		profiles = append(profiles, roster.Profile{ID: u.ID, Name: displayName(u)})
	}
	return profiles, nil
}

func displayName(u slack.User) string {
	for _, name := range []string{u.RealName, u.Profile.RealName, u.Profile.DisplayName, u.Name} {
		if strings.TrimSpace(name) != "" {
			return name
		}
	}
	return u.ID
}
