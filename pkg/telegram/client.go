// Package telegram sends HTML-formatted notifications to a single chat
// through the Telegram Bot API.
package telegram

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.telegram.org"

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = eris.New("telegram: not configured, set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")

// Client sends messages to the configured chat.
type Client interface {
	// IsConfigured reports whether a bot token and a chat id are present.
	IsConfigured() bool
	// SendHTML sends text with HTML parse mode. The caller escapes user input.
	SendHTML(ctx context.Context, text string) error
}

// Option configures the Telegram client.
type Option func(*botClient)

// WithBaseURL sets the Bot API origin (for testing).
func WithBaseURL(url string) Option {
	return func(c *botClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *botClient) {
		c.http = hc
	}
}

type botClient struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Telegram client for one bot and one target chat. The
// chat id is either numeric or a public @channel username.
func NewClient(token, chatID string, opts ...Option) Client {
	c := &botClient{
		token:   strings.TrimSpace(token),
		chatID:  strings.TrimSpace(chatID),
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *botClient) IsConfigured() bool {
	return c.token != "" && c.chatID != ""
}

func (c *botClient) SendHTML(ctx context.Context, text string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	msg := c.message(text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := c.bot(ctx).Send(msg); err != nil {
		return eris.Wrap(err, "telegram: send message")
	}
	return nil
}

func (c *botClient) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(c.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	username := c.chatID
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	return tgbotapi.NewMessageToChannel(username, text)
}

// bot builds a BotAPI bound to ctx. NewBotAPI would call getMe first, which
// is one more round trip per notification than needed.
func (c *botClient) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.token,
		Buffer: 100,
		Client: ctxDoer{ctx: ctx, client: c.http},
	}
	bot.SetAPIEndpoint(c.baseURL + "/bot%s/%s")
	return bot
}

// ctxDoer attaches ctx to requests the Bot API library builds without one.
type ctxDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}
