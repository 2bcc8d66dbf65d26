// Package telegram connects the conversation state machine to the Telegram
// Bot API over long polling.
package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ggonzalez94/walletbot/internal/bot"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/httpx"
	"github.com/rs/zerolog"
)

const (
	defaultPollTimeout = 60
	requestSlack       = 15 * time.Second
	apiRetries         = 2
)

// API is the part of *tgbotapi.BotAPI the transport uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Handler interface {
	Handle(ctx context.Context, ev bot.Event, out bot.Responder)
}

type Option func(*Transport)

func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(t *Transport) {
		if seconds > 0 {
			t.pollTimeout = seconds
		}
	}
}

type Transport struct {
	api         API
	handler     Handler
	log         zerolog.Logger
	pollTimeout int
	wg          sync.WaitGroup

	// queues holds pending events per user. A key is present while that
	// user's worker runs, so each user sees their events in arrival order.
	mu     sync.Mutex
	queues map[int64][]queued
}

type queued struct {
	ev  bot.Event
	out bot.Responder
}

// New authenticates the token against the Bot API.
func New(token string, handler Handler, opts ...Option) (*Transport, error) {
	if strings.TrimSpace(token) == "" {
		return nil, clierr.New(clierr.CodeConfig, "telegram bot token is required")
	}
	t := NewWithAPI(nil, handler, opts...)
	client := httpx.New(time.Duration(t.pollTimeout)*time.Second+requestSlack, apiRetries)
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect telegram bot api", err)
	}
	t.api = api
	t.log.Info().Str("username", api.Self.UserName).Msg("telegram bot connected")
	return t, nil
}

func NewWithAPI(api API, handler Handler, opts ...Option) *Transport {
	t := &Transport{api: api, handler: handler, log: zerolog.Nop(), pollTimeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run polls for updates until ctx is cancelled. Different users are handled
// concurrently; one user's updates run one at a time in arrival order. It
// returns after in-flight handlers finish.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)
	defer t.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.dispatch(ctx, update)
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if _, err := t.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			t.log.Warn().Err(err).Msg("acknowledge callback")
		}
	}
	ev, chatID, ok := EventFromUpdate(update)
	if !ok {
		return
	}
	t.enqueue(ctx, queued{ev: ev, out: &chatResponder{api: t.api, chatID: chatID}})
}

func (t *Transport) enqueue(ctx context.Context, job queued) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queues == nil {
		t.queues = make(map[int64][]queued)
	}
	pending, running := t.queues[job.ev.UserID]
	t.queues[job.ev.UserID] = append(pending, job)
	if running {
		return
	}
	t.wg.Add(1)
	go t.drain(ctx, job.ev.UserID)
}

// drain handles one user's queue until it is empty or ctx is done.
func (t *Transport) drain(ctx context.Context, userID int64) {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		pending := t.queues[userID]
		if len(pending) == 0 || ctx.Err() != nil {
			if len(pending) > 0 {
				t.log.Debug().Int64("user_id", userID).Int("dropped", len(pending)).Msg("shutdown with queued updates")
			}
			delete(t.queues, userID)
			t.mu.Unlock()
			return
		}
		next := pending[0]
		t.queues[userID] = pending[1:]
		t.mu.Unlock()
		t.handler.Handle(ctx, next.ev, next.out)
	}
}

// EventFromUpdate maps a message or callback update to a bot event and the
// chat to answer in. Updates without a sender or text are skipped.
func EventFromUpdate(update tgbotapi.Update) (bot.Event, int64, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil {
			return bot.Event{}, 0, false
		}
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		return bot.Event{UserID: cb.From.ID, Kind: bot.EventButton, Data: cb.Data}, chatID, true
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return bot.Event{}, 0, false
	}
	if msg.IsCommand() {
		return bot.Event{UserID: msg.From.ID, Kind: bot.EventCommand, Data: msg.Command()}, msg.Chat.ID, true
	}
	if strings.TrimSpace(msg.Text) == "" {
		return bot.Event{}, 0, false
	}
	ev := bot.Event{UserID: msg.From.ID, Kind: bot.EventText, Data: msg.Text}
	if msg.ReplyToMessage != nil {
		ev.ReplyToText = msg.ReplyToMessage.Text
	}
	return ev, msg.Chat.ID, true
}

type chatResponder struct {
	api    API
	chatID int64
}

func (r *chatResponder) Reply(_ context.Context, msg bot.Message) error {
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	if _, err := r.api.Send(Render(r.chatID, msg)); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "send telegram message", err)
	}
	return nil
}

// Render builds the outgoing message with its inline keyboard.
func Render(chatID int64, msg bot.Message) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, msg.Text)
	if len(msg.Keyboard) == 0 {
		return out
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Keyboard))
	for _, row := range msg.Keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return out
}
