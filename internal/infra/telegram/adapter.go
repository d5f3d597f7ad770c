// Package telegram is a Telegram front door: one external collaborator
// (spec §6) that turns incoming chats into actor Work() calls and relays
// EmaReplyReceived back to the user, grounded on the teacher's
// interfaces/telegram/adapter.go polling-loop shape.
package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/events"
	"github.com/Reynold-degenracy/EverMemoryArchive/pkg/safego"
)

// Config configures the Telegram adapter.
type Config struct {
	BotToken       string
	AllowedUserIDs []int64
	Debug          bool
}

// ActorPool is the subset of actor orchestration the adapter needs.
type ActorPool interface {
	Submit(ctx context.Context, actorID, userID, text string) error
	BusFor(actorID string) *eventbus.Bus
}

// Adapter polls Telegram for updates and dispatches each text message to
// one actor keyed by the chat ID, then relays that actor's replies back to
// the chat they came from.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	config Config
	pool   ActorPool
	logger *zap.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	watching map[int64]func() // chatID -> unsubscribe, so each chat's bus is only wired once
}

// NewAdapter builds an Adapter and authenticates the bot token.
func NewAdapter(config Config, pool ActorPool, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = config.Debug

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return &Adapter{bot: bot, config: config, pool: pool, logger: logger, watching: make(map[int64]func())}, nil
}

// Start begins long-polling for updates in the background.
func (a *Adapter) Start(ctx context.Context) error {
	innerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	a.logger.Info("starting Telegram polling")

	go func() {
		for {
			select {
			case <-innerCtx.Done():
				a.bot.StopReceivingUpdates()
				a.stopWatching()
				a.logger.Info("Telegram adapter stopped")
				return
			case update := <-updates:
				upd := update
				safego.Go(a.logger, "telegram-update", func() { a.handleUpdate(innerCtx, upd) })
			}
		}
	}()

	return nil
}

// Stop halts polling.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	if !a.isAllowed(update.Message.From.ID) {
		a.logger.Warn("rejected message from disallowed user", zap.Int64("userID", update.Message.From.ID))
		return
	}

	chatID := update.Message.Chat.ID
	actorID := fmt.Sprintf("telegram:%d", chatID)
	userID := fmt.Sprintf("%d", update.Message.From.ID)

	a.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	a.watchReplies(actorID, chatID)

	if err := a.pool.Submit(ctx, actorID, userID, update.Message.Text); err != nil {
		a.sendError(chatID, err)
	}
	// On a chat's first message the actor only exists once Submit has
	// created it, so the subscription is attempted again here.
	a.watchReplies(actorID, chatID)
}

// watchReplies subscribes to the actor's EmaReplyReceived events exactly
// once per chat. It does nothing while the chat's actor does not exist yet;
// events published before the subscription is made are not relayed.
func (a *Adapter) watchReplies(actorID string, chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.watching[chatID]; ok {
		return
	}

	bus := a.pool.BusFor(actorID)
	if bus == nil {
		return
	}

	unsubscribe := bus.Subscribe(events.TypeEmaReplyReceived, func(e eventbus.Event) {
		reply := e.(events.EmaReplyReceived).Reply
		if reply.Response == "" {
			return
		}
		if err := a.SendText(chatID, reply.Response); err != nil {
			a.logger.Error("failed to deliver reply", zap.Int64("chatID", chatID), zap.Error(err))
		}
	})
	a.watching[chatID] = unsubscribe
}

func (a *Adapter) stopWatching() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, unsubscribe := range a.watching {
		unsubscribe()
	}
	a.watching = make(map[int64]func())
}

func (a *Adapter) sendError(chatID int64, err error) {
	msg := tgbotapi.NewMessage(chatID, "Something went wrong: "+err.Error())
	if _, sendErr := a.bot.Send(msg); sendErr != nil {
		a.logger.Error("failed to send error message", zap.Error(sendErr))
	}
}

func (a *Adapter) isAllowed(userID int64) bool {
	if len(a.config.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range a.config.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SendText delivers text to a chat.
func (a *Adapter) SendText(chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
