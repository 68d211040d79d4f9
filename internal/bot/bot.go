package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eve_bot/internal/config"
	"eve_bot/internal/esi"
	"eve_bot/internal/poll"
	"eve_bot/internal/scheduler"
	"eve_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type statusClient interface {
	ServerStatus(ctx context.Context) (*esi.Status, error)
}

// Bot is the Telegram bot that handles user commands and delivers
// notifications for the background engines.
type Bot struct {
	api   telegramAPI
	store storage.Storage
	cfg   *config.Config
	sched *scheduler.Scheduler
	esi   statusClient
	polls *poll.Engine
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token. The poll engine is
// attached afterwards via SetPollEngine since it publishes through the
// bot itself.
func New(token string, store storage.Storage, cfg *config.Config, sched *scheduler.Scheduler, status statusClient, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		sched: sched,
		esi:   status,
		log:   log,
	}, nil
}

// SetPollEngine wires the poll engine. Must be called before Run.
func (b *Bot) SetPollEngine(polls *poll.Engine) {
	b.polls = polls
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// SendDirectMessage sends a private message to a user. Telegram
// addresses private chats by the user's id.
func (b *Bot) SendDirectMessage(userID int64, text string) error {
	return b.SendMessage(userID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.log.Error("reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", userID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "remind":
		b.handleRemind(ctx, chatID, userID, args)
	case "create_poll":
		b.handleCreatePoll(ctx, chatID, userID, args)
	case "start_timer":
		b.handleStartTimer(ctx, chatID, userID, args)
	case "cancel_timer":
		b.handleCancelTimer(ctx, chatID, userID, args)
	case "confess":
		b.handleConfess(ctx, chatID, msg.From.UserName, args)
	case "view_confessions":
		b.handleViewConfessions(ctx, chatID, userID)
	case "delete_confession":
		b.handleDeleteConfession(ctx, chatID, userID, args)
	case "status":
		b.handleStatus(ctx, chatID)
	case "joke":
		b.handleJoke(ctx, chatID, userID, msg.From.UserName)
	case "jokestats":
		b.handleJokeStats(ctx, chatID)
	case "timerstats":
		b.handleTimerStats(ctx, chatID, userID)
	case "time":
		b.handleTime(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
