package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eve_bot/internal/duration"
	"eve_bot/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome, capsuleer!

I post EVE Online news, valuable killmails, and run polls, reminders,
and timers for this community.

Quick start:
1. /remind 1h check the market — get a private reminder
2. /create_poll 1d | Best frigate? | Rifter | Merlin — run a poll
3. /status — EVE server status

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Reminders and timers:
/remind <duration> <message> — private reminder after the duration
/start_timer <duration> <label> — timer with a notification at the end
/cancel_timer <id> — cancel one of your timers

Polls:
/create_poll <duration> | <question> | <option> | <option> ... — run a poll (2-10 options), vote with the buttons

Confessions:
/confess <message> — post anonymously to the confessions channel

Fun and info:
/joke — random joke
/jokestats — how many jokes have been told
/status — EVE server status and bot feed state
/time — current time in EVE time and common zones

Durations look like 30m, 1h30m, 2 days, 1w.`)
}

func (b *Bot) handleRemind(ctx context.Context, chatID, userID int64, args string) {
	durStr, message, err := ParseDurationAndText(args)
	if err != nil {
		b.reply(chatID, "Usage: /remind <duration> <message>")
		return
	}

	payload, err := model.EncodePayload(model.ReminderPayload{Message: message})
	if err != nil {
		b.reply(chatID, "Failed to save reminder.")
		return
	}

	a, err := b.sched.Schedule(ctx, userID, durStr, model.KindReminder, payload)
	if errors.Is(err, model.ErrInvalidDuration) {
		b.reply(chatID, fmt.Sprintf("I don't understand the duration %q. Try 30m, 1h30m, or 2 days.", durStr))
		return
	}
	if err != nil {
		b.reply(chatID, "Failed to save reminder.")
		return
	}

	described, _ := duration.Describe(durStr)
	b.reply(chatID, fmt.Sprintf("Got it. I'll remind you in %s (reminder #%d).", described, a.ID))
}

func (b *Bot) handleCreatePoll(ctx context.Context, chatID, userID int64, args string) {
	parsed, err := ParsePollCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	_, err = b.polls.Create(ctx, userID, chatID, parsed.Duration, parsed.Question, parsed.Options)
	switch {
	case errors.Is(err, model.ErrInvalidOptionCount):
		b.reply(chatID, "A poll needs between 2 and 10 options.")
	case errors.Is(err, model.ErrInvalidDuration):
		b.reply(chatID, fmt.Sprintf("I don't understand the duration %q. Try 30m, 1h30m, or 2 days.", parsed.Duration))
	case err != nil:
		b.log.Error("create poll", "error", err)
		b.reply(chatID, "Failed to create the poll.")
	}
}

func (b *Bot) handleStartTimer(ctx context.Context, chatID, userID int64, args string) {
	durStr, label, err := ParseDurationAndText(args)
	if err != nil {
		b.reply(chatID, "Usage: /start_timer <duration> <label>")
		return
	}

	payload, err := model.EncodePayload(model.TimerPayload{Label: label})
	if err != nil {
		b.reply(chatID, "Failed to start the timer.")
		return
	}

	a, err := b.sched.Schedule(ctx, userID, durStr, model.KindTimer, payload)
	if errors.Is(err, model.ErrInvalidDuration) {
		b.reply(chatID, fmt.Sprintf("I don't understand the duration %q. Try 30m, 1h30m, or 2 days.", durStr))
		return
	}
	if err != nil {
		b.reply(chatID, "Failed to start the timer.")
		return
	}

	if err := b.store.IncrementCounter(ctx, model.CounterTimersCreated); err != nil {
		b.log.Warn("increment timer counter", "error", err)
	}

	described, _ := duration.Describe(durStr)
	b.reply(chatID, fmt.Sprintf("Timer #%d set: %q in %s. Cancel with /cancel_timer %d.", a.ID, label, described, a.ID))
}

func (b *Bot) handleCancelTimer(ctx context.Context, chatID, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /cancel_timer <id>")
		return
	}

	switch err := b.sched.Cancel(ctx, id, userID); {
	case errors.Is(err, model.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Timer #%d not found.", id))
	case errors.Is(err, model.ErrUnauthorized):
		b.reply(chatID, fmt.Sprintf("Timer #%d is not yours to cancel.", id))
	case err != nil:
		b.reply(chatID, "Failed to cancel the timer.")
	default:
		b.reply(chatID, fmt.Sprintf("Timer #%d cancelled.", id))
	}
}

func (b *Bot) handleConfess(ctx context.Context, chatID int64, username, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /confess <message>")
		return
	}

	c := &model.Confession{Username: username, Confession: args}
	if err := b.store.CreateConfession(ctx, c); err != nil {
		b.reply(chatID, "Failed to save your confession.")
		return
	}

	if err := b.SendMessage(b.cfg.ConfessChatID, fmt.Sprintf("Confession #%d:\n\n%s", c.ID, args)); err != nil {
		b.log.Error("post confession", "confession_id", c.ID, "error", err)
		b.reply(chatID, "Saved, but I couldn't post to the confessions channel.")
		return
	}
	b.reply(chatID, "Your confession has been posted anonymously.")
}

func (b *Bot) handleViewConfessions(ctx context.Context, chatID, userID int64) {
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "Access denied.")
		return
	}

	confessions, err := b.store.ListConfessions(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatConfessionList(confessions))
}

func (b *Bot) handleDeleteConfession(ctx context.Context, chatID, userID int64, args string) {
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "Access denied.")
		return
	}

	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /delete_confession <id>")
		return
	}

	if err := b.store.DeleteConfession(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Confession #%d not found.", id))
		} else {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
		}
		return
	}
	b.reply(chatID, fmt.Sprintf("Confession #%d deleted.", id))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	status, err := b.esi.ServerStatus(ctx)
	if err != nil {
		b.log.Warn("server status", "error", err)
	}

	watermarks, err := b.store.ListWatermarks(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	now := time.Now().UTC()
	pending := map[model.ActionKind]int{}
	for _, kind := range []model.ActionKind{model.KindReminder, model.KindTimer, model.KindPollExpiry} {
		n, err := b.store.CountPendingActions(ctx, kind, now)
		if err != nil {
			continue
		}
		pending[kind] = n
	}

	b.reply(chatID, FormatStatus(status, watermarks, pending))
}

func (b *Bot) handleJoke(ctx context.Context, chatID, userID int64, username string) {
	joke, err := b.store.RandomJoke(ctx)
	if err != nil {
		b.reply(chatID, "I'm out of jokes.")
		return
	}
	if err := b.store.RecordJokeRequest(ctx, userID, username); err != nil {
		b.log.Warn("record joke request", "error", err)
	}
	b.reply(chatID, joke)
}

func (b *Bot) handleJokeStats(ctx context.Context, chatID int64) {
	total, err := b.store.TotalJokeRequests(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Jokes told so far: %d.", total))
}

func (b *Bot) handleTimerStats(ctx context.Context, chatID, userID int64) {
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "Access denied.")
		return
	}

	created, err := b.store.GetCounter(ctx, model.CounterTimersCreated)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	processed, err := b.store.GetCounter(ctx, model.CounterTimersProcessed)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Timers created: %d\nTimers processed: %d", created, processed))
}

func (b *Bot) handleTime(chatID int64) {
	b.reply(chatID, FormatWorldClock(time.Now()))
}
