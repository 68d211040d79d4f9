package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eve_bot/internal/model"
	"eve_bot/internal/poll"
)

const voteAction = "vote"

// voteCallbackData builds the callback payload carried by a vote
// button: "vote:<poll_id>:<option_key>".
func voteCallbackData(pollID int64, optionKey string) string {
	return fmt.Sprintf("%s:%d:%s", voteAction, pollID, optionKey)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data

	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != voteAction {
		b.ackCallback(cb.ID, "")
		return
	}
	pollID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.ackCallback(cb.ID, "")
		return
	}
	optionKey := parts[2]
	voterID := cb.From.ID

	b.log.Info("vote",
		"poll_id", pollID,
		"option_key", optionKey,
		"user_id", voterID,
		"username", cb.From.UserName,
	)

	opt, err := b.polls.RecordVote(ctx, pollID, voterID, optionKey)
	if errors.Is(err, model.ErrNotFound) {
		b.ackCallback(cb.ID, "This poll is no longer open.")
		return
	}
	if err != nil {
		b.log.Error("record vote", "poll_id", pollID, "error", err)
		b.ackCallback(cb.ID, "Vote failed, try again.")
		return
	}
	b.ackCallback(cb.ID, fmt.Sprintf("Vote recorded: %s", opt.Label))
}

// ackCallback answers the callback query so the client stops showing
// the loading state. text, if set, pops up as a toast.
func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Send(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

// PublishPoll posts the poll with one vote button per option.
func (b *Bot) PublishPoll(p *model.Poll) (int, error) {
	msg := tgbotapi.NewMessage(p.ChatID, FormatPollMessage(p))

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range p.Options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt.Label, voteCallbackData(p.ID, opt.Key)),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("publish poll %d: %w", p.ID, err)
	}
	return sent.MessageID, nil
}

// PublishResults posts the final tally to the poll's chat.
func (b *Bot) PublishResults(p *model.Poll, results []poll.Result) error {
	return b.SendMessage(p.ChatID, FormatPollResults(p, results))
}
