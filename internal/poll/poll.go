// Package poll runs chat polls: creation, vote recording, and the
// expiry that tallies and publishes results.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"eve_bot/internal/duration"
	"eve_bot/internal/model"
	"eve_bot/internal/storage"
)

const (
	minOptions = 2
	maxOptions = 10
)

// Publisher posts poll messages to the chat. Implemented by the bot.
type Publisher interface {
	PublishPoll(p *model.Poll) (messageID int, err error)
	PublishResults(p *model.Poll, results []Result) error
}

// Scheduler books the deferred expiry action for a poll.
type Scheduler interface {
	ScheduleAt(ctx context.Context, ownerID int64, dueAt time.Time, kind model.ActionKind, payload string) (*model.ScheduledAction, error)
}

// Result is one option's final tally.
type Result struct {
	Option model.PollOption
	Count  int
}

// Engine owns the poll lifecycle.
type Engine struct {
	store storage.Storage
	sched Scheduler
	pub   Publisher
	log   *slog.Logger
}

func New(store storage.Storage, sched Scheduler, pub Publisher, log *slog.Logger) *Engine {
	return &Engine{
		store: store,
		sched: sched,
		pub:   pub,
		log:   log.With("component", "poll"),
	}
}

// Create validates, persists, and publishes a new poll, and books its
// expiry. Option keys are positional and stable for the poll's life.
func (e *Engine) Create(ctx context.Context, creatorID, chatID int64, durationStr, question string, options []string) (*model.Poll, error) {
	if len(options) < minOptions || len(options) > maxOptions {
		return nil, model.ErrInvalidOptionCount
	}

	d, err := duration.Parse(durationStr)
	if err != nil {
		return nil, err
	}

	opts := make([]model.PollOption, 0, len(options))
	for i, label := range options {
		opts = append(opts, model.PollOption{
			Key:   fmt.Sprintf("opt%d", i+1),
			Label: label,
		})
	}

	now := time.Now().UTC()
	p := &model.Poll{
		CreatorID: creatorID,
		Question:  question,
		Options:   opts,
		CreatedAt: now,
		ExpiresAt: now.Add(d),
		ChatID:    chatID,
	}
	if err := e.store.CreatePoll(ctx, p); err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}

	messageID, err := e.pub.PublishPoll(p)
	if err != nil {
		return nil, fmt.Errorf("publish poll %d: %w", p.ID, err)
	}
	p.MessageID = messageID
	if err := e.store.SetPollMessage(ctx, p.ID, messageID); err != nil {
		return nil, fmt.Errorf("set poll message: %w", err)
	}

	payload, err := model.EncodePayload(model.PollExpiryPayload{PollID: p.ID})
	if err != nil {
		return nil, err
	}
	if _, err := e.sched.ScheduleAt(ctx, creatorID, p.ExpiresAt, model.KindPollExpiry, payload); err != nil {
		return nil, fmt.Errorf("schedule expiry for poll %d: %w", p.ID, err)
	}

	e.log.Info("poll created",
		"poll_id", p.ID,
		"creator_id", creatorID,
		"options", len(opts),
		"expires_at", p.ExpiresAt,
	)
	return p, nil
}

// RecordVote stores the voter's current choice, replacing any earlier
// one. Returns the chosen option for the acknowledgement text.
func (e *Engine) RecordVote(ctx context.Context, pollID, voterID int64, optionKey string) (model.PollOption, error) {
	p, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return model.PollOption{}, err
	}
	opt, ok := p.OptionByKey(optionKey)
	if !ok {
		return model.PollOption{}, model.ErrNotFound
	}
	err = e.store.UpsertVote(ctx, model.Vote{
		PollID:    pollID,
		VoterID:   voterID,
		OptionKey: optionKey,
	})
	if err != nil {
		return model.PollOption{}, fmt.Errorf("record vote: %w", err)
	}
	return opt, nil
}

// Expire tallies and publishes the final results, then removes the
// poll and its votes. A poll that is already gone is not an error.
func (e *Engine) Expire(ctx context.Context, pollID int64) error {
	p, err := e.store.GetPoll(ctx, pollID)
	if errors.Is(err, model.ErrNotFound) {
		e.log.Warn("expiry for missing poll", "poll_id", pollID)
		return nil
	}
	if err != nil {
		return err
	}

	counts, err := e.store.TallyVotes(ctx, pollID)
	if err != nil {
		return fmt.Errorf("tally poll %d: %w", pollID, err)
	}

	results := make([]Result, 0, len(p.Options))
	for _, opt := range p.Options {
		results = append(results, Result{Option: opt, Count: counts[opt.Key]})
	}
	// Highest count first; equal counts keep declaration order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Count > results[j].Count
	})

	if err := e.pub.PublishResults(p, results); err != nil {
		return fmt.Errorf("publish results for poll %d: %w", pollID, err)
	}

	if err := e.store.DeletePoll(ctx, pollID); err != nil {
		return fmt.Errorf("delete poll %d: %w", pollID, err)
	}
	e.log.Info("poll expired", "poll_id", pollID, "votes", len(counts))
	return nil
}
