// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"eve_bot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// Dedup ledger and per-source watermarks.
	SeenState(ctx context.Context, sourceID, naturalKey string) (seen, delivered bool, err error)
	InsertSeen(ctx context.Context, sourceID, naturalKey string, delivered bool) error
	MarkDelivered(ctx context.Context, sourceID, naturalKey string) error
	CountSeen(ctx context.Context, sourceID string) (int, error)
	GetWatermark(ctx context.Context, sourceID string) (*model.Watermark, error)
	SetWatermark(ctx context.Context, w model.Watermark) error
	ListWatermarks(ctx context.Context) ([]model.Watermark, error)

	// Scheduled actions.
	CreateAction(ctx context.Context, a *model.ScheduledAction) error
	GetAction(ctx context.Context, id int64) (*model.ScheduledAction, error)
	ListDueActions(ctx context.Context, now time.Time) ([]model.ScheduledAction, error)
	DeleteAction(ctx context.Context, id int64) error
	CountPendingActions(ctx context.Context, kind model.ActionKind, now time.Time) (int, error)

	// Polls and votes.
	CreatePoll(ctx context.Context, p *model.Poll) error
	GetPoll(ctx context.Context, id int64) (*model.Poll, error)
	SetPollMessage(ctx context.Context, id int64, messageID int) error
	UpsertVote(ctx context.Context, v model.Vote) error
	TallyVotes(ctx context.Context, pollID int64) (map[string]int, error)
	DeletePoll(ctx context.Context, id int64) error

	// Killmail ledger.
	IsKillProcessed(ctx context.Context, killID int64) (bool, error)
	MarkKillProcessed(ctx context.Context, killID int64, at time.Time) error

	// Confessions.
	CreateConfession(ctx context.Context, c *model.Confession) error
	ListConfessions(ctx context.Context) ([]model.Confession, error)
	DeleteConfession(ctx context.Context, id int64) error

	// Jokes and counters.
	RandomJoke(ctx context.Context) (string, error)
	RecordJokeRequest(ctx context.Context, userID int64, username string) error
	TotalJokeRequests(ctx context.Context) (int, error)
	IncrementCounter(ctx context.Context, name string) error
	GetCounter(ctx context.Context, name string) (int64, error)

	Close() error
}
