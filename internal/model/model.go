// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candidate is one fetched record from an external feed, before dedup.
type Candidate struct {
	Key         string
	Title       string
	Link        string
	PublishedAt time.Time
}

// SeenItem is one row of the append-only dedup ledger.
type SeenItem struct {
	SourceID    string
	NaturalKey  string
	FirstSeenAt time.Time
	Delivered   bool
}

// Watermark tracks the latest accepted item per feed source.
// LastSeenAt never decreases once a source has been processed.
type Watermark struct {
	SourceID    string
	LastSeenKey string
	LastSeenAt  time.Time
}

// ActionKind identifies the delivery callback for a scheduled action.
type ActionKind string

// Supported action kinds.
const (
	KindReminder   ActionKind = "reminder"
	KindTimer      ActionKind = "timer"
	KindPollExpiry ActionKind = "poll_expiry"
)

// ScheduledAction is a persisted "do X at time T" record. DueAt is
// immutable after creation; the row is deleted once the action fires.
type ScheduledAction struct {
	ID        int64
	OwnerID   int64
	Kind      ActionKind
	DueAt     time.Time
	Payload   string
	CreatedAt time.Time
}

// ReminderPayload is the payload for KindReminder actions.
type ReminderPayload struct {
	Message string `json:"message"`
}

// TimerPayload is the payload for KindTimer actions.
type TimerPayload struct {
	Label string `json:"label"`
}

// PollExpiryPayload is the payload for KindPollExpiry actions.
type PollExpiryPayload struct {
	PollID int64 `json:"poll_id"`
}

// EncodePayload serializes an action payload to its stored form.
func EncodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload deserializes a stored action payload into v.
func DecodePayload(payload string, v any) error {
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// PollOption is a single poll choice. Key is the stable vote
// identifier, Label the display text.
type PollOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Poll is a running poll. Options is an ordered list, persisted as
// JSON, never reconstructed from display text.
type Poll struct {
	ID        int64
	CreatorID int64
	Question  string
	Options   []PollOption
	CreatedAt time.Time
	ExpiresAt time.Time
	ChatID    int64
	MessageID int
}

// OptionByKey returns the option with the given key, or false.
func (p *Poll) OptionByKey(key string) (PollOption, bool) {
	for _, o := range p.Options {
		if o.Key == key {
			return o, true
		}
	}
	return PollOption{}, false
}

// Vote is one user's current choice in a poll. (PollID, VoterID) is
// unique; a second vote overwrites the first.
type Vote struct {
	PollID    int64
	VoterID   int64
	OptionKey string
}

// Confession is an anonymously posted message. The submitting username
// is stored for moderation but never published.
type Confession struct {
	ID          int64
	Username    string
	Confession  string
	SubmittedAt time.Time
}

// Names of persistent counters.
const (
	CounterTimersCreated   = "timers_created"
	CounterTimersProcessed = "timers_processed"
)
