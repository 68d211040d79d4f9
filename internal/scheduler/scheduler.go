// Package scheduler implements the persistent deferred-action engine
// behind reminders, timers, and poll expiry.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eve_bot/internal/duration"
	"eve_bot/internal/model"
	"eve_bot/internal/storage"
)

// Handler delivers one due action. A returned error is terminal for
// that delivery; the action row is deleted either way.
type Handler func(ctx context.Context, action model.ScheduledAction) error

// Scheduler persists "fire at time T" actions and executes them when due.
type Scheduler struct {
	store    storage.Storage
	log      *slog.Logger
	tick     time.Duration
	handlers map[model.ActionKind]Handler
}

// New creates a Scheduler with the default 10-second tick.
func New(store storage.Storage, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		log:      log,
		tick:     10 * time.Second,
		handlers: make(map[model.ActionKind]Handler),
	}
}

// SetTickInterval overrides the default due-scan interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Handle registers the delivery callback for an action kind. Must be
// called before Run.
func (s *Scheduler) Handle(kind model.ActionKind, h Handler) {
	s.handlers[kind] = h
}

// Schedule parses the duration string, persists an action due that far
// from now, and returns it. Returns model.ErrInvalidDuration when the
// duration string does not parse.
func (s *Scheduler) Schedule(ctx context.Context, ownerID int64, durationStr string, kind model.ActionKind, payload string) (*model.ScheduledAction, error) {
	d, err := duration.Parse(durationStr)
	if err != nil {
		return nil, err
	}
	return s.ScheduleAt(ctx, ownerID, time.Now().UTC().Add(d), kind, payload)
}

// ScheduleAt persists an action with an explicit due time.
func (s *Scheduler) ScheduleAt(ctx context.Context, ownerID int64, dueAt time.Time, kind model.ActionKind, payload string) (*model.ScheduledAction, error) {
	a := &model.ScheduledAction{
		OwnerID: ownerID,
		Kind:    kind,
		DueAt:   dueAt.UTC(),
		Payload: payload,
	}
	if err := s.store.CreateAction(ctx, a); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	s.log.Info("action scheduled", "action_id", a.ID, "kind", a.Kind, "due_at", a.DueAt, "owner_id", a.OwnerID)
	return a, nil
}

// Cancel deletes an action if the requester owns it. Returns
// model.ErrNotFound or model.ErrUnauthorized otherwise.
func (s *Scheduler) Cancel(ctx context.Context, actionID, requesterID int64) error {
	a, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return err
	}
	if a.OwnerID != requesterID {
		return model.ErrUnauthorized
	}
	if err := s.store.DeleteAction(ctx, actionID); err != nil {
		return err
	}
	s.log.Info("action cancelled", "action_id", actionID, "kind", a.Kind)
	return nil
}

// Run starts the due-scan loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// checkDue fires every action due at or before now. One action's
// failure never blocks the rest of the pass. Rows are deleted after
// the delivery attempt: undeliverable is terminal, not retried.
func (s *Scheduler) checkDue(ctx context.Context) {
	actions, err := s.store.ListDueActions(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("list due actions", "error", err)
		return
	}

	for _, a := range actions {
		if ctx.Err() != nil {
			return
		}

		h, ok := s.handlers[a.Kind]
		if !ok {
			s.log.Error("no handler for action kind", "action_id", a.ID, "kind", a.Kind)
		} else if err := h(ctx, a); err != nil {
			s.log.Error("deliver action", "action_id", a.ID, "kind", a.Kind, "error", err)
		}

		if err := s.store.DeleteAction(ctx, a.ID); err != nil {
			s.log.Error("delete action", "action_id", a.ID, "error", err)
		}
	}
}
