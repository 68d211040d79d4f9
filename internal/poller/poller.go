// Package poller implements the generic fetch-dedup-notify engine.
// Each registered source runs on its own ticker; state lives entirely
// in the store, so a restart resumes where the last tick left off.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"eve_bot/internal/model"
	"eve_bot/internal/storage"
)

// Sender delivers a notification message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Source is one registered feed. Fetch returns a finite batch of
// candidates per call; Format renders an accepted candidate as a
// notification.
type Source struct {
	ID             string
	ChatID         int64
	Interval       time.Duration
	BootstrapLimit int
	Fetch          func(ctx context.Context) ([]model.Candidate, error)
	Format         func(sourceID string, c model.Candidate) string
}

// Poller runs registered sources concurrently and independently.
type Poller struct {
	store   storage.Storage
	sender  Sender
	log     *slog.Logger
	sources []Source
}

// New creates a Poller.
func New(store storage.Storage, sender Sender, log *slog.Logger) *Poller {
	return &Poller{store: store, sender: sender, log: log}
}

// Register adds a source. Must be called before Run.
func (p *Poller) Register(src Source) {
	if src.BootstrapLimit <= 0 {
		src.BootstrapLimit = 5
	}
	p.sources = append(p.sources, src)
}

// Run starts one loop per source and blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			p.runSource(ctx, src)
		}(src)
	}
	wg.Wait()
}

func (p *Poller) runSource(ctx context.Context, src Source) {
	p.tick(ctx, src)

	ticker := time.NewTicker(src.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, src)
		}
	}
}

// tick runs one fetch-dedup-notify pass for a source. A fetch failure
// ends the pass with nothing committed; the next tick proceeds on
// schedule.
func (p *Poller) tick(ctx context.Context, src Source) {
	candidates, err := src.Fetch(ctx)
	if err != nil {
		p.log.Warn("fetch source", "source", src.ID, "error", err)
		return
	}

	// Deliver oldest to newest so channel history reads chronologically.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PublishedAt.Before(candidates[j].PublishedAt)
	})

	count, err := p.store.CountSeen(ctx, src.ID)
	if err != nil {
		p.log.Error("count seen", "source", src.ID, "error", err)
		return
	}

	// First run for this source: record the whole batch but only
	// notify the newest BootstrapLimit items, so an empty ledger does
	// not flood the channel with historical backlog.
	if count == 0 && len(candidates) > src.BootstrapLimit {
		skip := candidates[:len(candidates)-src.BootstrapLimit]
		for _, c := range skip {
			if err := p.store.InsertSeen(ctx, src.ID, c.Key, true); err != nil {
				p.log.Error("insert seen", "source", src.ID, "key", c.Key, "error", err)
				return
			}
		}
		candidates = candidates[len(candidates)-src.BootstrapLimit:]
		p.log.Info("bootstrap", "source", src.ID, "skipped", len(skip), "delivering", len(candidates))
	}

	sent := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		delivered, err := p.processCandidate(ctx, src, c)
		if err != nil {
			p.log.Error("process candidate", "source", src.ID, "key", c.Key, "error", err)
			continue
		}
		if delivered {
			sent++
		}
	}

	if sent > 0 {
		p.log.Info("sent notifications", "source", src.ID, "count", sent)
	}
}

// processCandidate runs the dedup-then-deliver sequence for one item.
// Insert and mark-delivered are separate store operations with the
// delivery in between; a crash in that window is recovered on the next
// round trip because the item stays delivered=false.
func (p *Poller) processCandidate(ctx context.Context, src Source, c model.Candidate) (bool, error) {
	seen, delivered, err := p.store.SeenState(ctx, src.ID, c.Key)
	if err != nil {
		return false, err
	}
	if seen && delivered {
		return false, nil
	}

	if !seen {
		if err := p.store.InsertSeen(ctx, src.ID, c.Key, false); err != nil {
			return false, err
		}
	}

	if err := p.sender.SendMessage(src.ChatID, src.Format(src.ID, c)); err != nil {
		// Left undelivered; retried next time the item round-trips.
		p.log.Warn("deliver notification", "source", src.ID, "key", c.Key, "error", err)
		return false, nil
	}

	if err := p.store.MarkDelivered(ctx, src.ID, c.Key); err != nil {
		return false, err
	}
	if err := p.advanceWatermark(ctx, src.ID, c); err != nil {
		return false, err
	}
	return true, nil
}

// advanceWatermark moves a source's watermark forward, never back.
func (p *Poller) advanceWatermark(ctx context.Context, sourceID string, c model.Candidate) error {
	wm, err := p.store.GetWatermark(ctx, sourceID)
	if err != nil {
		return err
	}
	if wm != nil && c.PublishedAt.Before(wm.LastSeenAt) {
		return nil
	}
	return p.store.SetWatermark(ctx, model.Watermark{
		SourceID:    sourceID,
		LastSeenKey: c.Key,
		LastSeenAt:  c.PublishedAt,
	})
}
