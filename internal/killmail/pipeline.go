// Package killmail implements the region kill watcher: list recent
// kills per region, enrich them through ESI, filter by region and
// value, and notify accepted kills exactly once.
package killmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eve_bot/internal/esi"
	"eve_bot/internal/model"
	"eve_bot/internal/storage"
)

// Per-tick cap on candidates run through the accept pipeline per region.
const perTickCap = 50

// Sender delivers a notification message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Enricher resolves kill details, regions, and display names.
// Implemented by esi.Client.
type Enricher interface {
	KillmailDetail(ctx context.Context, killID int64, hash string) (*esi.Killmail, error)
	RegionID(ctx context.Context, systemID int64) (int64, error)
	Name(ctx context.Context, category esi.Category, id int64) (string, error)
}

// Lister fetches the recent kill listing for a region.
// Implemented by ZKillClient.
type Lister interface {
	RegionKills(ctx context.Context, regionID int64) ([]KillRef, error)
}

// Pipeline polls configured regions and notifies valuable kills.
type Pipeline struct {
	store  storage.Storage
	lister Lister
	esi    Enricher
	sender Sender
	log    *slog.Logger

	rules  Rules
	chatID int64
	tick   time.Duration
}

// New creates a Pipeline with the default 1-minute check interval.
func New(store storage.Storage, lister Lister, enricher Enricher, sender Sender, rules Rules, chatID int64, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		lister: lister,
		esi:    enricher,
		sender: sender,
		log:    log,
		rules:  rules,
		chatID: chatID,
		tick:   time.Minute,
	}
}

// SetTickInterval overrides the default check interval.
func (p *Pipeline) SetTickInterval(d time.Duration) {
	p.tick = d
}

// Run starts the watcher loop, blocking until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	p.checkAll(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkAll(ctx)
		}
	}
}

func (p *Pipeline) checkAll(ctx context.Context) {
	for _, regionID := range p.rules.Regions {
		if ctx.Err() != nil {
			return
		}
		p.checkRegion(ctx, regionID)
	}
}

func watermarkSource(regionID int64) string {
	return fmt.Sprintf("kills:region:%d", regionID)
}

// checkRegion scans one region's listing newest to oldest. The scan
// stops at the first already-processed or older-than-watermark kill:
// the listing is ordered by recency, so everything past that point was
// handled on an earlier tick. If the feed ever returns entries out of
// order, older unseen kills below the watermark are skipped for good.
func (p *Pipeline) checkRegion(ctx context.Context, regionID int64) {
	refs, err := p.lister.RegionKills(ctx, regionID)
	if err != nil {
		p.log.Warn("list region kills", "region_id", regionID, "error", err)
		return
	}

	// The scan compares against the watermark as of tick start; the
	// persisted mark still advances per accepted kill. Comparing
	// against a mid-tick mark would end the scan after the first
	// accepted kill, since the listing runs newest to oldest.
	baseline, err := p.store.GetWatermark(ctx, watermarkSource(regionID))
	if err != nil {
		p.log.Error("get watermark", "region_id", regionID, "error", err)
		return
	}
	latest := baseline

	processed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		if processed >= perTickCap {
			break
		}

		known, err := p.store.IsKillProcessed(ctx, ref.KillmailID)
		if err != nil {
			p.log.Error("check kill", "kill_id", ref.KillmailID, "error", err)
			continue
		}
		if known {
			break
		}

		detail, err := p.esi.KillmailDetail(ctx, ref.KillmailID, ref.Hash)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				p.log.Warn("killmail detail missing", "kill_id", ref.KillmailID)
			} else {
				p.log.Warn("fetch killmail detail", "kill_id", ref.KillmailID, "error", err)
			}
			continue
		}

		if baseline != nil && !detail.KillmailTime.After(baseline.LastSeenAt) {
			break
		}

		p.processKill(ctx, regionID, ref, detail, &latest)
		processed++
	}

	if processed > 0 {
		p.log.Info("region scan complete", "region_id", regionID, "processed", processed)
	}
}

// processKill runs the accept filter for one unseen, recent kill.
// Only accepted kills enter the ledger and advance the watermark.
func (p *Pipeline) processKill(ctx context.Context, regionID int64, ref KillRef, detail *esi.Killmail, wm **model.Watermark) {
	resolvedRegion, err := p.esi.RegionID(ctx, detail.SolarSystemID)
	if err != nil {
		p.log.Warn("resolve region", "kill_id", ref.KillmailID, "system_id", detail.SolarSystemID, "error", err)
		return
	}

	if !p.rules.Accept(resolvedRegion, ref.TotalValue) {
		p.log.Debug("kill rejected", "kill_id", ref.KillmailID, "region_id", resolvedRegion, "value", ref.TotalValue)
		return
	}

	if err := p.store.MarkKillProcessed(ctx, ref.KillmailID, detail.KillmailTime); err != nil {
		p.log.Error("mark kill processed", "kill_id", ref.KillmailID, "error", err)
		return
	}

	text, err := p.formatNotice(ctx, ref, detail, resolvedRegion)
	if err != nil {
		p.log.Warn("format kill notice", "kill_id", ref.KillmailID, "error", err)
		text = fmt.Sprintf("Valuable kill detected: https://zkillboard.com/kill/%d/", ref.KillmailID)
	}
	if err := p.sender.SendMessage(p.chatID, text); err != nil {
		p.log.Error("send kill notification", "kill_id", ref.KillmailID, "error", err)
	}

	if err := p.advanceWatermark(ctx, regionID, ref, detail.KillmailTime, wm); err != nil {
		p.log.Error("advance watermark", "region_id", regionID, "error", err)
	}
}

// advanceWatermark tracks the latest accepted kill per region; it
// never moves backwards.
func (p *Pipeline) advanceWatermark(ctx context.Context, regionID int64, ref KillRef, at time.Time, wm **model.Watermark) error {
	if *wm != nil && at.Before((*wm).LastSeenAt) {
		return nil
	}
	next := model.Watermark{
		SourceID:    watermarkSource(regionID),
		LastSeenKey: fmt.Sprintf("%d", ref.KillmailID),
		LastSeenAt:  at,
	}
	if err := p.store.SetWatermark(ctx, next); err != nil {
		return err
	}
	*wm = &next
	return nil
}
