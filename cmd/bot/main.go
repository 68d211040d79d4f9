package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eve_bot/internal/bot"
	"eve_bot/internal/config"
	"eve_bot/internal/esi"
	"eve_bot/internal/fetcher"
	"eve_bot/internal/killmail"
	"eve_bot/internal/model"
	"eve_bot/internal/poll"
	"eve_bot/internal/poller"
	"eve_bot/internal/scheduler"
	"eve_bot/internal/storage"
)

var newsFeeds = []struct {
	ID  string
	URL string
}{
	{"patch-notes", "https://www.eveonline.com/rss/patch-notes"},
	{"dev-blogs", "https://www.eveonline.com/rss/dev-blogs"},
	{"news", "https://www.eveonline.com/rss/news"},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	sched := scheduler.New(store, log)
	esiClient := esi.New(http.DefaultClient)

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, sched, esiClient, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	polls := poll.New(store, sched, b, log)
	b.SetPollEngine(polls)

	sched.Handle(model.KindReminder, func(ctx context.Context, a model.ScheduledAction) error {
		var p model.ReminderPayload
		if err := model.DecodePayload(a.Payload, &p); err != nil {
			return err
		}
		return b.SendDirectMessage(a.OwnerID, fmt.Sprintf("Reminder: %s", p.Message))
	})
	sched.Handle(model.KindTimer, func(ctx context.Context, a model.ScheduledAction) error {
		var p model.TimerPayload
		if err := model.DecodePayload(a.Payload, &p); err != nil {
			return err
		}
		if err := b.SendDirectMessage(a.OwnerID, fmt.Sprintf("Timer finished: %s", p.Label)); err != nil {
			return err
		}
		return store.IncrementCounter(ctx, model.CounterTimersProcessed)
	})
	sched.Handle(model.KindPollExpiry, func(ctx context.Context, a model.ScheduledAction) error {
		var p model.PollExpiryPayload
		if err := model.DecodePayload(a.Payload, &p); err != nil {
			return err
		}
		return polls.Expire(ctx, p.PollID)
	})

	newsFetcher := fetcher.New(http.DefaultClient)
	feeds := poller.New(store, b, log)
	for _, feed := range newsFeeds {
		url := feed.URL
		feeds.Register(poller.Source{
			ID:             feed.ID,
			ChatID:         cfg.NewsChatID,
			Interval:       time.Duration(cfg.NewsIntervalMinutes) * time.Minute,
			BootstrapLimit: cfg.BootstrapLimit,
			Fetch: func(ctx context.Context) ([]model.Candidate, error) {
				return newsFetcher.Fetch(ctx, url)
			},
			Format: bot.FormatNewsItem,
		})
	}

	kills := killmail.New(
		store,
		killmail.NewZKillClient(http.DefaultClient),
		esiClient,
		b,
		killmail.Rules{Regions: cfg.RegionIDs, MinValue: cfg.MinKillValue},
		cfg.KillsChatID,
		log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"feeds", len(newsFeeds),
		"kill_regions", len(cfg.RegionIDs),
	)

	go sched.Run(ctx)
	go feeds.Run(ctx)
	if len(cfg.RegionIDs) > 0 {
		go kills.Run(ctx)
	}

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
