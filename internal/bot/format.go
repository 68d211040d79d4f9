package bot

import (
	"fmt"
	"strings"
	"time"

	"eve_bot/internal/esi"
	"eve_bot/internal/model"
	"eve_bot/internal/poll"
)

// FormatNewsItem formats a feed item as a chat notification. Wired as
// the Format callback of the news sources.
func FormatNewsItem(sourceID string, c model.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", sourceID)
	b.WriteString(c.Title)
	if c.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(c.Link)
	}
	return b.String()
}

// FormatStatus renders server status plus the bot's own feed and
// scheduler state. status may be nil when ESI is unreachable.
func FormatStatus(status *esi.Status, watermarks []model.Watermark, pending map[model.ActionKind]int) string {
	var b strings.Builder

	if status == nil {
		b.WriteString("Tranquility: unreachable\n")
	} else {
		fmt.Fprintf(&b, "Tranquility: %d players online (server %s)\n", status.Players, status.ServerVersion)
		fmt.Fprintf(&b, "Started: %s\n", status.StartTime.Format("2006-01-02 15:04 UTC"))
	}

	fmt.Fprintf(&b, "\nPending: %d reminders, %d timers, %d polls\n",
		pending[model.KindReminder], pending[model.KindTimer], pending[model.KindPollExpiry])

	if len(watermarks) > 0 {
		b.WriteString("\nFeeds:\n")
		for _, w := range watermarks {
			fmt.Fprintf(&b, "  %s — last item %s\n", w.SourceID, w.LastSeenAt.Format("2006-01-02 15:04 UTC"))
		}
	}
	return b.String()
}

// FormatConfessionList renders the moderation view of stored
// confessions, submitter included.
func FormatConfessionList(confessions []model.Confession) string {
	if len(confessions) == 0 {
		return "No confessions stored."
	}
	var b strings.Builder
	b.WriteString("Stored confessions:\n")
	for _, c := range confessions {
		fmt.Fprintf(&b, "\n#%d by %s at %s:\n%s\n",
			c.ID, c.Username, c.SubmittedAt.Format("2006-01-02 15:04 UTC"), c.Confession)
	}
	return b.String()
}

var worldClockZones = []struct {
	Label string
	Zone  string
}{
	{"EVE time (UTC)", "UTC"},
	{"London", "Europe/London"},
	{"Berlin", "Europe/Berlin"},
	{"Moscow", "Europe/Moscow"},
	{"New York", "America/New_York"},
	{"Los Angeles", "America/Los_Angeles"},
	{"Sydney", "Australia/Sydney"},
}

// FormatWorldClock renders the current time across the zones the
// community spans. Zones missing from the host's tzdata are skipped.
func FormatWorldClock(now time.Time) string {
	var b strings.Builder
	for _, z := range worldClockZones {
		loc, err := time.LoadLocation(z.Zone)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", z.Label, now.In(loc).Format("Mon 15:04"))
	}
	return b.String()
}

// FormatPollMessage renders the poll announcement text. Vote buttons
// are attached separately.
func FormatPollMessage(p *model.Poll) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Poll: %s\n", p.Question)
	for i, opt := range p.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt.Label)
	}
	fmt.Fprintf(&b, "\nVoting closes at %s.", p.ExpiresAt.Format("2006-01-02 15:04 UTC"))
	return b.String()
}

// FormatPollResults renders the final tally, winner first.
func FormatPollResults(p *model.Poll, results []poll.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Poll closed: %s\n", p.Question)
	for i, r := range results {
		if i == 0 && r.Count > 0 {
			fmt.Fprintf(&b, "Winner: %s with %d vote(s)\n", r.Option.Label, r.Count)
			continue
		}
		fmt.Fprintf(&b, "%s: %d vote(s)\n", r.Option.Label, r.Count)
	}
	return b.String()
}
