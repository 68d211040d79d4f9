package killmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"eve_bot/internal/esi"
	"eve_bot/internal/model"
	"eve_bot/internal/storage"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type fakeLister struct {
	refs map[int64][]KillRef
	err  error
}

func (f *fakeLister) RegionKills(_ context.Context, regionID int64) ([]KillRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refs[regionID], nil
}

// fakeEnricher resolves details from a fixed table and answers every
// name lookup with a placeholder.
type fakeEnricher struct {
	details map[int64]*esi.Killmail
	regions map[int64]int64 // system id -> region id
}

func (f *fakeEnricher) KillmailDetail(_ context.Context, killID int64, _ string) (*esi.Killmail, error) {
	d, ok := f.details[killID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return d, nil
}

func (f *fakeEnricher) RegionID(_ context.Context, systemID int64) (int64, error) {
	r, ok := f.regions[systemID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return r, nil
}

func (f *fakeEnricher) Name(_ context.Context, category esi.Category, id int64) (string, error) {
	return fmt.Sprintf("%s-%d", category, id), nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	testRegion = int64(10000025)
	testSystem = int64(30002187)
)

func killAt(id int64, t time.Time) *esi.Killmail {
	return &esi.Killmail{
		KillmailID:    id,
		KillmailTime:  t,
		SolarSystemID: testSystem,
		Victim:        esi.Victim{ShipTypeID: 670, CharacterID: 90000001, CorporationID: 98000001},
		Attackers:     []esi.Attacker{{CharacterID: 90000002, ShipTypeID: 17738, FinalBlow: true}},
	}
}

func at(offsetMinutes int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(offsetMinutes) * time.Minute)
}

func newTestPipeline(t *testing.T, store storage.Storage, lister Lister, enricher Enricher, sender Sender, minValue float64) *Pipeline {
	t.Helper()
	rules := Rules{Regions: []int64{testRegion}, MinValue: minValue}
	return New(store, lister, enricher, sender, rules, 555, testLogger())
}

func TestCheckRegionAcceptsValuableKill(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	lister := &fakeLister{refs: map[int64][]KillRef{
		testRegion: {{KillmailID: 1, Hash: "h1", TotalValue: 100_000_000}},
	}}
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{1: killAt(1, at(1))},
		regions: map[int64]int64{testSystem: testRegion},
	}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "zkillboard.com/kill/1/") {
		t.Errorf("notification missing kill link: %s", msgs[0].Text)
	}

	known, err := store.IsKillProcessed(ctx, 1)
	if err != nil {
		t.Fatalf("is kill processed: %v", err)
	}
	if !known {
		t.Error("expected kill 1 in the ledger")
	}
}

func TestCheckRegionRejectsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	lister := &fakeLister{refs: map[int64][]KillRef{
		testRegion: {{KillmailID: 1, Hash: "h1", TotalValue: 10_000}},
	}}
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{1: killAt(1, at(1))},
		regions: map[int64]int64{testSystem: testRegion},
	}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("expected no messages (-want +got):\n%s", diff)
	}

	// Rejected kills enter neither the ledger nor the watermark.
	known, err := store.IsKillProcessed(ctx, 1)
	if err != nil {
		t.Fatalf("is kill processed: %v", err)
	}
	if known {
		t.Error("rejected kill must not enter the ledger")
	}
	wm, err := store.GetWatermark(ctx, watermarkSource(testRegion))
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if wm != nil {
		t.Errorf("rejected kill must not advance the watermark, got %+v", wm)
	}
}

func TestCheckRegionStopsOnKnownKill(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	// Newest-first listing; kill 2 is already processed, so kill 1
	// behind it must never be examined.
	lister := &fakeLister{refs: map[int64][]KillRef{
		testRegion: {
			{KillmailID: 3, Hash: "h3", TotalValue: 100_000_000},
			{KillmailID: 2, Hash: "h2", TotalValue: 100_000_000},
			{KillmailID: 1, Hash: "h1", TotalValue: 100_000_000},
		},
	}}
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{
			3: killAt(3, at(3)),
			2: killAt(2, at(2)),
			1: killAt(1, at(1)),
		},
		regions: map[int64]int64{testSystem: testRegion},
	}

	if err := store.MarkKillProcessed(ctx, 2, at(2)); err != nil {
		t.Fatalf("mark kill processed: %v", err)
	}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(1, len(sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
	known, err := store.IsKillProcessed(ctx, 1)
	if err != nil {
		t.Fatalf("is kill processed: %v", err)
	}
	if known {
		t.Error("kill behind the stop point must not be processed")
	}
}

func TestCheckRegionStopsAtWatermark(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	if err := store.SetWatermark(ctx, model.Watermark{
		SourceID:    watermarkSource(testRegion),
		LastSeenKey: "2",
		LastSeenAt:  at(2),
	}); err != nil {
		t.Fatalf("set watermark: %v", err)
	}

	lister := &fakeLister{refs: map[int64][]KillRef{
		testRegion: {
			{KillmailID: 3, Hash: "h3", TotalValue: 100_000_000},
			{KillmailID: 1, Hash: "h1", TotalValue: 100_000_000},
		},
	}}
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{
			3: killAt(3, at(3)),
			1: killAt(1, at(1)), // older than the watermark
		},
		regions: map[int64]int64{testSystem: testRegion},
	}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(1, len(sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
}

func TestWatermarkMonotonicAcrossTicks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	lister := &fakeLister{refs: map[int64][]KillRef{}}
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{},
		regions: map[int64]int64{testSystem: testRegion},
	}
	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)

	// Interleaved accepted (valuable) and rejected (cheap) kills over
	// several ticks. The watermark must never decrease and must equal
	// the max accepted timestamp.
	ticks := []struct {
		id       int64
		minute   int
		value    float64
		accepted bool
	}{
		{id: 1, minute: 1, value: 100_000_000, accepted: true},
		{id: 2, minute: 2, value: 1_000, accepted: false},
		{id: 3, minute: 3, value: 200_000_000, accepted: true},
		{id: 4, minute: 4, value: 500, accepted: false},
	}

	var lastAcceptedAt time.Time
	for _, tick := range ticks {
		enricher.details[tick.id] = killAt(tick.id, at(tick.minute))
		lister.refs[testRegion] = []KillRef{{KillmailID: tick.id, Hash: "h", TotalValue: tick.value}}

		p.checkRegion(ctx, testRegion)

		if tick.accepted {
			lastAcceptedAt = at(tick.minute)
		}
		wm, err := store.GetWatermark(ctx, watermarkSource(testRegion))
		if err != nil {
			t.Fatalf("get watermark: %v", err)
		}
		if wm == nil {
			t.Fatalf("expected watermark after tick for kill %d", tick.id)
		}
		if !wm.LastSeenAt.Equal(lastAcceptedAt) {
			t.Errorf("after kill %d: watermark %v, want %v", tick.id, wm.LastSeenAt, lastAcceptedAt)
		}
	}
}

func TestCheckRegionHonorsPerTickCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	var refs []KillRef
	details := make(map[int64]*esi.Killmail)
	for i := 60; i >= 1; i-- {
		id := int64(i)
		refs = append(refs, KillRef{KillmailID: id, Hash: "h", TotalValue: 100_000_000})
		details[id] = killAt(id, at(i))
	}

	lister := &fakeLister{refs: map[int64][]KillRef{testRegion: refs}}
	enricher := &fakeEnricher{details: details, regions: map[int64]int64{testSystem: testRegion}}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(perTickCap, len(sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckRegionSkipsMissingDetail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	lister := &fakeLister{refs: map[int64][]KillRef{
		testRegion: {
			{KillmailID: 2, Hash: "h2", TotalValue: 100_000_000},
			{KillmailID: 1, Hash: "h1", TotalValue: 100_000_000},
		},
	}}
	// Kill 2 has no detail record; kill 1 must still be processed.
	enricher := &fakeEnricher{
		details: map[int64]*esi.Killmail{1: killAt(1, at(1))},
		regions: map[int64]int64{testSystem: testRegion},
	}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(1, len(sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckRegionListError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	lister := &fakeLister{err: errors.New("connection refused")}
	enricher := &fakeEnricher{}

	p := newTestPipeline(t, store, lister, enricher, sender, 50_000_000)
	p.checkRegion(ctx, testRegion)

	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("expected no messages (-want +got):\n%s", diff)
	}
}

func TestRulesAccept(t *testing.T) {
	rules := Rules{Regions: []int64{1, 2}, MinValue: 1000}

	tests := []struct {
		name     string
		regionID int64
		value    float64
		want     bool
	}{
		{name: "allowed region above threshold", regionID: 1, value: 5000, want: true},
		{name: "allowed region at threshold", regionID: 2, value: 1000, want: true},
		{name: "allowed region below threshold", regionID: 1, value: 999, want: false},
		{name: "other region above threshold", regionID: 3, value: 5000, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.Accept(tt.regionID, tt.value); got != tt.want {
				t.Errorf("Accept(%d, %v) = %v, want %v", tt.regionID, tt.value, got, tt.want)
			}
		})
	}
}
