package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"eve_bot/internal/model"
	"eve_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SeenState reports whether an item is in the dedup ledger and whether
// its notification has already gone out.
func (s *SQLite) SeenState(ctx context.Context, sourceID, naturalKey string) (bool, bool, error) {
	var delivered int
	err := s.db.QueryRowContext(ctx,
		`SELECT delivered FROM seen_items WHERE source_id = ? AND natural_key = ?`,
		sourceID, naturalKey,
	).Scan(&delivered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("check seen: %w", err)
	}
	return true, delivered == 1, nil
}

// InsertSeen records an item in the dedup ledger. Inserting an already
// known item is a no-op.
func (s *SQLite) InsertSeen(ctx context.Context, sourceID, naturalKey string, delivered bool) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (source_id, natural_key, first_seen_at, delivered)
		 VALUES (?, ?, ?, ?)`,
		sourceID, naturalKey, now, boolToInt(delivered),
	)
	if err != nil {
		return fmt.Errorf("insert seen: %w", err)
	}
	return nil
}

// MarkDelivered flips an item's delivered flag to true.
func (s *SQLite) MarkDelivered(ctx context.Context, sourceID, naturalKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE seen_items SET delivered = 1 WHERE source_id = ? AND natural_key = ?`,
		sourceID, naturalKey,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// CountSeen returns the number of ledger rows for a source.
func (s *SQLite) CountSeen(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_items WHERE source_id = ?`, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count seen: %w", err)
	}
	return count, nil
}

// GetWatermark returns the watermark for a source, or nil if the source
// has never accepted an item.
func (s *SQLite) GetWatermark(ctx context.Context, sourceID string) (*model.Watermark, error) {
	var w model.Watermark
	var at string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, last_seen_key, last_seen_at FROM watermarks WHERE source_id = ?`,
		sourceID,
	).Scan(&w.SourceID, &w.LastSeenKey, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	w.LastSeenAt, _ = time.Parse(timeLayout, at)
	return &w, nil
}

// SetWatermark upserts a source's watermark.
func (s *SQLite) SetWatermark(ctx context.Context, w model.Watermark) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks (source_id, last_seen_key, last_seen_at) VALUES (?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET last_seen_key = excluded.last_seen_key, last_seen_at = excluded.last_seen_at`,
		w.SourceID, w.LastSeenKey, w.LastSeenAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// ListWatermarks returns the watermarks of all sources.
func (s *SQLite) ListWatermarks(ctx context.Context) ([]model.Watermark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, last_seen_key, last_seen_at FROM watermarks ORDER BY source_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query watermarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var marks []model.Watermark
	for rows.Next() {
		var w model.Watermark
		var at string
		if err := rows.Scan(&w.SourceID, &w.LastSeenKey, &at); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		w.LastSeenAt, _ = time.Parse(timeLayout, at)
		marks = append(marks, w)
	}
	return marks, rows.Err()
}

// CreateAction inserts a scheduled action and populates its ID and CreatedAt.
func (s *SQLite) CreateAction(ctx context.Context, a *model.ScheduledAction) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_actions (owner_id, kind, due_at, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.OwnerID, string(a.Kind), a.DueAt.UTC().Format(timeLayout), a.Payload, now,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetAction returns a single scheduled action by its ID.
func (s *SQLite) GetAction(ctx context.Context, id int64) (*model.ScheduledAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, kind, due_at, payload, created_at
		 FROM scheduled_actions WHERE id = ?`, id,
	)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return a, err
}

// ListDueActions returns all actions with due_at at or before now,
// oldest first.
func (s *SQLite) ListDueActions(ctx context.Context, now time.Time) ([]model.ScheduledAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, due_at, payload, created_at
		 FROM scheduled_actions WHERE due_at <= ? ORDER BY due_at, id`,
		now.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query due actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []model.ScheduledAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

// DeleteAction removes a scheduled action by its ID.
func (s *SQLite) DeleteAction(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_actions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

// CountPendingActions counts not-yet-due actions of a kind.
func (s *SQLite) CountPendingActions(ctx context.Context, kind model.ActionKind, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_actions WHERE kind = ? AND due_at > ?`,
		string(kind), now.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return count, nil
}

// CreatePoll inserts a poll and populates its ID and CreatedAt.
func (s *SQLite) CreatePoll(ctx context.Context, p *model.Poll) error {
	opts, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO polls (creator_id, question, options, created_at, expires_at, chat_id, message_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.CreatorID, p.Question, string(opts), now, p.ExpiresAt.UTC().Format(timeLayout), p.ChatID, p.MessageID,
	)
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetPoll returns a single poll by its ID.
func (s *SQLite) GetPoll(ctx context.Context, id int64) (*model.Poll, error) {
	var p model.Poll
	var opts, created, expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, creator_id, question, options, created_at, expires_at, chat_id, message_id
		 FROM polls WHERE id = ?`, id,
	).Scan(&p.ID, &p.CreatorID, &p.Question, &opts, &created, &expires, &p.ChatID, &p.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan poll: %w", err)
	}
	if err := json.Unmarshal([]byte(opts), &p.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	p.ExpiresAt, _ = time.Parse(timeLayout, expires)
	return &p, nil
}

// SetPollMessage records the chat message a poll was published as.
func (s *SQLite) SetPollMessage(ctx context.Context, id int64, messageID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE polls SET message_id = ? WHERE id = ?`, messageID, id,
	)
	if err != nil {
		return fmt.Errorf("set poll message: %w", err)
	}
	return nil
}

// UpsertVote records a vote, overwriting the voter's previous choice.
func (s *SQLite) UpsertVote(ctx context.Context, v model.Vote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (poll_id, voter_id, option_key) VALUES (?, ?, ?)
		 ON CONFLICT(poll_id, voter_id) DO UPDATE SET option_key = excluded.option_key`,
		v.PollID, v.VoterID, v.OptionKey,
	)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// TallyVotes returns vote counts per option key.
func (s *SQLite) TallyVotes(ctx context.Context, pollID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT option_key, COUNT(*) FROM votes WHERE poll_id = ? GROUP BY option_key`, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tally := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tally[key] = count
	}
	return tally, rows.Err()
}

// DeletePoll removes a poll and its votes in one transaction.
func (s *SQLite) DeletePoll(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE poll_id = ?`, id); err != nil {
		return fmt.Errorf("delete votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return tx.Commit()
}

// IsKillProcessed checks whether a killmail is already in the ledger.
func (s *SQLite) IsKillProcessed(ctx context.Context, killID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_kills WHERE kill_id = ?`, killID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check kill: %w", err)
	}
	return count > 0, nil
}

// MarkKillProcessed records a killmail in the ledger.
func (s *SQLite) MarkKillProcessed(ctx context.Context, killID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_kills (kill_id, processed_at) VALUES (?, ?)`,
		killID, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("mark kill processed: %w", err)
	}
	return nil
}

// CreateConfession inserts a confession and populates its ID and SubmittedAt.
func (s *SQLite) CreateConfession(ctx context.Context, c *model.Confession) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO confessions (username, confession, submitted_at) VALUES (?, ?, ?)`,
		c.Username, c.Confession, now,
	)
	if err != nil {
		return fmt.Errorf("insert confession: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.SubmittedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListConfessions returns all confessions, newest first.
func (s *SQLite) ListConfessions(ctx context.Context) ([]model.Confession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, confession, submitted_at FROM confessions ORDER BY submitted_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query confessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Confession
	for rows.Next() {
		var c model.Confession
		var at string
		if err := rows.Scan(&c.ID, &c.Username, &c.Confession, &at); err != nil {
			return nil, fmt.Errorf("scan confession: %w", err)
		}
		c.SubmittedAt, _ = time.Parse(timeLayout, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConfession removes a confession by its ID.
func (s *SQLite) DeleteConfession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM confessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete confession: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// RandomJoke returns a random joke from the jokes table.
func (s *SQLite) RandomJoke(ctx context.Context) (string, error) {
	var joke string
	err := s.db.QueryRowContext(ctx,
		`SELECT joke FROM jokes ORDER BY RANDOM() LIMIT 1`,
	).Scan(&joke)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("random joke: %w", err)
	}
	return joke, nil
}

// RecordJokeRequest increments a user's joke request counter.
func (s *SQLite) RecordJokeRequest(ctx context.Context, userID int64, username string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO joke_requests (user_id, username, request_count) VALUES (?, ?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET request_count = request_count + 1, username = excluded.username`,
		userID, username,
	)
	if err != nil {
		return fmt.Errorf("record joke request: %w", err)
	}
	return nil
}

// TotalJokeRequests returns the total number of joke requests across users.
func (s *SQLite) TotalJokeRequests(ctx context.Context) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(request_count) FROM joke_requests`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total joke requests: %w", err)
	}
	return int(total.Int64), nil
}

// IncrementCounter adds one to a named counter, creating it at 1.
func (s *SQLite) IncrementCounter(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	if err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}

// GetCounter returns a named counter's value, zero if absent.
func (s *SQLite) GetCounter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE name = ?`, name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return value, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAction(row scannable) (*model.ScheduledAction, error) {
	var a model.ScheduledAction
	var kind, due, created string
	err := row.Scan(&a.ID, &a.OwnerID, &kind, &due, &a.Payload, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan action: %w", err)
	}
	a.Kind = model.ActionKind(kind)
	a.DueAt, _ = time.Parse(timeLayout, due)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	return &a, nil
}
