package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Catalog ---

// SQLiteCatalogRepository implements CatalogRepository on SQLite.
type SQLiteCatalogRepository struct {
	db *sql.DB
}

// NewSQLiteCatalogRepository creates a catalog repository backed by db.
func NewSQLiteCatalogRepository(db *sql.DB) *SQLiteCatalogRepository {
	return &SQLiteCatalogRepository{db: db}
}

// Replace swaps the whole stored catalog. Channels missing from catalogs
// are dropped.
func (r *SQLiteCatalogRepository) Replace(ctx context.Context, catalogs []domain.ChannelCatalog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewPersistenceError("catalog", "replace", "", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog"); err != nil {
		return domain.NewPersistenceError("catalog", "replace", "", err)
	}
	for _, c := range catalogs {
		items, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("encode catalog %s: %w", c.Channel, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO catalog (channel, updated_at, items) VALUES (?, ?, ?)
			ON CONFLICT(channel) DO UPDATE SET updated_at = excluded.updated_at, items = excluded.items
		`, c.Channel, formatTime(c.UpdatedAt), string(items))
		if err != nil {
			return domain.NewPersistenceError("catalog", "replace", c.Channel, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewPersistenceError("catalog", "replace", "", err)
	}
	return nil
}

// List returns the catalog of every channel ordered by channel key.
func (r *SQLiteCatalogRepository) List(ctx context.Context) ([]domain.ChannelCatalog, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT channel, updated_at, items FROM catalog ORDER BY channel")
	if err != nil {
		return nil, domain.NewPersistenceError("catalog", "list", "", err)
	}
	defer rows.Close()

	var result []domain.ChannelCatalog
	for rows.Next() {
		var c domain.ChannelCatalog
		var updated, items string
		if err := rows.Scan(&c.Channel, &updated, &items); err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		if c.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("parse catalog time: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
			return nil, fmt.Errorf("decode catalog %s: %w", c.Channel, err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// FindItem returns one item of a channel.
func (r *SQLiteCatalogRepository) FindItem(ctx context.Context, channel, apiID string) (*domain.CatalogEntry, error) {
	var items string
	err := r.db.QueryRowContext(ctx, "SELECT items FROM catalog WHERE channel = ?", channel).Scan(&items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewPersistenceError("catalog", "find", channel, err)
	}

	c := domain.ChannelCatalog{Channel: channel}
	if err := json.Unmarshal([]byte(items), &c.Items); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", channel, err)
	}
	item, ok := c.Find(apiID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// --- EPG cache ---

// SQLiteEPGCacheRepository implements EPGCacheRepository on SQLite.
type SQLiteEPGCacheRepository struct {
	db *sql.DB
}

// NewSQLiteEPGCacheRepository creates an EPG cache backed by db.
func NewSQLiteEPGCacheRepository(db *sql.DB) *SQLiteEPGCacheRepository {
	return &SQLiteEPGCacheRepository{db: db}
}

// Get returns the cached data for a channel.
func (r *SQLiteEPGCacheRepository) Get(ctx context.Context, channel string) (*domain.EPGCache, error) {
	var data, updated string
	err := r.db.QueryRowContext(ctx, "SELECT data, updated_at FROM epg_cache WHERE channel = ?", channel).Scan(&data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewPersistenceError("epg_cache", "get", channel, err)
	}

	ts, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("parse cache time: %w", err)
	}
	return &domain.EPGCache{Channel: channel, Data: json.RawMessage(data), UpdatedAt: ts}, nil
}

// Put stores data for a channel.
func (r *SQLiteEPGCacheRepository) Put(ctx context.Context, channel string, data json.RawMessage) error {
	if channel == "" || len(data) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO epg_cache (channel, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(channel) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, channel, string(data), formatTime(time.Now()))
	if err != nil {
		return domain.NewPersistenceError("epg_cache", "put", channel, err)
	}
	return nil
}

// Clear removes every cache entry.
func (r *SQLiteEPGCacheRepository) Clear(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM epg_cache")
	if err != nil {
		return 0, domain.NewPersistenceError("epg_cache", "clear", "", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Schedule ---

// SQLiteScheduleRepository implements ScheduleRepository on SQLite.
type SQLiteScheduleRepository struct {
	db *sql.DB
	// mu serializes read-modify-write sequences on entries.
	mu sync.Mutex
}

// NewSQLiteScheduleRepository creates a schedule repository backed by db.
func NewSQLiteScheduleRepository(db *sql.DB) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const scheduleColumns = "api_id, channel, title, download_url, schedule_dates, fail_count, failed, in_progress"

func scanSchedule(row rowScanner) (*domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var dates string
	var failed, inProgress int
	if err := row.Scan(&e.APIID, &e.Channel, &e.Title, &e.DownloadURL, &dates, &e.FailCount, &failed, &inProgress); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dates), &e.ScheduleDates); err != nil {
		return nil, fmt.Errorf("decode schedule dates: %w", err)
	}
	e.Failed = failed != 0
	e.InProgress = inProgress != 0
	return &e, nil
}

// Upsert inserts or replaces the entry keyed by its API ID. An existing
// entry keeps its in-progress flag.
func (r *SQLiteScheduleRepository) Upsert(ctx context.Context, entry *domain.ScheduleEntry) error {
	dates, err := json.Marshal(entry.ScheduleDates)
	if err != nil {
		return fmt.Errorf("encode schedule dates: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedule (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_id) DO UPDATE SET
			channel = excluded.channel,
			title = excluded.title,
			download_url = excluded.download_url,
			schedule_dates = excluded.schedule_dates,
			fail_count = excluded.fail_count,
			failed = excluded.failed
	`, entry.APIID, entry.Channel, entry.Title, entry.DownloadURL, string(dates),
		entry.FailCount, boolToInt(entry.Failed), boolToInt(entry.InProgress))
	if err != nil {
		return domain.NewPersistenceError("schedule", "upsert", entry.APIID, err)
	}
	return nil
}

// Get retrieves an entry by API ID.
func (r *SQLiteScheduleRepository) Get(ctx context.Context, apiID string) (*domain.ScheduleEntry, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedule WHERE api_id = ?", apiID)
	e, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewPersistenceError("schedule", "get", apiID, err)
	}
	return e, nil
}

// List returns all entries ordered by next due date, then API ID.
func (r *SQLiteScheduleRepository) List(ctx context.Context) ([]*domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+scheduleColumns+" FROM schedule")
	if err != nil {
		return nil, domain.NewPersistenceError("schedule", "list", "", err)
	}
	defer rows.Close()

	var result []*domain.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	domain.SortByNextDue(result)
	return result, nil
}

// Delete removes an entry.
func (r *SQLiteScheduleRepository) Delete(ctx context.Context, apiID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM schedule WHERE api_id = ?", apiID); err != nil {
		return domain.NewPersistenceError("schedule", "delete", apiID, err)
	}
	return nil
}

// SetInProgress flips the in-progress flag of an existing entry.
func (r *SQLiteScheduleRepository) SetInProgress(ctx context.Context, apiID string, inProgress bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "UPDATE schedule SET in_progress = ? WHERE api_id = ?", boolToInt(inProgress), apiID)
	if err != nil {
		return domain.NewPersistenceError("schedule", "set in progress", apiID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordFailure applies the failure path to an entry.
func (r *SQLiteScheduleRepository) RecordFailure(ctx context.Context, apiID string) (*domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewPersistenceError("schedule", "record failure", apiID, err)
	}
	defer tx.Rollback()

	e, err := scanSchedule(tx.QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedule WHERE api_id = ?", apiID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewPersistenceError("schedule", "record failure", apiID, err)
	}

	e.MarkFailedAttempt()

	_, err = tx.ExecContext(ctx, "UPDATE schedule SET fail_count = ?, failed = ?, in_progress = 0 WHERE api_id = ?",
		e.FailCount, boolToInt(e.Failed), apiID)
	if err != nil {
		return nil, domain.NewPersistenceError("schedule", "record failure", apiID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.NewPersistenceError("schedule", "record failure", apiID, err)
	}
	return e, nil
}

// CountInProgress returns the number of entries currently downloading.
func (r *SQLiteScheduleRepository) CountInProgress(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schedule WHERE in_progress = 1").Scan(&n); err != nil {
		return 0, domain.NewPersistenceError("schedule", "count in progress", "", err)
	}
	return n, nil
}

// ResetInProgress clears every in-progress flag.
func (r *SQLiteScheduleRepository) ResetInProgress(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "UPDATE schedule SET in_progress = 0 WHERE in_progress = 1")
	if err != nil {
		return 0, domain.NewPersistenceError("schedule", "reset in progress", "", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Finished ---

// SQLiteFinishedRepository implements FinishedRepository on SQLite.
type SQLiteFinishedRepository struct {
	db *sql.DB
}

// NewSQLiteFinishedRepository creates a finished repository backed by db.
func NewSQLiteFinishedRepository(db *sql.DB) *SQLiteFinishedRepository {
	return &SQLiteFinishedRepository{db: db}
}

// Upsert inserts or replaces the entry keyed by its API ID.
func (r *SQLiteFinishedRepository) Upsert(ctx context.Context, entry *domain.FinishedEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO finished (api_id, title, channel, done, completed_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(api_id) DO UPDATE SET
			title = excluded.title,
			channel = excluded.channel,
			done = excluded.done,
			completed_at = excluded.completed_at
	`, entry.APIID, entry.Title, entry.Channel, boolToInt(entry.Done), formatTime(entry.CompletedAt))
	if err != nil {
		return domain.NewPersistenceError("finished", "upsert", entry.APIID, err)
	}
	return nil
}

// List returns entries marked done, oldest completion first.
func (r *SQLiteFinishedRepository) List(ctx context.Context) ([]*domain.FinishedEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT api_id, title, channel, completed_at FROM finished WHERE done = 1")
	if err != nil {
		return nil, domain.NewPersistenceError("finished", "list", "", err)
	}
	defer rows.Close()

	var result []*domain.FinishedEntry
	for rows.Next() {
		e := &domain.FinishedEntry{Done: true}
		var completed string
		if err := rows.Scan(&e.APIID, &e.Title, &e.Channel, &completed); err != nil {
			return nil, fmt.Errorf("scan finished: %w", err)
		}
		if e.CompletedAt, err = parseTime(completed); err != nil {
			return nil, fmt.Errorf("parse completion time: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortFinished(result)
	return result, nil
}

// Delete removes an entry.
func (r *SQLiteFinishedRepository) Delete(ctx context.Context, apiID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM finished WHERE api_id = ?", apiID); err != nil {
		return domain.NewPersistenceError("finished", "delete", apiID, err)
	}
	return nil
}

// --- Ignore list ---

// SQLiteIgnoreRepository implements IgnoreRepository on SQLite.
type SQLiteIgnoreRepository struct {
	db *sql.DB
}

// NewSQLiteIgnoreRepository creates an ignore repository backed by db.
func NewSQLiteIgnoreRepository(db *sql.DB) *SQLiteIgnoreRepository {
	return &SQLiteIgnoreRepository{db: db}
}

// Upsert inserts or replaces the entry keyed by its API ID.
func (r *SQLiteIgnoreRepository) Upsert(ctx context.Context, entry *domain.IgnoreEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ignore_list (api_id, title, channel) VALUES (?, ?, ?)
		ON CONFLICT(api_id) DO UPDATE SET title = excluded.title, channel = excluded.channel
	`, entry.APIID, entry.Title, entry.Channel)
	if err != nil {
		return domain.NewPersistenceError("ignore", "upsert", entry.APIID, err)
	}
	return nil
}

// List returns all entries ordered by title.
func (r *SQLiteIgnoreRepository) List(ctx context.Context) ([]*domain.IgnoreEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT api_id, title, channel FROM ignore_list")
	if err != nil {
		return nil, domain.NewPersistenceError("ignore", "list", "", err)
	}
	defer rows.Close()

	var result []*domain.IgnoreEntry
	for rows.Next() {
		e := &domain.IgnoreEntry{}
		if err := rows.Scan(&e.APIID, &e.Title, &e.Channel); err != nil {
			return nil, fmt.Errorf("scan ignore entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortIgnored(result)
	return result, nil
}

// Delete removes an entry.
func (r *SQLiteIgnoreRepository) Delete(ctx context.Context, apiID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM ignore_list WHERE api_id = ?", apiID); err != nil {
		return domain.NewPersistenceError("ignore", "delete", apiID, err)
	}
	return nil
}

// --- Settings ---

// SQLiteSettingsRepository implements SettingsRepository on SQLite.
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a settings repository backed by db.
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

// Load returns the stored settings merged over the defaults.
func (r *SQLiteSettingsRepository) Load(ctx context.Context) (domain.Settings, error) {
	var data string
	err := r.db.QueryRowContext(ctx, "SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.DefaultSettings(), domain.NewPersistenceError("settings", "load", "", err)
	}
	return decodeSettings([]byte(data))
}

// Save replaces the stored settings.
func (r *SQLiteSettingsRepository) Save(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, string(data), formatTime(time.Now()))
	if err != nil {
		return domain.NewPersistenceError("settings", "save", "", err)
	}
	return nil
}
