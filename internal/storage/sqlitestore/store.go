// Package sqlitestore is the SQLite implementation of the record store and
// of the database-backed fetch state.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tokcache/internal/models"
	"tokcache/internal/services"
	"tokcache/internal/storage/dbutil"
)

// maxInParams keeps IN lists well below SQLite's variable limit.
const maxInParams = 500

type Store struct {
	db *sql.DB
}

var (
	_ services.RecordStore     = (*Store)(nil)
	_ services.FetchStateStore = (*Store)(nil)
)

// New applies the schema to db and returns a store over it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetExisting(ctx context.Context, scope models.Scope, ids []string) (map[string]*models.CachedRecord, error) {
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*models.CachedRecord)
	ids = dbutil.UniqueIDs(ids)
	for start := 0; start < len(ids); start += maxInParams {
		chunk := ids[start:min(start+maxInParams, len(ids))]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, scope.Key)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := fmt.Sprintf(`SELECT %s, cached_at FROM %s WHERE %s = ? AND video_id IN (%s)`,
			dbutil.RecordColumns, table, keyCol, placeholders(len(chunk)))

		records, err := s.queryRecords(ctx, scope, query, args...)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			out[r.ID] = r
		}
	}
	return out, nil
}

func (s *Store) queryRecords(ctx context.Context, scope models.Scope, query string, args ...any) ([]*models.CachedRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CachedRecord
	for rows.Next() {
		var (
			row      dbutil.RecordRow
			cachedAt int64
		)
		if err := rows.Scan(append(row.Dest(), &cachedAt)...); err != nil {
			return nil, err
		}
		out = append(out, row.Record(scope, fromNanos(cachedAt)))
	}
	return out, rows.Err()
}

func (s *Store) InsertBatch(ctx context.Context, records []*models.CachedRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, rec := range records {
			table, keyCol, err := dbutil.Table(rec.Scope.Kind)
			if err != nil {
				return err
			}
			query := fmt.Sprintf(`INSERT INTO %s (%s, %s, cached_at, tag_index) VALUES (?, %s, ?, ?)`,
				table, keyCol, dbutil.RecordColumns, placeholders(dbutil.RecordColumnCount))

			args := make([]any, 0, dbutil.RecordColumnCount+3)
			args = append(args, rec.Scope.Key)
			args = append(args, dbutil.RecordArgs(rec)...)
			args = append(args, toNanos(rec.CachedAt), dbutil.TagIndex(rec))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return &services.WriteError{Op: "insert", Err: err}
	}
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, scope models.Scope, patches []models.RecordPatch) error {
	if len(patches) == 0 {
		return nil
	}
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return &services.WriteError{Op: "update", Err: err}
	}
	query := fmt.Sprintf(`UPDATE %s SET
  download_url = COALESCE(NULLIF(?, ''), download_url),
  digg_count = ?, share_count = ?, play_count = ?, comment_count = ?, collect_count = ?,
  cached_at = ?
WHERE %s = ? AND video_id = ?`, table, keyCol)

	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range patches {
			res, err := tx.ExecContext(ctx, query,
				p.DownloadURL,
				p.Counts.Likes, p.Counts.Shares, p.Counts.Plays, p.Counts.Comments, p.Counts.Bookmarks,
				toNanos(p.CachedAt),
				scope.Key, p.ID,
			)
			if err != nil {
				return fmt.Errorf("record %s: %w", p.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("record %s: %w", p.ID, services.ErrRecordNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return &services.WriteError{Op: "update", Err: err}
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, scope models.Scope, q models.ListQuery) ([]*models.CachedRecord, int, error) {
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return nil, 0, err
	}

	where := keyCol + " = ?"
	args := []any{scope.Key}
	if q.Tag != "" {
		where += ` AND tag_index LIKE ? ESCAPE '\'`
		args = append(args, dbutil.TagPattern(q.Tag))
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s, cached_at FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		dbutil.RecordColumns, table, where, dbutil.OrderBy(scope.Kind))
	records, err := s.queryRecords(ctx, scope, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) CountRecords(ctx context.Context, kind models.ScopeKind) (int, error) {
	table, _, err := dbutil.Table(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}

func (s *Store) GetProfile(ctx context.Context, ownerID string) (*models.Profile, error) {
	var (
		p         models.Profile
		stats     models.ProfileSummary
		statsAt   sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT owner_id, tiktok_username, name, avatar_url, following, fans, heart, video, stats_updated_at, updated_at
FROM profiles WHERE owner_id = ?`, ownerID).Scan(
		&p.OwnerID, &p.TikTokUsername, &stats.Name, &stats.AvatarURL,
		&stats.Following, &stats.Fans, &stats.Heart, &stats.Video, &statsAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if statsAt.Valid {
		p.Stats = &stats
	}
	p.UpdatedAt = fromNanos(updatedAt)
	return &p, nil
}

func (s *Store) LinkAccount(ctx context.Context, ownerID, username string, at time.Time) error {
	_, err := exec(ctx, s.db, `
INSERT INTO profiles (owner_id, tiktok_username, updated_at) VALUES (?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET tiktok_username = excluded.tiktok_username, updated_at = excluded.updated_at`,
		ownerID, username, toNanos(at))
	return err
}

func (s *Store) SaveProfileStats(ctx context.Context, ownerID string, stats *models.ProfileSummary, at time.Time) error {
	if stats == nil {
		return nil
	}
	_, err := exec(ctx, s.db, `
INSERT INTO profiles (owner_id, name, avatar_url, following, fans, heart, video, stats_updated_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET
  name = excluded.name, avatar_url = excluded.avatar_url,
  following = excluded.following, fans = excluded.fans, heart = excluded.heart, video = excluded.video,
  stats_updated_at = excluded.stats_updated_at, updated_at = excluded.updated_at`,
		ownerID, stats.Name, stats.AvatarURL, stats.Following, stats.Fans, stats.Heart, stats.Video,
		toNanos(at), toNanos(at))
	return err
}

func (s *Store) AppendSearchLog(ctx context.Context, entry models.SearchLogEntry) error {
	_, err := exec(ctx, s.db, `INSERT INTO search_log (id, owner_id, term, searched_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.OwnerID, entry.Term, toNanos(entry.SearchedAt))
	return err
}

func (s *Store) SearchHistory(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 || limit > dbutil.HistoryLimitMax {
		limit = dbutil.HistoryLimitMax
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT term FROM search_log WHERE owner_id = ?
GROUP BY term ORDER BY MAX(searched_at) DESC, term ASC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, rows.Err()
}

func (s *Store) FetchingEnabled(ctx context.Context, ownerID string) (bool, bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM fetch_settings WHERE owner_id = ?`, ownerID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return enabled, true, nil
}

func (s *Store) SetFetchingEnabled(ctx context.Context, ownerID string, enabled bool) error {
	_, err := exec(ctx, s.db, `
INSERT INTO fetch_settings (owner_id, enabled, updated_at) VALUES (?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		ownerID, enabled, toNanos(time.Now()))
	return err
}

func (s *Store) LastFetchAt(ctx context.Context, clockKey string) (time.Time, bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT last_fetch_at FROM fetch_clocks WHERE clock_key = ?`, clockKey).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromNanos(n), true, nil
}

// ReserveFetch is one conditional upsert: the DO UPDATE branch only fires
// when the stored clock is at or before threshold, so exactly one of several
// concurrent callers sees a changed row.
func (s *Store) ReserveFetch(ctx context.Context, clockKey string, now, threshold time.Time) (bool, error) {
	res, err := exec(ctx, s.db, `
INSERT INTO fetch_clocks (clock_key, last_fetch_at) VALUES (?, ?)
ON CONFLICT(clock_key) DO UPDATE SET last_fetch_at = excluded.last_fetch_at
WHERE fetch_clocks.last_fetch_at <= ?`,
		clockKey, toNanos(now), toNanos(threshold))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
