// Package pgstore is the PostgreSQL implementation of the record store and
// of the database-backed fetch state.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokcache/internal/models"
	"tokcache/internal/services"
	"tokcache/internal/storage/dbutil"
)

const batchSize = 200

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ services.RecordStore     = (*Store)(nil)
	_ services.FetchStateStore = (*Store)(nil)
)

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) GetExisting(ctx context.Context, scope models.Scope, ids []string) (map[string]*models.CachedRecord, error) {
	out := make(map[string]*models.CachedRecord)
	ids = dbutil.UniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s, cached_at FROM %s WHERE %s = $1 AND video_id = ANY($2::text[])`,
		dbutil.RecordColumns, table, keyCol)
	records, err := s.queryRecords(ctx, scope, query, scope.Key, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		out[r.ID] = r
	}
	return out, nil
}

func (s *Store) queryRecords(ctx context.Context, scope models.Scope, query string, args ...any) ([]*models.CachedRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CachedRecord
	for rows.Next() {
		var (
			row      dbutil.RecordRow
			cachedAt time.Time
		)
		if err := rows.Scan(append(row.Dest(), &cachedAt)...); err != nil {
			return nil, err
		}
		out = append(out, row.Record(scope, cachedAt.UTC()))
	}
	return out, rows.Err()
}

// sendBatch runs b and calls check with each statement's command tag.
func (s *Store) sendBatch(ctx context.Context, b *pgx.Batch, check func(i int, tag int64) error) error {
	br := s.pool.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if check != nil {
			if err := check(i, tag.RowsAffected()); err != nil {
				_ = br.Close()
				return err
			}
		}
	}
	return br.Close()
}

func (s *Store) InsertBatch(ctx context.Context, records []*models.CachedRecord) error {
	for start := 0; start < len(records); start += batchSize {
		chunk := records[start:min(start+batchSize, len(records))]

		b := &pgx.Batch{}
		for _, rec := range chunk {
			table, keyCol, err := dbutil.Table(rec.Scope.Kind)
			if err != nil {
				return &services.WriteError{Op: "insert", Err: err}
			}
			args := make([]any, 0, dbutil.RecordColumnCount+3)
			args = append(args, rec.Scope.Key)
			args = append(args, dbutil.RecordArgs(rec)...)
			args = append(args, rec.CachedAt, dbutil.TagIndex(rec))
			b.Queue(fmt.Sprintf(`INSERT INTO %s (%s, %s, cached_at, tag_index) VALUES (%s)`,
				table, keyCol, dbutil.RecordColumns, numbered(1, dbutil.RecordColumnCount+3)), args...)
		}
		if err := s.sendBatch(ctx, b, nil); err != nil {
			return &services.WriteError{Op: "insert", Err: err}
		}
	}
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, scope models.Scope, patches []models.RecordPatch) error {
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return &services.WriteError{Op: "update", Err: err}
	}
	query := fmt.Sprintf(`UPDATE %s SET
  download_url = COALESCE(NULLIF($1, ''), download_url),
  digg_count = $2, share_count = $3, play_count = $4, comment_count = $5, collect_count = $6,
  cached_at = $7
WHERE %s = $8 AND video_id = $9`, table, keyCol)

	for start := 0; start < len(patches); start += batchSize {
		chunk := patches[start:min(start+batchSize, len(patches))]

		b := &pgx.Batch{}
		for _, p := range chunk {
			b.Queue(query,
				p.DownloadURL,
				p.Counts.Likes, p.Counts.Shares, p.Counts.Plays, p.Counts.Comments, p.Counts.Bookmarks,
				p.CachedAt, scope.Key, p.ID,
			)
		}
		err := s.sendBatch(ctx, b, func(i int, affected int64) error {
			if affected == 0 {
				return fmt.Errorf("record %s: %w", chunk[i].ID, services.ErrRecordNotFound)
			}
			return nil
		})
		if err != nil {
			return &services.WriteError{Op: "update", Err: err}
		}
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, scope models.Scope, q models.ListQuery) ([]*models.CachedRecord, int, error) {
	table, keyCol, err := dbutil.Table(scope.Kind)
	if err != nil {
		return nil, 0, err
	}

	where := keyCol + " = $1"
	args := []any{scope.Key}
	if q.Tag != "" {
		where += ` AND tag_index LIKE $2 ESCAPE '\'`
		args = append(args, dbutil.TagPattern(q.Tag))
	}

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s, cached_at FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		dbutil.RecordColumns, table, where, dbutil.OrderBy(scope.Kind), n+1, n+2)
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
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}

func (s *Store) GetProfile(ctx context.Context, ownerID string) (*models.Profile, error) {
	var (
		p       models.Profile
		stats   models.ProfileSummary
		statsAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
SELECT owner_id, tiktok_username, name, avatar_url, following, fans, heart, video, stats_updated_at, updated_at
FROM profiles WHERE owner_id = $1`, ownerID).Scan(
		&p.OwnerID, &p.TikTokUsername, &stats.Name, &stats.AvatarURL,
		&stats.Following, &stats.Fans, &stats.Heart, &stats.Video, &statsAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if statsAt != nil {
		p.Stats = &stats
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) LinkAccount(ctx context.Context, ownerID, username string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO profiles (owner_id, tiktok_username, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (owner_id) DO UPDATE SET tiktok_username = EXCLUDED.tiktok_username, updated_at = EXCLUDED.updated_at`,
		ownerID, username, at)
	return err
}

func (s *Store) SaveProfileStats(ctx context.Context, ownerID string, stats *models.ProfileSummary, at time.Time) error {
	if stats == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO profiles (owner_id, name, avatar_url, following, fans, heart, video, stats_updated_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (owner_id) DO UPDATE SET
  name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url,
  following = EXCLUDED.following, fans = EXCLUDED.fans, heart = EXCLUDED.heart, video = EXCLUDED.video,
  stats_updated_at = EXCLUDED.stats_updated_at, updated_at = EXCLUDED.updated_at`,
		ownerID, stats.Name, stats.AvatarURL, stats.Following, stats.Fans, stats.Heart, stats.Video, at)
	return err
}

func (s *Store) AppendSearchLog(ctx context.Context, entry models.SearchLogEntry) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO search_log (id, owner_id, term, searched_at) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.OwnerID, entry.Term, entry.SearchedAt)
	return err
}

func (s *Store) SearchHistory(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 || limit > dbutil.HistoryLimitMax {
		limit = dbutil.HistoryLimitMax
	}
	rows, err := s.pool.Query(ctx, `
SELECT term FROM search_log WHERE owner_id = $1
GROUP BY term ORDER BY MAX(searched_at) DESC, term ASC LIMIT $2`, ownerID, limit)
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
	err := s.pool.QueryRow(ctx, `SELECT enabled FROM fetch_settings WHERE owner_id = $1`, ownerID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return enabled, true, nil
}

func (s *Store) SetFetchingEnabled(ctx context.Context, ownerID string, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO fetch_settings (owner_id, enabled, updated_at) VALUES ($1, $2, now())
ON CONFLICT (owner_id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		ownerID, enabled)
	return err
}

func (s *Store) LastFetchAt(ctx context.Context, clockKey string) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `SELECT last_fetch_at FROM fetch_clocks WHERE clock_key = $1`, clockKey).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}

// ReserveFetch is one conditional upsert; the row lock taken by ON CONFLICT
// serializes concurrent callers on the same key.
func (s *Store) ReserveFetch(ctx context.Context, clockKey string, now, threshold time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO fetch_clocks (clock_key, last_fetch_at) VALUES ($1, $2)
ON CONFLICT (clock_key) DO UPDATE SET last_fetch_at = EXCLUDED.last_fetch_at
WHERE fetch_clocks.last_fetch_at <= $3`, clockKey, now, threshold)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// numbered returns "$from, ..., $(from+n-1)".
func numbered(from, n int) string {
	out := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = fmt.Appendf(out, "$%d", from+i)
	}
	return string(out)
}
