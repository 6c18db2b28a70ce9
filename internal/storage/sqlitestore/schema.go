package sqlitestore

const schema = `
CREATE TABLE IF NOT EXISTS account_videos (
  owner_id          TEXT    NOT NULL,
  video_id          TEXT    NOT NULL,
  text              TEXT    NOT NULL DEFAULT '',
  digg_count        INTEGER NOT NULL DEFAULT 0,
  share_count       INTEGER NOT NULL DEFAULT 0,
  play_count        INTEGER NOT NULL DEFAULT 0,
  comment_count     INTEGER NOT NULL DEFAULT 0,
  collect_count     INTEGER NOT NULL DEFAULT 0,
  cover_url         TEXT    NOT NULL DEFAULT '',
  video_url         TEXT    NOT NULL DEFAULT '',
  download_url      TEXT    NOT NULL DEFAULT '',
  hashtags          TEXT    NOT NULL DEFAULT '[]',
  created_at        INTEGER NOT NULL DEFAULT 0,
  author_name       TEXT    NOT NULL DEFAULT '',
  author_avatar_url TEXT    NOT NULL DEFAULT '',
  cached_at         INTEGER NOT NULL,
  tag_index         TEXT    NOT NULL DEFAULT ' ',
  PRIMARY KEY (owner_id, video_id)
);
CREATE INDEX IF NOT EXISTS idx_account_videos_created ON account_videos(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS hashtag_videos (
  search_term       TEXT    NOT NULL,
  video_id          TEXT    NOT NULL,
  text              TEXT    NOT NULL DEFAULT '',
  digg_count        INTEGER NOT NULL DEFAULT 0,
  share_count       INTEGER NOT NULL DEFAULT 0,
  play_count        INTEGER NOT NULL DEFAULT 0,
  comment_count     INTEGER NOT NULL DEFAULT 0,
  collect_count     INTEGER NOT NULL DEFAULT 0,
  cover_url         TEXT    NOT NULL DEFAULT '',
  video_url         TEXT    NOT NULL DEFAULT '',
  download_url      TEXT    NOT NULL DEFAULT '',
  hashtags          TEXT    NOT NULL DEFAULT '[]',
  created_at        INTEGER NOT NULL DEFAULT 0,
  author_name       TEXT    NOT NULL DEFAULT '',
  author_avatar_url TEXT    NOT NULL DEFAULT '',
  cached_at         INTEGER NOT NULL,
  tag_index         TEXT    NOT NULL DEFAULT ' ',
  PRIMARY KEY (search_term, video_id)
);
CREATE INDEX IF NOT EXISTS idx_hashtag_videos_plays ON hashtag_videos(search_term, play_count DESC);

CREATE TABLE IF NOT EXISTS fetch_clocks (
  clock_key     TEXT PRIMARY KEY,
  last_fetch_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fetch_settings (
  owner_id   TEXT PRIMARY KEY,
  enabled    INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  owner_id         TEXT PRIMARY KEY,
  tiktok_username  TEXT    NOT NULL DEFAULT '',
  name             TEXT    NOT NULL DEFAULT '',
  avatar_url       TEXT    NOT NULL DEFAULT '',
  following        INTEGER NOT NULL DEFAULT 0,
  fans             INTEGER NOT NULL DEFAULT 0,
  heart            INTEGER NOT NULL DEFAULT 0,
  video            INTEGER NOT NULL DEFAULT 0,
  stats_updated_at INTEGER,
  updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS search_log (
  id          TEXT PRIMARY KEY,
  owner_id    TEXT    NOT NULL,
  term        TEXT    NOT NULL,
  searched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_log_owner ON search_log(owner_id, searched_at DESC);
`
