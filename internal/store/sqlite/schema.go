package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently on open.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL UNIQUE,
	email          TEXT NOT NULL UNIQUE,
	coins          INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
	points         INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
	level          INTEGER NOT NULL DEFAULT 1,
	coins_received INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS streams (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	streamer_id INTEGER NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	is_live     BOOLEAN NOT NULL DEFAULT 1,
	viewers     INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (streamer_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	stream_id       INTEGER NOT NULL,
	author_id       INTEGER NOT NULL,
	stream_owner_id INTEGER NOT NULL,
	text            TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (stream_id) REFERENCES streams(id) ON DELETE CASCADE,
	FOREIGN KEY (author_id) REFERENCES users(id),
	FOREIGN KEY (stream_owner_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS loyalty_levels (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	streamer_id     INTEGER NOT NULL,
	name            TEXT NOT NULL,
	points_required INTEGER NOT NULL CHECK (points_required >= 0),
	reward          TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (streamer_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS user_loyalty_levels (
	user_id          INTEGER NOT NULL,
	streamer_id      INTEGER NOT NULL,
	loyalty_level_id INTEGER NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, streamer_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (streamer_id) REFERENCES users(id),
	FOREIGN KEY (loyalty_level_id) REFERENCES loyalty_levels(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_points (
	user_id      INTEGER NOT NULL,
	streamer_id  INTEGER NOT NULL,
	points       INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
	last_updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, streamer_id),
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (streamer_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS points_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     INTEGER NOT NULL,
	streamer_id INTEGER NOT NULL,
	action      TEXT NOT NULL,
	points      INTEGER NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (streamer_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS gifts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	streamer_id INTEGER NOT NULL,
	name        TEXT NOT NULL,
	cost        INTEGER NOT NULL CHECK (cost >= 0),
	points      INTEGER NOT NULL CHECK (points >= 0),
	FOREIGN KEY (streamer_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	data       TEXT,
	read       BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS coin_packs (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	name  TEXT NOT NULL,
	coins INTEGER NOT NULL CHECK (coins > 0),
	price REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id             INTEGER NOT NULL,
	coin_pack_id        INTEGER NOT NULL,
	coins               INTEGER NOT NULL,
	external_session_id TEXT NOT NULL UNIQUE,
	status              TEXT NOT NULL DEFAULT 'pending',
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at        DATETIME,
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (coin_pack_id) REFERENCES coin_packs(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_stream ON messages(stream_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_streams_streamer ON streams(streamer_id, is_live, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_loyalty_levels_streamer ON loyalty_levels(streamer_id, points_required);
CREATE INDEX IF NOT EXISTS idx_points_history_user ON points_history(user_id, streamer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
