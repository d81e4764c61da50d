package storage

import (
	"database/sql"
	"time"
)

// GameRecord represents a row in the games table
type GameRecord struct {
	GameID       string       `db:"game_id"`
	InitialFEN   string       `db:"initial_fen"`
	MyColor      string       `db:"my_color"` // "w" or "b"
	StartTimeUTC time.Time    `db:"start_time_utc"`
	EndTimeUTC   sql.NullTime `db:"end_time_utc"`
	EndReason    string       `db:"end_reason"`
}

// DeliveryRecord represents a finished delivery in the deliveries table
type DeliveryRecord struct {
	DeliveryID  int64     `db:"delivery_id"`
	EntryID     string    `db:"entry_id"`
	GameID      string    `db:"game_id"`
	Ply         int       `db:"ply"`
	MoveUCI     string    `db:"move_uci"`
	FEN         string    `db:"fen"`
	Status      string    `db:"status"`
	Via         string    `db:"via"`
	Retries     int       `db:"retries"`
	Error       string    `db:"error"`
	CreatedUTC  time.Time `db:"created_utc"`
	FinishedUTC time.Time `db:"finished_utc"`
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id TEXT PRIMARY KEY,
	initial_fen TEXT NOT NULL,
	my_color TEXT NOT NULL CHECK(my_color IN ('w', 'b', '-')),
	start_time_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	end_time_utc DATETIME,
	end_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS deliveries (
	delivery_id INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id TEXT NOT NULL UNIQUE,
	game_id TEXT NOT NULL,
	ply INTEGER NOT NULL,
	move_uci TEXT NOT NULL,
	fen TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('acknowledged', 'failed', 'discarded')),
	via TEXT NOT NULL DEFAULT '',
	retries INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_utc DATETIME NOT NULL,
	finished_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (game_id) REFERENCES games(game_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_deliveries_game_id ON deliveries(game_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);
`
