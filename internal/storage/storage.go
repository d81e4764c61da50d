// Package storage journals games and finished deliveries to SQLite. Writes
// are asynchronous and dropped when the store is degraded.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store handles SQLite database operations with async writes
type Store struct {
	db           *sql.DB
	path         string
	writeChan    chan func(*sql.Tx) error
	healthStatus atomic.Bool
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// NewStore opens the database and starts the async writer
func NewStore(dataSourceName string, walMode bool, log *zap.Logger) (*Store, error) {
	// Foreign keys are per connection, so enable them for the whole pool
	dsn := dataSourceName
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if walMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Single writer, a few readers for the query tools
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		db:        db,
		path:      dataSourceName,
		writeChan: make(chan func(*sql.Tx) error, 256),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.healthStatus.Store(true)

	s.wg.Add(1)
	go s.writerLoop()

	return s, nil
}

func (s *Store) writerLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain what is already buffered
			for {
				select {
				case fn := <-s.writeChan:
					if s.healthStatus.Load() {
						s.executeWrite(fn)
					}
				default:
					return
				}
			}

		case fn := <-s.writeChan:
			if !s.healthStatus.Load() {
				continue
			}
			s.executeWrite(fn)
		}
	}
}

func (s *Store) executeWrite(fn func(*sql.Tx) error) {
	tx, err := s.db.Begin()
	if err != nil {
		s.degrade("begin transaction", err)
		return
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		s.degrade("write", err)
		return
	}

	if err := tx.Commit(); err != nil {
		s.degrade("commit", err)
	}
}

func (s *Store) degrade(op string, err error) {
	s.log.Error("storage degraded", zap.String("op", op), zap.Error(err))
	s.healthStatus.Store(false)
}

// submit queues fn for the writer; the write is dropped when degraded or
// when the queue is full
func (s *Store) submit(what string, fn func(*sql.Tx) error) {
	if !s.healthStatus.Load() {
		return
	}

	select {
	case s.writeChan <- fn:
	default:
		s.log.Warn("storage write queue full, dropping record", zap.String("record", what))
	}
}

// RecordNewGame asynchronously records a new game
func (s *Store) RecordNewGame(record GameRecord) {
	s.submit("game", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR IGNORE INTO games (
			game_id, initial_fen, my_color, start_time_utc
		) VALUES (?, ?, ?, ?)`,
			record.GameID, record.InitialFEN, record.MyColor, record.StartTimeUTC,
		)
		return err
	})
}

// RecordGameEnd asynchronously closes a game
func (s *Store) RecordGameEnd(gameID, reason string, at time.Time) {
	s.submit("game end", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE games SET end_time_utc = ?, end_reason = ? WHERE game_id = ?`,
			at, reason, gameID,
		)
		return err
	})
}

// RecordDelivery asynchronously records a finished delivery
func (s *Store) RecordDelivery(record DeliveryRecord) {
	s.submit("delivery", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO deliveries (
			entry_id, game_id, ply, move_uci, fen, status, via, retries, error,
			created_utc, finished_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.EntryID, record.GameID, record.Ply, record.MoveUCI, record.FEN,
			record.Status, record.Via, record.Retries, record.Error,
			record.CreatedUTC, record.FinishedUTC,
		)
		return err
	})
}

// IsHealthy returns the current health status
func (s *Store) IsHealthy() bool {
	return s.healthStatus.Load()
}

// Close drains pending writes and closes the database
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			s.log.Warn("storage writer shutdown timeout, some writes may be lost")
		}

		err = s.db.Close()
	})
	return err
}

// InitDB creates the database schema
func (s *Store) InitDB() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return tx.Commit()
}

// DeleteDB closes the store and removes the database file
func (s *Store) DeleteDB() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete database file: %w", err)
	}

	return nil
}

// QueryGames retrieves games, newest first. An empty or "*" id matches all.
func (s *Store) QueryGames(gameID string) ([]GameRecord, error) {
	query := `SELECT
		game_id, initial_fen, my_color, start_time_utc, end_time_utc, end_reason
	FROM games WHERE 1=1`

	var args []any
	if gameID != "" && gameID != "*" {
		query += " AND game_id = ?"
		args = append(args, gameID)
	}
	query += " ORDER BY start_time_utc DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		var g GameRecord
		if err := rows.Scan(&g.GameID, &g.InitialFEN, &g.MyColor, &g.StartTimeUTC, &g.EndTimeUTC, &g.EndReason); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return games, nil
}

// QueryDeliveries retrieves deliveries for a game in journal order
func (s *Store) QueryDeliveries(gameID string) ([]DeliveryRecord, error) {
	query := `SELECT
		delivery_id, entry_id, game_id, ply, move_uci, fen, status, via, retries, error,
		created_utc, finished_utc
	FROM deliveries WHERE 1=1`

	var args []any
	if gameID != "" && gameID != "*" {
		query += " AND game_id = ?"
		args = append(args, gameID)
	}
	query += " ORDER BY delivery_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		err := rows.Scan(&d.DeliveryID, &d.EntryID, &d.GameID, &d.Ply, &d.MoveUCI, &d.FEN,
			&d.Status, &d.Via, &d.Retries, &d.Error, &d.CreatedUTC, &d.FinishedUTC)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}
