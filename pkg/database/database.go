package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hospitaltm/citas-dashboard/pkg/config"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

const healthTimeout = time.Second

// DB is the snapshot store connection.
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// New opens the pool described by cfg and checks it answers.
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := Wrap(conn, log)
	db.logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int("max_open", cfg.MaxOpenConns).
		Msg("snapshot store connected")
	return db, nil
}

// Wrap adapts an existing connection, typically a sqlmock-backed one in tests.
func Wrap(conn *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: conn, logger: log.WithComponent("database")}
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health pings the store and reports pool usage and how many snapshots it
// holds. A reachable database without the snapshot table is "degraded".
func (db *DB) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}

	stats := db.Stats()
	status := map[string]string{
		"status":      "up",
		"connections": strconv.Itoa(stats.OpenConnections),
		"in_use":      strconv.Itoa(stats.InUse),
	}

	var count int64
	var latest sql.NullTime
	err := db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(created_at) FROM dashboard_snapshots").Scan(&count, &latest)
	if err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
		return status
	}
	status["snapshots"] = strconv.FormatInt(count, 10)
	if latest.Valid {
		status["last_snapshot"] = latest.Time.UTC().Format(time.RFC3339)
	}
	return status
}

// Transaction runs fn in a transaction, rolling back when fn fails or panics.
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		db.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil {
		db.logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}
