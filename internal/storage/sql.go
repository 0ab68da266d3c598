package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS total_accounts (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		scraped_at     TIMESTAMP NOT NULL,
		total_accounts INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_total_accounts_scraped_at ON total_accounts (scraped_at)`,
	`CREATE TABLE IF NOT EXISTS premium_subscribers (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		scraped_at           TIMESTAMP NOT NULL,
		valid_memberships    INTEGER NOT NULL DEFAULT 0,
		active_memberships   INTEGER NOT NULL DEFAULT 0,
		trial_memberships    INTEGER NOT NULL DEFAULT 0,
		canceled_memberships INTEGER NOT NULL DEFAULT 0,
		past_due_memberships INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_premium_subscribers_scraped_at ON premium_subscribers (scraped_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS total_accounts (
		id             BIGSERIAL PRIMARY KEY,
		scraped_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total_accounts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_total_accounts_scraped_at ON total_accounts (scraped_at)`,
	`CREATE TABLE IF NOT EXISTS premium_subscribers (
		id                   BIGSERIAL PRIMARY KEY,
		scraped_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		valid_memberships    BIGINT NOT NULL DEFAULT 0,
		active_memberships   BIGINT NOT NULL DEFAULT 0,
		trial_memberships    BIGINT NOT NULL DEFAULT 0,
		canceled_memberships BIGINT NOT NULL DEFAULT 0,
		past_due_memberships BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_premium_subscribers_scraped_at ON premium_subscribers (scraped_at)`,
}

const (
	insertTotalAccounts = `INSERT INTO total_accounts (scraped_at, total_accounts) VALUES (:scraped_at, :total_accounts)`

	insertSubscription = `INSERT INTO premium_subscribers (
		scraped_at, valid_memberships, active_memberships, trial_memberships, canceled_memberships, past_due_memberships
	) VALUES (
		:scraped_at, :valid_memberships, :active_memberships, :trial_memberships, :canceled_memberships, :past_due_memberships
	)`

	selectLatestTotal = `SELECT scraped_at, total_accounts FROM total_accounts ORDER BY scraped_at DESC, id DESC LIMIT 1`

	subscriptionColumns = `scraped_at, valid_memberships, active_memberships, trial_memberships, canceled_memberships, past_due_memberships`

	selectLatestSubscription = `SELECT ` + subscriptionColumns + ` FROM premium_subscribers ORDER BY scraped_at DESC, id DESC LIMIT 1`
)

// SQLStorage writes snapshots to the total_accounts and premium_subscribers
// tables of a SQLite or PostgreSQL database.
type SQLStorage struct {
	db     *sqlx.DB
	name   string
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) a SQLite database at path.
func NewSQLiteStorage(ctx context.Context, path string, logger *slog.Logger) (*SQLStorage, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return newSQLStorage(ctx, db, "sqlite", sqliteSchema, logger)
}

// NewPostgresStorage connects to PostgreSQL using dsn.
func NewPostgresStorage(ctx context.Context, dsn string, logger *slog.Logger) (*SQLStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	return newSQLStorage(ctx, db, "postgres", postgresSchema, logger)
}

// NewSQLStorageFromDB wraps an existing connection without running migrations.
func NewSQLStorageFromDB(db *sqlx.DB, name string, logger *slog.Logger) *SQLStorage {
	return &SQLStorage{
		db:     db,
		name:   name,
		logger: logger.With("component", name+"_storage"),
	}
}

func newSQLStorage(ctx context.Context, db *sqlx.DB, name string, schema []string, logger *slog.Logger) (*SQLStorage, error) {
	s := NewSQLStorageFromDB(db, name, logger)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	s.logger.Info("storage ready", "driver", db.DriverName())
	return s, nil
}

func (s *SQLStorage) Name() string { return s.name }

// Append inserts one row per present field inside a single transaction.
func (s *SQLStorage) Append(ctx context.Context, snap *types.Snapshot) error {
	total := types.NewTotalAccountsRecord(snap)
	subs := types.NewSubscriptionRecord(snap)
	if total == nil && subs == nil {
		s.logger.Debug("snapshot has no fields, nothing to append")
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(s.name, "append", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	if total != nil {
		total.ScrapedAt = total.ScrapedAt.UTC()
		if _, err := tx.NamedExecContext(ctx, insertTotalAccounts, total); err != nil {
			return storageErr(s.name, "append", fmt.Errorf("insert total_accounts: %w", err))
		}
	}
	if subs != nil {
		subs.ScrapedAt = subs.ScrapedAt.UTC()
		if _, err := tx.NamedExecContext(ctx, insertSubscription, subs); err != nil {
			return storageErr(s.name, "append", fmt.Errorf("insert premium_subscribers: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(s.name, "append", fmt.Errorf("commit: %w", err))
	}
	s.logger.Debug("snapshot appended", "total", total != nil, "subscriptions", subs != nil)
	return nil
}

func (s *SQLStorage) LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error) {
	var rec types.TotalAccountsRecord
	if err := s.db.GetContext(ctx, &rec, selectLatestTotal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNoSnapshot
		}
		return nil, storageErr(s.name, "latest_total_accounts", err)
	}
	rec.ScrapedAt = rec.ScrapedAt.UTC()
	return &rec, nil
}

func (s *SQLStorage) LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error) {
	var rec types.SubscriptionRecord
	if err := s.db.GetContext(ctx, &rec, selectLatestSubscription); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNoSnapshot
		}
		return nil, storageErr(s.name, "latest_subscription", err)
	}
	rec.ScrapedAt = rec.ScrapedAt.UTC()
	return &rec, nil
}

func (s *SQLStorage) Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error) {
	var (
		where []string
		args  []any
	)
	if !start.IsZero() {
		where = append(where, "scraped_at >= ?")
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		where = append(where, "scraped_at <= ?")
		args = append(args, end.UTC())
	}

	query := `SELECT ` + subscriptionColumns + ` FROM premium_subscribers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY scraped_at ASC, id ASC`

	recs := []types.SubscriptionRecord{}
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, storageErr(s.name, "subscriptions", err)
	}
	for i := range recs {
		recs[i].ScrapedAt = recs[i].ScrapedAt.UTC()
	}
	return recs, nil
}

func (s *SQLStorage) Close() error {
	s.logger.Info("storage closing")
	return s.db.Close()
}
