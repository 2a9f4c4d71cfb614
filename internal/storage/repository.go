package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"costmanager/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable cost store. It also keeps the settings
// records as key/value rows.
type SQLiteRepository struct {
	path string

	openOnce sync.Once
	openErr  error

	mu sync.RWMutex
	db *sql.DB

	now func() time.Time
}

// New returns an unopened repository for dbPath. Every operation fails with
// a storage-unavailable error until Open has completed.
func New(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{path: dbPath, now: time.Now}
}

// NewSQLiteRepository returns a repository that is already open.
func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	r := New(dbPath)
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Open creates the database file if needed and migrates the schema. Only the
// first call does any work; later calls return its result.
func (r *SQLiteRepository) Open(ctx context.Context) error {
	r.openOnce.Do(func() {
		r.openErr = r.open(ctx)
	})
	return r.openErr
}

func (r *SQLiteRepository) open(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return core.NewStorageError("create db directory", err)
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return core.NewStorageError("open sqlite database", err)
	}
	// one connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return core.NewStorageError("ping database", err)
	}

	if err := RunMigrations(r.path); err != nil {
		db.Close()
		return core.NewStorageError("migrate database", err)
	}

	r.mu.Lock()
	r.db = db
	r.mu.Unlock()

	slog.InfoContext(ctx, "SQLite cost store opened", "path", r.path)
	return nil
}

func (r *SQLiteRepository) conn() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, core.NewStorageError("cost store is not open", nil)
	}
	return r.db, nil
}

// Ping reports whether the store is open and the database reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return core.NewStorageError("ping cost store", err)
	}
	return nil
}

// Close releases the database. The repository cannot be reopened.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Append validates in, stamps it with today's date and stores it in a single
// transaction. The returned entry carries the assigned id.
func (r *SQLiteRepository) Append(ctx context.Context, in core.CostInput) (core.CostEntry, error) {
	entry, err := core.NewCostEntry(in, r.now())
	if err != nil {
		return core.CostEntry{}, err
	}

	db, err := r.conn()
	if err != nil {
		return core.CostEntry{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return core.CostEntry{}, core.NewStorageError("begin append", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO costs (sum, currency, category, description, year, month, day)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Sum, entry.Currency, entry.Category, entry.Description,
		entry.CreatedDate.Year, entry.CreatedDate.Month, entry.CreatedDate.Day)
	if err != nil {
		return core.CostEntry{}, core.NewStorageError("insert cost", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.CostEntry{}, core.NewStorageError("read cost id", err)
	}
	if err := tx.Commit(); err != nil {
		return core.CostEntry{}, core.NewStorageError("commit append", err)
	}
	entry.ID = id

	slog.InfoContext(ctx, "Cost saved to SQLite",
		"id", entry.ID,
		"sum", entry.Sum,
		"currency", entry.Currency,
		"category", entry.Category,
		"year", entry.CreatedDate.Year,
		"month", entry.CreatedDate.Month)

	return entry, nil
}

// ListAll returns every stored entry in ascending id order.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.CostEntry, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, sum, currency, category, description, year, month, day
		 FROM costs ORDER BY id ASC`)
	if err != nil {
		return nil, core.NewStorageError("list costs", err)
	}
	defer rows.Close()

	entries := make([]core.CostEntry, 0)
	for rows.Next() {
		var e core.CostEntry
		if err := rows.Scan(&e.ID, &e.Sum, &e.Currency, &e.Category, &e.Description,
			&e.CreatedDate.Year, &e.CreatedDate.Month, &e.CreatedDate.Day); err != nil {
			return nil, core.NewStorageError("scan cost", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("iterate costs", err)
	}
	return entries, nil
}

// GetSetting reads one settings record. ok is false when the key is absent.
func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	db, err := r.conn()
	if err != nil {
		return "", false, err
	}

	err = db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.NewStorageError(fmt.Sprintf("read setting %s", key), err)
	}
	return value, true, nil
}

// PutSettings upserts all values in one transaction.
func (r *SQLiteRepository) PutSettings(ctx context.Context, values map[string]string) error {
	db, err := r.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin settings write", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, value); err != nil {
			return core.NewStorageError(fmt.Sprintf("write setting %s", key), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit settings write", err)
	}
	return nil
}
