// Package storage provides SQLite history storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/verity/analysis"
)

// SqliteStorage implements HistoryStorage using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// Verify SqliteStorage implements HistoryStorage
var _ HistoryStorage = (*SqliteStorage)(nil)

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			text TEXT NOT NULL,
			source_url TEXT,
			image_count INTEGER NOT NULL DEFAULT 0,
			stream INTEGER NOT NULL DEFAULT 0,
			web_search INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL,
			probability REAL,
			verdict_type INTEGER,
			error TEXT,
			result TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_created
		ON analyses(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save stores a record, replacing any record with the same id.
func (s *SqliteStorage) Save(ctx context.Context, rec Record) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	// Convert empty values to NULL for optional columns
	var sourceURL, errMsg, probability, verdictType interface{}
	if rec.SourceURL != "" {
		sourceURL = rec.SourceURL
	}
	if rec.Error != "" {
		errMsg = rec.Error
	}
	if rec.Probability != nil {
		probability = *rec.Probability
	}
	if rec.VerdictType != 0 {
		verdictType = rec.VerdictType
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analyses
		(id, created_at, text, source_url, image_count, stream, web_search, success, probability, verdict_type, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UnixMilli(),
		rec.Text,
		sourceURL,
		rec.ImageCount,
		rec.Stream,
		rec.WebSearch,
		rec.Success,
		probability,
		verdictType,
		errMsg,
		string(result),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, created_at, text, source_url, image_count, stream, web_search,
	       success, probability, verdict_type, error, result
	FROM analyses`

// Get loads one record.
func (s *SqliteStorage) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the newest records first.
func (s *SqliteStorage) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" ORDER BY created_at DESC, id ASC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []Record{} // Start with empty slice, not nil
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Delete removes one record.
func (s *SqliteStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every record.
func (s *SqliteStorage) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM analyses")
	if err != nil {
		return 0, fmt.Errorf("failed to clear records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear records: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// IDsWithPrefix returns ids starting with prefix.
func (s *SqliteStorage) IDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM analyses WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likeEscaper.Replace(prefix)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec         Record
		createdAt   int64
		sourceURL   sql.NullString
		probability sql.NullFloat64
		verdictType sql.NullInt64
		errMsg      sql.NullString
		result      string
	)
	err := row.Scan(
		&rec.ID,
		&createdAt,
		&rec.Text,
		&sourceURL,
		&rec.ImageCount,
		&rec.Stream,
		&rec.WebSearch,
		&rec.Success,
		&probability,
		&verdictType,
		&errMsg,
		&result,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.SourceURL = sourceURL.String
	rec.Error = errMsg.String
	if probability.Valid {
		p := probability.Float64
		rec.Probability = &p
	}
	if verdictType.Valid {
		rec.VerdictType = int(verdictType.Int64)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return rec, fmt.Errorf("failed to decode result: %w", err)
	}
	if rec.Result == nil {
		rec.Result = analysis.Result{}
	}
	return rec, nil
}
