package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/conclave-ai/conclave/internal/debate"
)

// SQLiteRepository persists deliberations in a local SQLite file. The
// whole record is stored as one JSON document per thread; the relational
// breakdown the PostgreSQL backend does is overkill for a single-user
// local store.
type SQLiteRepository struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteRepository opens (or creates) the database at path.
func NewSQLiteRepository(path string, log *logrus.Logger) (*SQLiteRepository, error) {
	if log == nil {
		log = logrus.New()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE IF NOT EXISTS deliberations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			protocol TEXT NOT NULL,
			question TEXT NOT NULL,
			completed_at TIMESTAMP NOT NULL,
			record TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_deliberations_owner ON deliberations(owner_id);
		CREATE INDEX IF NOT EXISTS idx_deliberations_completed ON deliberations(completed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create deliberations table: %w", err)
	}
	return &SQLiteRepository{db: db, log: log}, nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// SaveDeliberation writes the record in one transaction.
func (r *SQLiteRepository) SaveDeliberation(ctx context.Context, rec *debate.Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deliberations (id, owner_id, protocol, question, completed_at, record)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, string(rec.Protocol), rec.Question, rec.CompletedAt, string(blob))
	if err != nil {
		return fmt.Errorf("failed to insert deliberation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deliberation: %w", err)
	}

	r.log.WithField("id", rec.ID).Debug("Deliberation saved")
	return nil
}

// GetDeliberation loads one record by id.
func (r *SQLiteRepository) GetDeliberation(ctx context.Context, id string) (*debate.Record, error) {
	var blob string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM deliberations WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deliberation: %w", err)
	}

	rec := &debate.Record{}
	if err := json.Unmarshal([]byte(blob), rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// ListDeliberations returns recent records, newest first.
func (r *SQLiteRepository) ListDeliberations(ctx context.Context, ownerID string, limit int) ([]*debate.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT record FROM deliberations`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY completed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliberations: %w", err)
	}
	defer rows.Close()

	var out []*debate.Record
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan deliberation: %w", err)
		}
		rec := &debate.Record{}
		if err := json.Unmarshal([]byte(blob), rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
