// Package store persists completed appraisals in a single-file SQLite
// database. modernc.org/sqlite keeps the build CGO-free.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jwdsh/second-hand-book/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	isbn            TEXT NOT NULL,
	title           TEXT NOT NULL,
	average_price   REAL NOT NULL,
	sample_count    INTEGER NOT NULL,
	condition_score REAL NOT NULL,
	final_price     REAL NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_isbn ON evaluations(isbn);
`

// Store is an evaluation record store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the evaluation database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dbPath := filepath.Join(dir, "books.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports only one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEvaluation appends one appraisal record.
func (s *Store) SaveEvaluation(ctx context.Context, eval models.Evaluation) error {
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (isbn, title, average_price, sample_count, condition_score, final_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		eval.ISBN,
		eval.Title,
		eval.AveragePrice,
		eval.SampleCount,
		eval.ConditionScore,
		eval.FinalPrice,
		eval.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// RecentEvaluations returns up to limit records, newest first.
func (s *Store) RecentEvaluations(ctx context.Context, limit int) ([]models.Evaluation, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT isbn, title, average_price, sample_count, condition_score, final_price, created_at
		FROM evaluations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []models.Evaluation
	for rows.Next() {
		var eval models.Evaluation
		if err := rows.Scan(
			&eval.ISBN,
			&eval.Title,
			&eval.AveragePrice,
			&eval.SampleCount,
			&eval.ConditionScore,
			&eval.FinalPrice,
			&eval.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		evals = append(evals, eval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return evals, nil
}
