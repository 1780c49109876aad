// Package sqlite implements the pipeline's persistence boundary on SQLite
// via database/sql and the modernc pure-Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mfigueredo/spendy/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	data_hash TEXT NOT NULL,
	extension TEXT NOT NULL DEFAULT '',
	bank_name TEXT NOT NULL DEFAULT '',
	uploaded_at TEXT NOT NULL,
	UNIQUE(user_id, data_hash)
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	file_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	description TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	category TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(file_id) REFERENCES files(id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_files_user_hash ON files(user_id, data_hash);
`

// Store is the SQLite-backed persistence adapter. The UNIQUE(user_id,
// data_hash) constraint is what makes concurrent identical uploads resolve
// to one success and one duplicate.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindFileByHash returns the file for (userID, hash), or nil when none exists.
func (s *Store) FindFileByHash(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, path, data_hash, extension, bank_name, uploaded_at
		FROM files
		WHERE user_id = ? AND data_hash = ?`,
		userID, hash)

	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find file by hash: %w", err)
	}
	return file, nil
}

// InsertFile inserts a file record and returns its ID. A (user_id, data_hash)
// uniqueness violation is reported as pipeline.ErrDuplicateFile.
func (s *Store) InsertFile(ctx context.Context, file *pipeline.FileRecord) (int64, error) {
	return insertFile(ctx, s.db, file)
}

// InsertTransactions inserts validated transactions for an existing file.
func (s *Store) InsertTransactions(ctx context.Context, userID string, fileID int64, txs []pipeline.Transaction) error {
	return insertTransactions(ctx, s.db, userID, fileID, txs)
}

// SaveStatement inserts the file record and its transactions in one SQL
// transaction, so a failed transaction insert never leaves a file row
// referencing an extraction that was not persisted.
func (s *Store) SaveStatement(ctx context.Context, file *pipeline.FileRecord, txs []pipeline.Transaction) (int64, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer dbtx.Rollback()

	fileID, err := insertFile(ctx, dbtx, file)
	if err != nil {
		return 0, err
	}
	if err := insertTransactions(ctx, dbtx, file.UserID, fileID, txs); err != nil {
		return 0, err
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return fileID, nil
}

// FindTransactionsByUser returns all transactions for a user, newest first.
func (s *Store) FindTransactionsByUser(ctx context.Context, userID string) ([]pipeline.StoredTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, file_id, date, description, amount, currency, category, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query transactions: %w", err)
	}
	defer rows.Close()

	var result []pipeline.StoredTransaction
	for rows.Next() {
		var tx pipeline.StoredTransaction
		var createdAt string
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.FileID, &tx.Date, &tx.Description,
			&tx.Amount, &tx.Currency, &tx.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan transaction: %w", err)
		}
		tx.CreatedAt = parseTime(createdAt)
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate transactions: %w", err)
	}
	return result, nil
}

// ListFilesByUser returns a user's uploaded statement files, newest first.
func (s *Store) ListFilesByUser(ctx context.Context, userID string) ([]pipeline.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, path, data_hash, extension, bank_name, uploaded_at
		FROM files
		WHERE user_id = ?
		ORDER BY uploaded_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query files: %w", err)
	}
	defer rows.Close()

	var result []pipeline.FileRecord
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan file: %w", err)
		}
		result = append(result, *file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate files: %w", err)
	}
	return result, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertFile(ctx context.Context, db execer, file *pipeline.FileRecord) (int64, error) {
	uploadedAt := file.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO files (user_id, name, path, data_hash, extension, bank_name, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.UserID, file.Name, file.Path, file.DataHash, file.Extension, file.BankName,
		uploadedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("sqlite: insert file: %w", pipeline.ErrDuplicateFile)
		}
		return 0, fmt.Errorf("sqlite: insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: file id: %w", err)
	}
	return id, nil
}

func insertTransactions(ctx context.Context, db execer, userID string, fileID int64, txs []pipeline.Transaction) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, tx := range txs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO transactions (user_id, file_id, date, description, amount, currency, category, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, fileID, tx.Date, tx.Description, tx.CanonicalAmount(), tx.Currency, tx.Category, now)
		if err != nil {
			return fmt.Errorf("sqlite: insert transaction: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*pipeline.FileRecord, error) {
	var file pipeline.FileRecord
	var uploadedAt string
	if err := row.Scan(&file.ID, &file.UserID, &file.Name, &file.Path, &file.DataHash,
		&file.Extension, &file.BankName, &uploadedAt); err != nil {
		return nil, err
	}
	file.UploadedAt = parseTime(uploadedAt)
	return &file, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isUniqueViolation detects the SQLite unique-constraint error without
// depending on driver error codes.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ pipeline.Store = (*Store)(nil)
