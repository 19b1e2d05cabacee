package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"churnguard/customer"
)

// SQLiteStore keeps the table in an SQLite database. Row order is rowid
// order; positions are ordinals over it.
type SQLiteStore struct {
	notifier

	path   string
	bounds customer.Bounds
	db     *sql.DB
	mu     sync.RWMutex

	insertSQL string
	selectSQL string
}

func NewSQLiteStore(path string, bounds customer.Bounds) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageWriteError{Op: "create", Path: path, Err: err}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StorageWriteError{Op: "open", Path: path, Err: err}
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &SQLiteStore{path: path, bounds: bounds, db: db}
	s.buildStatements()
	if err := s.createTable(); err != nil {
		db.Close()
		return nil, &StorageWriteError{Op: "create", Path: path, Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) buildStatements() {
	cols := customer.Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	s.insertSQL = fmt.Sprintf("INSERT INTO predictions (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders)
	s.selectSQL = fmt.Sprintf("SELECT %s FROM predictions ORDER BY id", strings.Join(cols, ", "))
}

func (s *SQLiteStore) createTable() error {
	var defs []string
	for _, col := range customer.InputColumns() {
		typ := "INTEGER"
		if col == "MonthlyCharges" || col == "TotalCharges" {
			typ = "REAL"
		}
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", col, typ))
	}
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        %s,
        %s INTEGER NOT NULL CHECK (%s IN (0, 1)),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, strings.Join(defs, ",\n        "), customer.PredictionColumn, customer.PredictionColumn)
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, r customer.Record) error {
	if err := r.Validate(s.bounds, true); err != nil {
		return err
	}

	args := make([]any, 0, len(customer.Columns()))
	for _, v := range r.Vector() {
		args = append(args, v)
	}
	args = append(args, *r.Prediction)

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, s.insertSQL, args...)
	s.mu.Unlock()
	if err != nil {
		return &StorageWriteError{Op: "append", Path: s.path, Err: err}
	}
	s.publish(Event{Op: OpAppend})
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]customer.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.selectSQL)
	if err != nil {
		return nil, &StorageReadError{Path: s.path, Err: err}
	}
	defer rows.Close()

	records := make([]customer.Record, 0)
	width := len(customer.InputColumns())
	for rows.Next() {
		vec := make([]float64, width)
		var prediction int
		dest := make([]any, 0, width+1)
		for i := range vec {
			dest = append(dest, &vec[i])
		}
		dest = append(dest, &prediction)
		if err := rows.Scan(dest...); err != nil {
			return nil, &StorageReadError{Path: s.path, Line: len(records) + 1, Err: err}
		}
		rec, err := customer.FromVector(vec, &prediction)
		if err == nil {
			err = rec.Validate(storedBounds, true)
		}
		if err != nil {
			return nil, &StorageReadError{Path: s.path, Line: len(records) + 1, Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageReadError{Path: s.path, Err: err}
	}
	return records, nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM predictions").Scan(&n); err != nil {
		return 0, &StorageReadError{Path: s.path, Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) DeleteAt(ctx context.Context, position int) error {
	s.mu.Lock()
	err := s.deleteLocked(ctx, func(n int) ([]int, error) {
		if position < 0 || position >= n {
			return nil, &IndexOutOfRangeError{Position: position, Len: n}
		}
		return []int{position}, nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(Event{Op: OpDelete, Positions: []int{position}})
	return nil
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, positions []int) (int, error) {
	var removed []int
	s.mu.Lock()
	err := s.deleteLocked(ctx, func(n int) ([]int, error) {
		removed = validPositions(positions, n)
		return removed, nil
	})
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		s.publish(Event{Op: OpDelete, Positions: removed})
	}
	return len(removed), nil
}

// deleteLocked maps positions to row ids and deletes them in one transaction.
func (s *SQLiteStore) deleteLocked(ctx context.Context, choose func(n int) ([]int, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageWriteError{Op: "delete", Path: s.path, Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM predictions ORDER BY id")
	if err != nil {
		return &StorageReadError{Path: s.path, Err: err}
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return &StorageReadError{Path: s.path, Err: err}
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &StorageReadError{Path: s.path, Err: err}
	}

	positions, err := choose(len(ids))
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM predictions WHERE id = ?")
	if err != nil {
		return &StorageWriteError{Op: "delete", Path: s.path, Err: err}
	}
	defer stmt.Close()
	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, ids[p]); err != nil {
			return &StorageWriteError{Op: "delete", Path: s.path, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageWriteError{Op: "delete", Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM predictions")
	s.mu.Unlock()
	if err != nil {
		return &StorageWriteError{Op: "clear", Path: s.path, Err: err}
	}
	s.publish(Event{Op: OpClear})
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
