package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"churnguard/customer"
)

// CSVStore keeps the table in a header-declared CSV file. Appends add one
// line in place; deletes and clears rewrite the file through a temporary
// file and a rename. Every mutation holds an advisory lock on <path>.lock,
// so a dashboard and churnctl can share one file.
type CSVStore struct {
	notifier

	path   string
	bounds customer.Bounds
	lock   *pathLock
}

const lockRetry = 10 * time.Millisecond

// pathLock serializes access to one table: mu between goroutines of this
// process, file between processes.
type pathLock struct {
	mu   sync.RWMutex
	file *flock.Flock
}

// tableLocks holds one lock per absolute path so that every CSVStore opened
// on the same file in this process shares it.
var tableLocks sync.Map

func tableLock(path string) *pathLock {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	l, _ := tableLocks.LoadOrStore(path, &pathLock{file: flock.New(path + ".lock")})
	return l.(*pathLock)
}

func (l *pathLock) lock(ctx context.Context) error {
	l.mu.Lock()
	ok, err := l.file.TryLockContext(ctx, lockRetry)
	if err == nil && !ok {
		err = errors.New("table lock not acquired")
	}
	if err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *pathLock) unlock() {
	l.file.Unlock()
	l.mu.Unlock()
}

// rlock takes a shared lock. Each reader opens its own descriptor because
// flock state belongs to the open file, not the process.
func (l *pathLock) rlock(ctx context.Context) (func(), error) {
	l.mu.RLock()
	shared := flock.New(l.file.Path())
	ok, err := shared.TryRLockContext(ctx, lockRetry)
	if err == nil && !ok {
		err = errors.New("table lock not acquired")
	}
	if err != nil {
		l.mu.RUnlock()
		return nil, err
	}
	return func() {
		shared.Unlock()
		l.mu.RUnlock()
	}, nil
}

// NewCSVStore creates the directory and a header-only file if absent.
func NewCSVStore(path string, bounds customer.Bounds) (*CSVStore, error) {
	if path == "" {
		return nil, errors.New("history path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageWriteError{Op: "create", Path: path, Err: err}
	}
	s := &CSVStore{path: path, bounds: bounds, lock: tableLock(path)}

	if err := s.lock.lock(context.Background()); err != nil {
		return nil, &StorageWriteError{Op: "lock", Path: path, Err: err}
	}
	defer s.lock.unlock()
	if err := s.ensureTableLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) Append(ctx context.Context, r customer.Record) error {
	if err := r.Validate(s.bounds, true); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.lock.lock(ctx); err != nil {
		return &StorageWriteError{Op: "lock", Path: s.path, Err: err}
	}
	err := s.appendLocked(r)
	s.lock.unlock()
	if err != nil {
		return err
	}
	s.publish(Event{Op: OpAppend})
	return nil
}

func (s *CSVStore) appendLocked(r customer.Record) error {
	if err := s.ensureTableLocked(); err != nil {
		return err
	}
	// a table that cannot be read back must not grow
	if _, err := s.readLocked(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageWriteError{Op: "append", Path: s.path, Err: err}
	}
	defer f.Close()

	var buf bytes.Buffer
	if missingNewline(f) {
		buf.WriteByte('\n')
	}
	cw := csv.NewWriter(&buf)
	if err := cw.Write(r.Row()); err != nil {
		return &StorageWriteError{Op: "append", Path: s.path, Err: err}
	}
	cw.Flush()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return &StorageWriteError{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageWriteError{Op: "append", Path: s.path, Err: err}
	}
	return nil
}

func (s *CSVStore) LoadAll(ctx context.Context) ([]customer.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	release, err := s.lock.rlock(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		return []customer.Record{}, nil
	}
	if err != nil {
		return nil, &StorageReadError{Path: s.path, Err: err}
	}
	defer release()
	return s.readLocked()
}

func (s *CSVStore) Len(ctx context.Context) (int, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *CSVStore) DeleteAt(ctx context.Context, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.lock.lock(ctx); err != nil {
		return &StorageWriteError{Op: "lock", Path: s.path, Err: err}
	}
	err := func() error {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		if position < 0 || position >= len(records) {
			return &IndexOutOfRangeError{Position: position, Len: len(records)}
		}
		return s.rewriteLocked("delete", removePositions(records, []int{position}))
	}()
	s.lock.unlock()
	if err != nil {
		return err
	}
	s.publish(Event{Op: OpDelete, Positions: []int{position}})
	return nil
}

func (s *CSVStore) DeleteMany(ctx context.Context, positions []int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed []int
	if err := s.lock.lock(ctx); err != nil {
		return 0, &StorageWriteError{Op: "lock", Path: s.path, Err: err}
	}
	err := func() error {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		removed = validPositions(positions, len(records))
		if len(removed) == 0 {
			return nil
		}
		return s.rewriteLocked("delete", removePositions(records, removed))
	}()
	s.lock.unlock()
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		s.publish(Event{Op: OpDelete, Positions: removed})
	}
	return len(removed), nil
}

func (s *CSVStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.lock.lock(ctx); err != nil {
		return &StorageWriteError{Op: "lock", Path: s.path, Err: err}
	}
	err := s.rewriteLocked("clear", nil)
	s.lock.unlock()
	if err != nil {
		return err
	}
	s.publish(Event{Op: OpClear})
	return nil
}

func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) readLocked() ([]customer.Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []customer.Record{}, nil
	}
	if err != nil {
		return nil, &StorageReadError{Path: s.path, Err: err}
	}
	defer f.Close()

	records, err := ReadTable(f)
	if err != nil {
		var readErr *StorageReadError
		if errors.As(err, &readErr) {
			readErr.Path = s.path
			return nil, readErr
		}
		return nil, &StorageReadError{Path: s.path, Err: err}
	}
	return records, nil
}

// ensureTableLocked creates the directory and header when the file is
// missing or empty, and rejects a file whose header does not match.
func (s *CSVStore) ensureTableLocked() error {
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && info.Size() == 0:
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return &StorageWriteError{Op: "create", Path: s.path, Err: err}
		}
		return s.rewriteLocked("create", nil)
	case err != nil:
		return &StorageReadError{Path: s.path, Err: err}
	}

	f, err := os.Open(s.path)
	if err != nil {
		return &StorageReadError{Path: s.path, Err: err}
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return &StorageReadError{Path: s.path, Line: 1, Err: err}
	}
	if len(header) != len(customer.Columns()) {
		return &StorageReadError{Path: s.path, Line: 1, Err: errors.New("header does not match the record schema")}
	}
	if err := checkHeader(header); err != nil {
		return &StorageReadError{Path: s.path, Line: 1, Err: err}
	}
	return nil
}

func (s *CSVStore) rewriteLocked(op string, records []customer.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.csv")
	if err != nil {
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := WriteTable(tmp, records); err != nil {
		tmp.Close()
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StorageWriteError{Op: op, Path: s.path, Err: err}
	}
	return nil
}

// missingNewline reports whether a non-empty file lacks a trailing newline.
func missingNewline(f *os.File) bool {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false
	}
	return last[0] != '\n'
}
