package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const backupPrefix = "history-"

// Backup writes a snapshot of store to dir and returns the file path.
func Backup(ctx context.Context, store Store, dir string, now time.Time) (string, error) {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &StorageWriteError{Op: "backup", Path: dir, Err: err}
	}

	path := filepath.Join(dir, fmt.Sprintf("%s%s.csv", backupPrefix, now.UTC().Format("20060102-150405.000")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &StorageWriteError{Op: "backup", Path: path, Err: err}
	}
	if err := WriteTable(f, records); err != nil {
		f.Close()
		return "", &StorageWriteError{Op: "backup", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &StorageWriteError{Op: "backup", Path: path, Err: err}
	}
	return path, nil
}

// PruneBackups keeps the newest keep snapshots in dir and returns the removed
// paths. keep <= 0 keeps everything.
func PruneBackups(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return nil, nil
	}
	sort.Strings(names)

	var removed []string
	for _, name := range names[:len(names)-keep] {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// BackupScheduler snapshots a store on a cron schedule.
type BackupScheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	store  Store
	dir    string
	keep   int
	logger *zap.Logger
}

// NewBackupScheduler validates schedule (standard five-field cron syntax)
// and prepares the job. Call Start to run it.
func NewBackupScheduler(store Store, dir, schedule string, keep int, logger *zap.Logger) (*BackupScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &BackupScheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		store:  store,
		dir:    dir,
		keep:   keep,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run takes one snapshot and prunes old ones.
func (s *BackupScheduler) Run() {
	path, err := Backup(s.ctx, s.store, s.dir, time.Now())
	if err != nil {
		s.logger.Error("history backup failed", zap.String("dir", s.dir), zap.Error(err))
		return
	}
	removed, err := PruneBackups(s.dir, s.keep)
	if err != nil {
		s.logger.Warn("history backup prune failed", zap.String("dir", s.dir), zap.Error(err))
	}
	s.logger.Info("history backup written", zap.String("path", path), zap.Int("pruned", len(removed)))
}

func (s *BackupScheduler) Start() {
	s.cron.Start()
	s.logger.Info("history backup scheduler started", zap.String("dir", s.dir))
}

func (s *BackupScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("history backup scheduler stopped")
}
