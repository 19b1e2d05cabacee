// Package history persists scored customer records as an ordered table.
//
// Row position is the only key. Every delete shifts the rows after it down,
// so callers must re-read the table before choosing positions again.
package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"churnguard/customer"
)

const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Store is a durable, ordered table of scored records. Mutations are
// serialized; reads may run concurrently and see a consistent snapshot.
type Store interface {
	// Append adds r at the end of the table.
	Append(ctx context.Context, r customer.Record) error
	// LoadAll returns every row in append order. Missing storage is empty.
	LoadAll(ctx context.Context) ([]customer.Record, error)
	// DeleteAt removes one row; later rows shift down by one.
	DeleteAt(ctx context.Context, position int) error
	// DeleteMany removes the valid positions in one write and ignores the
	// rest. It returns the number of rows removed.
	DeleteMany(ctx context.Context, positions []int) (int, error)
	// Clear empties the table and keeps its schema.
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Subscribe(fn func(Event))
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	Bounds  customer.Bounds
}

// Open returns the configured backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendCSV:
		return NewCSVStore(opts.Path, opts.Bounds)
	case BackendSQLite:
		return NewSQLiteStore(opts.Path, opts.Bounds)
	default:
		return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
	}
}

type Op string

const (
	OpAppend  Op = "append"
	OpDelete  Op = "delete"
	OpClear   Op = "clear"
	OpChanged Op = "changed"
)

// Event describes a committed change to the table.
type Event struct {
	Op        Op        `json:"op"`
	Positions []int     `json:"positions,omitempty"`
	At        time.Time `json:"at"`
}

type notifier struct {
	mu        sync.RWMutex
	listeners []func(Event)
}

// Subscribe registers fn for every committed change. fn runs on the
// mutating goroutine after the store lock is released.
func (n *notifier) Subscribe(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

func (n *notifier) publish(e Event) {
	n.mu.RLock()
	listeners := make([]func(Event), len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, fn := range listeners {
		fn(e)
	}
}

// StorageWriteError means the table could not be written.
type StorageWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// StorageReadError means the table exists but could not be read. Line is 0
// when the failure is not tied to a row.
type StorageReadError struct {
	Path string
	Line int
	Err  error
}

func (e *StorageReadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("history read %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("history read %s: %v", e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// IndexOutOfRangeError is returned for a position outside [0, Len-1].
type IndexOutOfRangeError struct {
	Position int
	Len      int
}

func (e *IndexOutOfRangeError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("position %d out of range: table is empty", e.Position)
	}
	return fmt.Sprintf("position %d out of range [0, %d]", e.Position, e.Len-1)
}

// storedBounds only bounds enumerations and tenure: charge maxima are input
// policy and may change after rows were written.
var storedBounds = customer.Bounds{
	MaxMonthlyCharges: math.MaxFloat64,
	MaxTotalCharges:   math.MaxFloat64,
}

// validPositions returns the distinct in-range positions, ascending.
func validPositions(positions []int, n int) []int {
	seen := make(map[int]bool, len(positions))
	valid := make([]int, 0, len(positions))
	for _, p := range positions {
		if p < 0 || p >= n || seen[p] {
			continue
		}
		seen[p] = true
		valid = append(valid, p)
	}
	sort.Ints(valid)
	return valid
}

func removePositions(records []customer.Record, sorted []int) []customer.Record {
	out := make([]customer.Record, 0, len(records)-len(sorted))
	next := 0
	for i, r := range records {
		if next < len(sorted) && sorted[next] == i {
			next++
			continue
		}
		out = append(out, r)
	}
	return out
}
