package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"churnguard/customer"
)

type opener func(t *testing.T, path string) Store

func backends() map[string]struct {
	file string
	open opener
} {
	return map[string]struct {
		file string
		open opener
	}{
		"csv": {"predictions.csv", func(t *testing.T, path string) Store {
			t.Helper()
			s, err := NewCSVStore(path, customer.DefaultBounds())
			if err != nil {
				t.Fatalf("open csv store: %v", err)
			}
			return s
		}},
		"sqlite": {"predictions.db", func(t *testing.T, path string) Store {
			t.Helper()
			s, err := NewSQLiteStore(path, customer.DefaultBounds())
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

// rec returns a valid record whose tenure identifies it.
func rec(tenure, prediction int) customer.Record {
	r := customer.Record{
		Gender:          tenure % 2,
		Tenure:          tenure,
		InternetService: 1,
		PaymentMethod:   2,
		MonthlyCharges:  float64(tenure) + 0.5,
		TotalCharges:    float64(tenure) * 10,
	}
	return r.WithPrediction(prediction)
}

func tenures(records []customer.Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Tenure
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seed(t *testing.T, s Store, ts ...int) {
	t.Helper()
	for _, tenure := range ts {
		if err := s.Append(context.Background(), rec(tenure, tenure%2)); err != nil {
			t.Fatalf("append %d: %v", tenure, err)
		}
	}
}

func TestStoreContract(t *testing.T) {
	for name, b := range backends() {
		b := b
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			newStore := func(t *testing.T) Store {
				return b.open(t, filepath.Join(t.TempDir(), "data", b.file))
			}

			t.Run("empty on first run", func(t *testing.T) {
				s := newStore(t)
				records, err := s.LoadAll(ctx)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(records) != 0 {
					t.Fatalf("expected empty table, got %d rows", len(records))
				}
			})

			t.Run("append round trip", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 1, 2)
				want := rec(42, 1)
				if err := s.Append(ctx, want); err != nil {
					t.Fatalf("append: %v", err)
				}
				records, err := s.LoadAll(ctx)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				if len(records) != 3 {
					t.Fatalf("expected 3 rows, got %d", len(records))
				}
				last := records[len(records)-1]
				if *last.Prediction != 1 {
					t.Fatalf("unexpected prediction %d", *last.Prediction)
				}
				last.Prediction, want.Prediction = nil, nil
				if last != want {
					t.Fatalf("last row %+v, want %+v", last, want)
				}
			})

			t.Run("append rejects unscored record", func(t *testing.T) {
				s := newStore(t)
				r := rec(5, 0)
				r.Prediction = nil
				var inErr *customer.InvalidInputError
				if err := s.Append(ctx, r); !errors.As(err, &inErr) {
					t.Fatalf("expected InvalidInputError, got %v", err)
				}
				if n, _ := s.Len(ctx); n != 0 {
					t.Fatalf("expected nothing written, got %d rows", n)
				}
			})

			t.Run("delete at shifts later rows", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 10, 11, 12, 13)
				if err := s.DeleteAt(ctx, 1); err != nil {
					t.Fatalf("delete: %v", err)
				}
				records, _ := s.LoadAll(ctx)
				if got := tenures(records); !equalInts(got, []int{10, 12, 13}) {
					t.Fatalf("unexpected rows after delete: %v", got)
				}
			})

			t.Run("delete at out of range", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 10, 11)
				for _, pos := range []int{-1, 2, 99} {
					var rangeErr *IndexOutOfRangeError
					if err := s.DeleteAt(ctx, pos); !errors.As(err, &rangeErr) {
						t.Fatalf("position %d: expected IndexOutOfRangeError, got %v", pos, err)
					}
				}
				if n, _ := s.Len(ctx); n != 2 {
					t.Fatalf("expected storage untouched, got %d rows", n)
				}
			})

			t.Run("delete many ignores invalid positions", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 20, 21, 22, 23, 24)
				n, err := s.DeleteMany(ctx, []int{4, 0, 0, 9, -3, 2})
				if err != nil {
					t.Fatalf("delete many: %v", err)
				}
				if n != 3 {
					t.Fatalf("expected 3 rows removed, got %d", n)
				}
				records, _ := s.LoadAll(ctx)
				if got := tenures(records); !equalInts(got, []int{21, 23}) {
					t.Fatalf("unexpected rows after delete many: %v", got)
				}

				n, err = s.DeleteMany(ctx, []int{7, 8})
				if err != nil || n != 0 {
					t.Fatalf("expected no-op, got %d (%v)", n, err)
				}
			})

			t.Run("clear keeps schema", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 30, 31)
				if err := s.Clear(ctx); err != nil {
					t.Fatalf("clear: %v", err)
				}
				records, err := s.LoadAll(ctx)
				if err != nil || len(records) != 0 {
					t.Fatalf("expected empty table, got %d rows (%v)", len(records), err)
				}
				seed(t, s, 32)
				if n, _ := s.Len(ctx); n != 1 {
					t.Fatalf("expected append after clear to succeed, got %d rows", n)
				}
			})

			t.Run("events", func(t *testing.T) {
				s := newStore(t)
				var mu sync.Mutex
				var ops []Op
				s.Subscribe(func(e Event) {
					mu.Lock()
					ops = append(ops, e.Op)
					mu.Unlock()
				})
				seed(t, s, 1, 2)
				_ = s.DeleteAt(ctx, 0)
				_ = s.DeleteAt(ctx, 5)
				_ = s.Clear(ctx)

				mu.Lock()
				defer mu.Unlock()
				want := []Op{OpAppend, OpAppend, OpDelete, OpClear}
				if len(ops) != len(want) {
					t.Fatalf("unexpected events %v", ops)
				}
				for i := range want {
					if ops[i] != want[i] {
						t.Fatalf("unexpected events %v", ops)
					}
				}
			})

			t.Run("concurrent appends from independent callers", func(t *testing.T) {
				path := filepath.Join(t.TempDir(), b.file)
				first := b.open(t, path)
				second := b.open(t, path)

				var wg sync.WaitGroup
				errs := make(chan error, 2)
				for i, s := range []Store{first, second} {
					wg.Add(1)
					go func(s Store, tenure int) {
						defer wg.Done()
						errs <- s.Append(ctx, rec(tenure, 0))
					}(s, i+1)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					if err != nil {
						t.Fatalf("append: %v", err)
					}
				}
				if n, _ := first.Len(ctx); n != 2 {
					t.Fatalf("expected 2 rows, got %d", n)
				}
			})

			t.Run("concurrent appends and deletes", func(t *testing.T) {
				s := newStore(t)
				seed(t, s, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

				var wg sync.WaitGroup
				for i := 0; i < 10; i++ {
					wg.Add(2)
					go func(i int) {
						defer wg.Done()
						if err := s.Append(ctx, rec(40+i, 1)); err != nil {
							t.Errorf("append: %v", err)
						}
					}(i)
					go func() {
						defer wg.Done()
						if err := s.DeleteAt(ctx, 0); err != nil {
							t.Errorf("delete: %v", err)
						}
					}()
				}
				wg.Wait()
				if n, _ := s.Len(ctx); n != 10 {
					t.Fatalf("expected 10 rows, got %d", n)
				}
			})
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Path: filepath.Join(dir, "h.csv"), Bounds: customer.DefaultBounds()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*CSVStore); !ok {
		t.Fatalf("expected csv store by default, got %T", s)
	}
	if _, err := Open(Options{Backend: "redis", Path: filepath.Join(dir, "h")}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
