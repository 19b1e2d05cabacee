package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"churnguard/customer"
)

func TestWatchReportsExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	writer, err := NewCSVStore(path, customer.DefaultBounds())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(e Event) { events <- e }, nil)
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	seed(t, writer, 1)
	_ = writer.DeleteAt(context.Background(), 0)

	select {
	case e := <-events:
		if e.Op != OpChanged {
			t.Fatalf("unexpected op %s", e.Op)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
