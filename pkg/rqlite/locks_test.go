package rqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireOrderedRejectsUnknownLock(t *testing.T) {
	registry := NewLockRegistry("A", "B")
	_, err := registry.AcquireOrdered(context.Background(), 1, "A", "C")
	if !errors.Is(err, ErrLockOrderViolation) {
		t.Fatalf("expected ErrLockOrderViolation, got %v", err)
	}
}

func TestAcquireOrderedSortsRegardlessOfInputOrder(t *testing.T) {
	registry := NewLockRegistry("A", "B")
	set, err := registry.AcquireOrdered(context.Background(), 1, "B", "A")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(set.names) != 2 || set.names[0] != "A" || set.names[1] != "B" {
		t.Fatalf("expected sorted [A B], got %v", set.names)
	}
	set.Release()
}

func TestAcquireOrderedBlocksConcurrentHolder(t *testing.T) {
	registry := NewLockRegistry("A", "B")
	set, err := registry.AcquireOrdered(context.Background(), 1, "A", "B")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = registry.AcquireOrdered(ctx, 2, "A", "B")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while held, got %v", err)
	}
	set.Release()
}

func TestAcquireOrderedSerializesAcrossGoroutines(t *testing.T) {
	registry := NewLockRegistry("A", "B")
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			set, err := registry.AcquireOrdered(context.Background(), int64(n), "A", "B")
			if err != nil {
				t.Errorf("acquire %d: %v", n, err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			set.Release()
		}(i)
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 completions, got %d", len(order))
	}
}
