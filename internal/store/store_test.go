package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/23f2000792/tambola/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "tambola.db"), Mode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotCreatesEmptyState(t *testing.T) {
	s := openStore(t)
	snap, err := s.Snapshot(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 0 {
		t.Fatalf("expected empty sequence, got %v", snap.CalledNumbers)
	}
	if snap.CurrentNumber != nil {
		t.Fatalf("expected no current number, got %d", *snap.CurrentNumber)
	}
	if snap.Revision != 0 {
		t.Fatalf("expected revision 0, got %d", snap.Revision)
	}
}

func TestAppendGrowsByOne(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i, n := range []int{17, 4, 90} {
		snap, err := s.Append(ctx, "game-1", n)
		if err != nil {
			t.Fatalf("append %d: %v", n, err)
		}
		if len(snap.CalledNumbers) != i+1 {
			t.Fatalf("expected %d numbers, got %d", i+1, len(snap.CalledNumbers))
		}
		if snap.CurrentNumber == nil || *snap.CurrentNumber != n {
			t.Fatalf("expected current number %d, got %v", n, snap.CurrentNumber)
		}
		if snap.CalledNumbers[len(snap.CalledNumbers)-1] != n {
			t.Fatalf("current number must be the last element")
		}
		if snap.Revision != int64(i+1) {
			t.Fatalf("expected revision %d, got %d", i+1, snap.Revision)
		}
	}

	// Insertion order is the draw order.
	snap, err := s.Snapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := []int{17, 4, 90}
	for i, n := range want {
		if snap.CalledNumbers[i] != n {
			t.Fatalf("expected order %v, got %v", want, snap.CalledNumbers)
		}
	}
}

func TestAppendDuplicateConflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "game-1", 23); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(ctx, "game-1", 23); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	snap, err := s.Snapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 1 || snap.Revision != 1 {
		t.Fatalf("conflict must leave state unchanged, got %v rev %d", snap.CalledNumbers, snap.Revision)
	}
}

func TestConcurrentAppendsNeverDuplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// Many goroutines race to commit the same number; exactly one wins.
	const racers = 10
	var wins, conflicts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, "game-1", 55)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	if conflicts.Load() != racers-1 {
		t.Fatalf("expected %d conflicts, got %d", racers-1, conflicts.Load())
	}
}

func TestResetIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, n := range []int{1, 2, 3} {
		if _, err := s.Append(ctx, "game-1", n); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, err := s.Reset(ctx, "game-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(first.CalledNumbers) != 0 || first.CurrentNumber != nil {
		t.Fatalf("expected empty state after reset, got %+v", first)
	}

	second, err := s.Reset(ctx, "game-1")
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if len(second.CalledNumbers) != 0 || second.CurrentNumber != nil {
		t.Fatalf("expected empty state after repeated reset, got %+v", second)
	}
	if second.Revision <= first.Revision {
		t.Fatalf("revision must still advance on reset: %d then %d", first.Revision, second.Revision)
	}

	// Numbers freed by the reset can be drawn again.
	if _, err := s.Append(ctx, "game-1", 2); err != nil {
		t.Fatalf("append after reset: %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "game-a", 7); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := s.Append(ctx, "game-b", 7); err != nil {
		t.Fatalf("append b: %v", err)
	}
	snap, err := s.Snapshot(ctx, "game-b")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 1 {
		t.Fatalf("expected one number in game-b, got %v", snap.CalledNumbers)
	}
}

func TestEphemeralMode(t *testing.T) {
	cfg := config.StoreConfig{Mode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open ephemeral store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.Append(context.Background(), "game-1", 12); err != nil {
		t.Fatalf("append: %v", err)
	}
	snap, err := s.Snapshot(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 1 {
		t.Fatalf("expected one number, got %v", snap.CalledNumbers)
	}
}
