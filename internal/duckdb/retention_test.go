package duckdb

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/logboard/internal/model"
)

type countingPruner struct {
	calls   atomic.Int32
	cutoffs chan time.Time
}

func (p *countingPruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls.Add(1)
	select {
	case p.cutoffs <- cutoff:
	default:
	}
	return 0, nil
}

func TestRetentionCleaner_DisabledReturnsNil(t *testing.T) {
	store := newTestStore(t)
	if c := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0}); c != nil {
		t.Fatal("expected nil cleaner when retention is disabled")
	}
}

func TestRetentionCleaner_StopEndsRun(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- cleaner.Run(context.Background()) }()

	cleaner.Stop()
	cleaner.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRetentionCleaner_StartupCleanupDeletesExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	recent := now.Add(-time.Hour)

	seed(t, store, []model.RecordDraft{
		{Timestamp: &old, Message: "expired entry", Severity: model.SeverityInfo, Source: "api"},
		{Timestamp: &recent, Message: "fresh entry", Severity: model.SeverityInfo, Source: "api"},
	})

	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 2})

	// A cancelled context still gets the catch-up pass before Run returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cleaner.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, total, err := store.Scan(context.Background(), model.Predicate{}, model.Order{}, 0, -1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if total != 1 {
		t.Errorf("records after cleanup = %d, want 1", total)
	}
}

func TestRetentionCleaner_RunsEveryInterval(t *testing.T) {
	pruner := &countingPruner{cutoffs: make(chan time.Time, 8)}
	cleaner := NewRetentionCleaner(pruner, RetentionConfig{RetentionDays: 3, Interval: 10 * time.Millisecond})
	fixed := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	cleaner.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- cleaner.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case cutoff := <-pruner.cutoffs:
			if want := fixed.Add(-72 * time.Hour); !cutoff.Equal(want) {
				t.Errorf("cutoff = %v, want %v", cutoff, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d cleanups ran", pruner.calls.Load())
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
}
