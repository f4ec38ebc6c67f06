package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerProcessesEveryItem(t *testing.T) {
	var seen atomic.Int64
	m := NewManager("test", 3, func(ctx context.Context, n int) error {
		seen.Add(int64(n))
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	stats, err := m.Process(context.Background(), []int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if stats.Succeeded != 3 || stats.Failed != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if seen.Load() != 15 {
		t.Errorf("sum = %d, want 15", seen.Load())
	}
}

func TestManagerBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	m := NewManager("test", 2, func(ctx context.Context, _ int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	if _, err := m.Process(context.Background(), make([]int, 10)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestManagerAllFailed(t *testing.T) {
	m := NewManager("test", 0, func(ctx context.Context, _ string) error {
		return errors.New("nope")
	})
	stats, err := m.Process(context.Background(), []string{"a", "b"})
	if err == nil || stats.Failed != 2 {
		t.Errorf("Process() = %+v, %v", stats, err)
	}

	if stats, err := m.Process(context.Background(), nil); err != nil || stats != (Stats{}) {
		t.Errorf("Process(nil) = %+v, %v", stats, err)
	}
}

func TestManagerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager("test", 1, func(ctx context.Context, _ int) error { return nil })
	if _, err := m.Process(ctx, []int{1, 2, 3}); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}
