package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type snapshot struct {
	IDs []string `json:"ids"`
}

// --- Tests ---

func TestMemory_SetAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetJSON(ctx, "org:o1", snapshot{IDs: []string{"a", "b"}}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got snapshot
	hit, err := m.GetJSON(ctx, "org:o1", &got)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !hit {
		t.Fatal("expected hit")
	}
	if len(got.IDs) != 2 || got.IDs[1] != "b" {
		t.Errorf("got %+v", got)
	}
}

func TestMemory_Miss(t *testing.T) {
	m := NewMemory()

	var got snapshot
	hit, err := m.GetJSON(context.Background(), "missing", &got)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if hit {
		t.Error("expected miss")
	}
}

func TestMemory_TTL(t *testing.T) {
	clock := &mockClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock)
	ctx := context.Background()

	if err := m.SetJSON(ctx, "k", snapshot{IDs: []string{"a"}}, 60*time.Second); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	clock.Advance(59 * time.Second)
	var got snapshot
	if hit, _ := m.GetJSON(ctx, "k", &got); !hit {
		t.Error("expected hit before TTL")
	}

	clock.Advance(2 * time.Second)
	if hit, _ := m.GetJSON(ctx, "k", &got); hit {
		t.Error("expected miss after TTL")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not evicted, Len = %d", m.Len())
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	clock := &mockClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clock)
	ctx := context.Background()

	m.SetJSON(ctx, "k", snapshot{}, 0)
	clock.Advance(24 * time.Hour)

	var got snapshot
	if hit, _ := m.GetJSON(ctx, "k", &got); !hit {
		t.Error("expected hit for entry without TTL")
	}
}

func TestMemory_Del(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SetJSON(ctx, "a", snapshot{}, time.Minute)
	m.SetJSON(ctx, "b", snapshot{}, time.Minute)
	if err := m.Del(ctx, "a", "b", "never-set"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemory_ReturnsPrivateCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SetJSON(ctx, "k", snapshot{IDs: []string{"a"}}, time.Minute)

	var first snapshot
	m.GetJSON(ctx, "k", &first)
	first.IDs[0] = "mutated"

	var second snapshot
	m.GetJSON(ctx, "k", &second)
	if second.IDs[0] != "a" {
		t.Errorf("cached value was mutated: %+v", second)
	}
}

func TestMemory_CorruptEntryIsMiss(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SetJSON(ctx, "k", "just a string", time.Minute)

	var got snapshot
	hit, err := m.GetJSON(ctx, "k", &got)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if hit {
		t.Error("expected miss for undecodable entry")
	}
	if m.Len() != 0 {
		t.Error("undecodable entry should be dropped")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got snapshot
			m.SetJSON(ctx, "k", snapshot{IDs: []string{"x"}}, time.Minute)
			m.GetJSON(ctx, "k", &got)
			m.Del(ctx, "k")
		}()
	}
	wg.Wait()
}
