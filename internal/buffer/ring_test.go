package buffer

import (
	"sync"
	"testing"
)

func TestRingPushAndAll(t *testing.T) {
	r := NewRing[int](3)

	r.Push(1)
	r.Push(2)
	r.Push(3)

	got := r.All()
	want := []int{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("All() returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)

	// Push capacity + 2 items; only the most recent 3 survive.
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	got := r.All()
	want := []int{5, 4, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingLatestOldest(t *testing.T) {
	r := NewRing[string](2)

	if _, ok := r.Latest(); ok {
		t.Error("Latest() on empty buffer reported ok")
	}
	if _, ok := r.Oldest(); ok {
		t.Error("Oldest() on empty buffer reported ok")
	}

	r.Push("a")
	r.Push("b")
	r.Push("c") // evicts "a"

	latest, ok := r.Latest()
	if !ok || latest != "c" {
		t.Errorf("Latest() = %q, %v, want %q, true", latest, ok, "c")
	}

	oldest, ok := r.Oldest()
	if !ok || oldest != "b" {
		t.Errorf("Oldest() = %q, %v, want %q, true", oldest, ok, "b")
	}
}

func TestRingRecent(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Recent(2)
	if len(got) != 2 || got[0] != 5 || got[1] != 4 {
		t.Errorf("Recent(2) = %v, want [5 4]", got)
	}

	// Asking for more than the size returns everything.
	if got := r.Recent(100); len(got) != 5 {
		t.Errorf("Recent(100) returned %d items, want 5", len(got))
	}
}

func TestRingFilter(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}

	even := r.Filter(func(v int) bool { return v%2 == 0 })
	want := []int{6, 4, 2}
	if len(even) != len(want) {
		t.Fatalf("Filter() returned %d items, want %d", len(even), len(want))
	}
	for i := range want {
		if even[i] != want[i] {
			t.Errorf("Filter()[%d] = %d, want %d", i, even[i], want[i])
		}
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[int](4)
	r.Push(1)
	r.Push(2)

	r.Clear()

	if !r.IsEmpty() {
		t.Error("IsEmpty() = false after Clear()")
	}
	if r.Cap() != 4 {
		t.Errorf("Cap() = %d after Clear(), want 4", r.Cap())
	}
	if got := r.All(); got != nil {
		t.Errorf("All() = %v after Clear(), want nil", got)
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(7)

	if r.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", r.Cap())
	}
	latest, ok := r.Latest()
	if !ok || latest != 7 {
		t.Errorf("Latest() = %d, %v, want 7, true", latest, ok)
	}
}

func TestRingConcurrentAccess(t *testing.T) {
	r := NewRing[int](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(base + i)
				_ = r.All()
				_, _ = r.Latest()
			}
		}(g * 1000)
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len() = %d after concurrent pushes, want 64", r.Len())
	}
}
