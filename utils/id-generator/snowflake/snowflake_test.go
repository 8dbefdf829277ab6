package snowflake

import (
	"sync"
	"testing"
)

func TestNewGeneratorRejectsOutOfRangeNode(t *testing.T) {
	for _, nodeID := range []int64{-1, MaxNodeID + 1} {
		if _, err := NewGenerator(nodeID); err == nil {
			t.Fatalf("expected error for node id %d", nodeID)
		}
	}
	if _, err := NewGenerator(MaxNodeID); err != nil {
		t.Fatalf("node id %d should be valid: %v", MaxNodeID, err)
	}
}

func TestNewGeneratorFromEnv(t *testing.T) {
	t.Setenv(EnvNodeID, "42")
	if _, err := NewGeneratorFromEnv(); err != nil {
		t.Fatalf("valid env node id: %v", err)
	}

	t.Setenv(EnvNodeID, "not-a-number")
	if _, err := NewGeneratorFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric node id")
	}

	t.Setenv(EnvNodeID, "9999")
	if _, err := NewGeneratorFromEnv(); err == nil {
		t.Fatal("expected error for out-of-range node id")
	}
}

func TestGenerateUnique(t *testing.T) {
	gen, err := NewGenerator(1)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	seen := make(map[int64]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen.Generate()
		if id <= 0 {
			t.Fatalf("id must be positive, got %d", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	gen, err := NewGenerator(2)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	const goroutines = 8
	const perGoroutine = 200

	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
}

func TestParseRoundTrip(t *testing.T) {
	gen, err := NewGenerator(3)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	s := gen.GenerateString()
	id, err := Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if got := s; got == "" || id <= 0 {
		t.Fatalf("round trip failed: %q -> %d", s, id)
	}

	if _, err := Parse("definitely-not-an-id"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultGenerator(t *testing.T) {
	a := Generate()
	b := Generate()
	if a == b {
		t.Fatalf("default generator returned duplicate id %d", a)
	}
}
