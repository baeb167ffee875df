package rules

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRuleStoreInterfaceExists(t *testing.T) {
	var _ RuleStore = (*InMemoryRuleStore)(nil)
	var _ RuleStore = (*PostgresRuleStore)(nil)
}

func TestInMemoryRuleStoreAddAndGet(t *testing.T) {
	store := NewInMemoryRuleStore()

	rule := &Rule{
		ID:         "long-delay",
		Name:       "Long delay",
		Expression: `candidate.delay_minutes > 240`,
		Reason:     "Delays beyond four hours need a re-plan.",
		Active:     true,
	}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	retrieved, err := store.Get("long-delay")
	if err != nil {
		t.Fatalf("Get() failed after Add(): %v", err)
	}
	if retrieved.Name != rule.Name || retrieved.Reason != rule.Reason {
		t.Errorf("Get() = %+v, want %+v", retrieved, rule)
	}
	if retrieved.CreatedAt.IsZero() || !retrieved.CreatedAt.Equal(retrieved.UpdatedAt) {
		t.Errorf("Add() should stamp equal CreatedAt/UpdatedAt, got %v / %v", retrieved.CreatedAt, retrieved.UpdatedAt)
	}
}

func TestInMemoryRuleStoreAddDuplicate(t *testing.T) {
	store := NewInMemoryRuleStore()

	if err := store.Add(&Rule{ID: "dup", Expression: `true`, Active: true}); err != nil {
		t.Fatalf("First Add() should succeed: %v", err)
	}
	if err := store.Add(&Rule{ID: "dup", Expression: `false`, Active: true}); err == nil {
		t.Fatal("Add() with duplicate ID should return error")
	}
}

func TestInMemoryRuleStoreGetNotFound(t *testing.T) {
	if _, err := NewInMemoryRuleStore().Get("nope"); err == nil {
		t.Fatal("Get() should return error for non-existent rule")
	}
}

func TestInMemoryRuleStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewInMemoryRuleStore()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if err := store.Add(&Rule{ID: "r", Name: "Before", Expression: `true`, Active: true}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Hour) }
	if err := store.Update(&Rule{ID: "r", Name: "After", Expression: `false`, Active: true}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := store.Get("r")
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if !got.UpdatedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, base.Add(time.Hour))
	}
	if got.Name != "After" {
		t.Errorf("Name = %q, want %q", got.Name, "After")
	}

	if err := store.Update(&Rule{ID: "missing"}); err == nil {
		t.Error("Update() should return error for non-existent rule")
	}
}

func TestInMemoryRuleStoreListActiveOrdering(t *testing.T) {
	store := NewInMemoryRuleStore()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	// added newest-first to prove ordering does not follow insertion
	entries := []struct {
		id     string
		offset time.Duration
		active bool
	}{
		{"c", 2 * time.Minute, true},
		{"b", time.Minute, false},
		{"a2", 0, true},
		{"a1", 0, true},
	}
	for _, e := range entries {
		at := base.Add(e.offset)
		store.now = func() time.Time { return at }
		if err := store.Add(&Rule{ID: e.id, Expression: `true`, Active: e.active}); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	want := []string{"a1", "a2", "c"}
	if len(active) != len(want) {
		t.Fatalf("ListActive() returned %d rules, want %d", len(active), len(want))
	}
	for i, id := range want {
		if active[i].ID != id {
			t.Errorf("ListActive()[%d] = %s, want %s", i, active[i].ID, id)
		}
	}

	all, _ := store.List()
	if len(all) != 4 {
		t.Errorf("List() returned %d rules, want 4", len(all))
	}
}

func TestInMemoryRuleStoreDelete(t *testing.T) {
	store := NewInMemoryRuleStore()
	if err := store.Add(&Rule{ID: "d", Expression: `true`, Active: true}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Delete("d"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get("d"); err == nil {
		t.Error("Get() after Delete() should fail")
	}
	if err := store.Delete("d"); err == nil {
		t.Error("second Delete() should fail")
	}
}

func TestInMemoryRuleStoreConcurrentAdd(t *testing.T) {
	store := NewInMemoryRuleStore()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 10 {
				if err := store.Add(&Rule{ID: fmt.Sprintf("r-%d-%d", id, j), Expression: `true`, Active: true}); err != nil {
					t.Errorf("Concurrent Add() failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	active, _ := store.ListActive()
	if len(active) != 100 {
		t.Errorf("After concurrent adds, got %d rules, want 100", len(active))
	}
}

func TestInMemoryRulesCacheTTL(t *testing.T) {
	cache := NewInMemoryRulesCache(CacheConfig{TTL: time.Minute})
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if cache.Get() != nil {
		t.Fatal("empty cache should miss")
	}

	cache.Set([]*Rule{{ID: "a"}})
	if got := cache.Get(); len(got) != 1 {
		t.Fatalf("Get() = %v, want one rule", got)
	}

	now = now.Add(2 * time.Minute)
	if cache.IsValid() || cache.Get() != nil {
		t.Error("expired cache should miss")
	}
}

func TestInMemoryRulesCacheEmptyListIsHit(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	cache.Set(nil)

	got := cache.Get()
	if got == nil || len(got) != 0 {
		t.Errorf("cached empty list should be a non-nil empty slice, got %#v", got)
	}

	cache.Invalidate()
	if cache.Get() != nil {
		t.Error("invalidated cache should miss")
	}
}

func TestInMemoryRulesCacheReturnsCopy(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	cache.Set([]*Rule{{ID: "a"}, {ID: "b"}})

	got := cache.Get()
	got[0] = &Rule{ID: "mutated"}

	if again := cache.Get(); again[0].ID != "a" {
		t.Errorf("caller mutation leaked into cache: %s", again[0].ID)
	}
}
