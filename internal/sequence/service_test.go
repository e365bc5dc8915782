package sequence

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"
)

func TestNextIDFormatsWithPadding(t *testing.T) {
	svc, err := NewService(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	id, err := svc.NextID(context.Background(), "txn")
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != "TXN-000001" {
		t.Fatalf("expected TXN-000001, got %s", id)
	}

	id, err = svc.NextID(context.Background(), "TXN")
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != "TXN-000002" {
		t.Fatalf("expected TXN-000002, got %s", id)
	}
}

func TestNextIDWidensBeyondPadding(t *testing.T) {
	repo := &fakeRepo{counters: map[string]int64{"TXN": 999999}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	id, err := svc.NextID(context.Background(), "TXN")
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if id != "TXN-1000000" {
		t.Fatalf("expected TXN-1000000, got %s", id)
	}
}

func TestNextIDRejectsEmptyPrefix(t *testing.T) {
	svc, err := NewService(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.NextID(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty prefix")
	}
}

func TestNextIDIsUniqueUnderConcurrency(t *testing.T) {
	svc, err := NewService(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	const callers = 1000
	var wg sync.WaitGroup
	ids := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.NextID(context.Background(), "TXN")
			if err != nil {
				t.Errorf("NextID: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, callers)
	for id := range ids {
		if !strings.HasPrefix(id, "TXN-") {
			t.Fatalf("unexpected id format %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id issued: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != callers {
		t.Fatalf("expected %d unique ids, got %d", callers, len(seen))
	}
}

// fakeRepo mirrors the atomic increment semantics of the SQL upsert.
type fakeRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Next(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counters == nil {
		f.counters = make(map[string]int64)
	}
	f.counters[name]++
	return f.counters[name], nil
}
