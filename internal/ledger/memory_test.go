package ledger

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRecordOnceThenAlreadyExists(t *testing.T) {
	m := NewMemory()
	markedAt := time.Date(2026, 2, 10, 9, 5, 0, 0, time.UTC)

	created, err := m.Record(context.Background(), "student-a", "code-1", markedAt)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !created {
		t.Fatal("first record should be created")
	}

	created, err = m.Record(context.Background(), "student-a", "code-1", markedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if created {
		t.Fatal("second record for the same key must not be created")
	}

	recs, _ := m.ListBySession(context.Background(), "code-1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !recs[0].MarkedAt.Equal(markedAt) {
		t.Errorf("marked_at was overwritten: %v", recs[0].MarkedAt)
	}
	if recs[0].Status != StatusPresent {
		t.Errorf("status = %q, want %q", recs[0].Status, StatusPresent)
	}
}

func TestRecordDistinctKeysAreIndependent(t *testing.T) {
	m := NewMemory()
	now := time.Now().UTC()

	for _, key := range [][2]string{{"a", "s1"}, {"b", "s1"}, {"a", "s2"}} {
		created, err := m.Record(context.Background(), key[0], key[1], now)
		if err != nil || !created {
			t.Fatalf("Record(%v): created=%v err=%v", key, created, err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", m.Len())
	}
}

func TestRecordConcurrentSameKey(t *testing.T) {
	m := NewMemory()
	now := time.Now().UTC()

	const n = 32
	var wg sync.WaitGroup
	createdCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := m.Record(context.Background(), "student-a", "code-1", now)
			if err != nil {
				t.Errorf("Record: %v", err)
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	var wins int
	for created := range createdCount {
		if created {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one created, got %d", wins)
	}
	if m.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", m.Len())
	}
}
