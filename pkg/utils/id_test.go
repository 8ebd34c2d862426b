package utils

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID()
	id2 := GenerateID()

	if id1 == "" {
		t.Error("GenerateID returned empty string")
	}
	if id1 == id2 {
		t.Error("GenerateID should return unique IDs")
	}
	if len(id1) != 36 {
		t.Errorf("GenerateID should return a canonical UUID, got %s", id1)
	}
}

func TestGenerateRunID(t *testing.T) {
	id := GenerateRunID()
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("GenerateRunID should start with 'run-': %s", id)
	}
	if _, err := ParseRunID(id); err != nil {
		t.Fatalf("ParseRunID(%s) failed: %v", id, err)
	}
}

func TestParseRunIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "run-", "abc", "run-not-a-uuid"} {
		if _, err := ParseRunID(id); err == nil {
			t.Errorf("expected error for %q", id)
		}
	}
}

func TestGenerateRunIDConcurrent(t *testing.T) {
	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := GenerateRunID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d unique IDs, got %d", n, len(seen))
	}
}
