package cache

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestKeyDeterministic(t *testing.T) {
	vars := []byte(`{"user":"0xabc"}`)
	k1 := Key("aave/protocol-v3", "query { user }", vars)
	k2 := Key("aave/protocol-v3", "query { user }", vars)
	if k1 != k2 {
		t.Fatalf("identical inputs must derive identical keys: %s vs %s", k1, k2)
	}
}

func TestKeyDiffersPerInput(t *testing.T) {
	vars := []byte(`{"user":"0xabc"}`)
	base := Key("aave/protocol-v3", "query { user }", vars)

	if Key("compound/v2", "query { user }", vars) == base {
		t.Fatalf("different scope must derive a different key")
	}
	if Key("aave/protocol-v3", "query { market }", vars) == base {
		t.Fatalf("different query must derive a different key")
	}
	if Key("aave/protocol-v3", "query { user }", []byte(`{"user":"0xdef"}`)) == base {
		t.Fatalf("different variables must derive a different key")
	}
}

func TestSetThenGet(t *testing.T) {
	c := New()
	c.Set("k", json.RawMessage(`{"v":1}`), time.Minute)

	got, found := c.Get("k")
	if !found {
		t.Fatalf("expected hit immediately after set")
	}
	if string(got) != `{"v":1}` {
		t.Fatalf("unexpected cached value: %s", got)
	}
}

func TestGetMissIsNotAnError(t *testing.T) {
	c := New()
	if _, found := c.Get("absent"); found {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", json.RawMessage(`1`), 30*time.Second)

	now = now.Add(29 * time.Second)
	if _, found := c.Get("k"); !found {
		t.Fatalf("entry must survive until its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, found := c.Get("k"); found {
		t.Fatalf("entry must expire after its TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be dropped on read")
	}
}

func TestOverwriteRefreshesEntry(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", json.RawMessage(`"old"`), 10*time.Second)
	now = now.Add(8 * time.Second)
	c.Set("k", json.RawMessage(`"new"`), 10*time.Second)

	now = now.Add(5 * time.Second)
	got, found := c.Get("k")
	if !found || string(got) != `"new"` {
		t.Fatalf("overwrite must win and carry a fresh expiry, got %s found=%v", got, found)
	}
}

func TestExpiredReadDoesNotDropConcurrentRefresh(t *testing.T) {
	c := New()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Set("k", json.RawMessage(`"old"`), 10*time.Second)
	current = current.Add(11 * time.Second)

	// Interleave a refresh into the window between the stale read and the
	// delete. The clock hook fires while Get holds no lock.
	refreshed := false
	c.now = func() time.Time {
		if !refreshed {
			refreshed = true
			c.Set("k", json.RawMessage(`"new"`), 30*time.Second)
		}
		return current
	}

	got, found := c.Get("k")
	if !found || string(got) != `"new"` {
		t.Fatalf("a concurrent refresh must survive a stale reader, got %s found=%v", got, found)
	}
	if c.Len() != 1 {
		t.Fatalf("refreshed entry must stay cached, got %d entries", c.Len())
	}
}

func TestConcurrentWritersLastWriteWins(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Set("k", json.RawMessage(`"x"`), time.Minute)
		}()
	}
	wg.Wait()

	got, found := c.Get("k")
	if !found || string(got) != `"x"` {
		t.Fatalf("expected a consistent value after concurrent writes")
	}
	if c.Len() != 1 {
		t.Fatalf("same key must occupy one slot, got %d", c.Len())
	}
}
