package cache

import (
	"testing"
	"time"

	"github.com/use-agent/bizscout/models"
)

func TestKeyNormalisesQuery(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"Acme Co-op", "acme co-op", true},
		{"  Acme   Co-op ", "Acme Co-op", true},
		{"Acme Co-op", "Acme Coop", false},
	}
	for _, tt := range tests {
		if got := Key(tt.a) == Key(tt.b); got != tt.same {
			t.Errorf("Key(%q) == Key(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestGetRespectsTTL(t *testing.T) {
	now := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)
	c := newCache(10, time.Minute, func() time.Time { return now })

	c.Set("Acme", models.FetchOutcome{Query: "Acme", Success: true})
	if _, ok := c.Get("acme"); !ok {
		t.Fatal("expected hit for normalised query")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("Acme"); ok {
		t.Fatal("expected miss after TTL")
	}
	c.evictExpired()
	if c.Len() != 0 {
		t.Errorf("Len = %d after eviction", c.Len())
	}
}

func TestSetEvictsAtCapacity(t *testing.T) {
	c := newCache(2, time.Hour, time.Now)
	for _, q := range []string{"a", "b", "c"} {
		c.Set(q, models.FetchOutcome{Query: q})
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	c.Set("c", models.FetchOutcome{Query: "c", HTML: "updated"})
	if c.Len() != 2 {
		t.Errorf("overwriting an existing key should not evict, Len = %d", c.Len())
	}
}
