package cache

import (
	"testing"
	"time"
)

func TestShardedCacheFreshness(t *testing.T) {
	now := time.Unix(1_000, 0)
	c := New[[]int]().WithClock(func() time.Time { return now })

	c.Set("ETH|15m", []int{1, 2, 3})
	if v, ok := c.GetFresh("ETH|15m", time.Minute); !ok || len(v) != 3 {
		t.Fatalf("fresh get = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.GetFresh("ETH|15m", time.Minute); ok {
		t.Fatal("entry should be stale")
	}
	if _, age, ok := c.GetWithAge("ETH|15m"); !ok || age != 2*time.Minute {
		t.Fatalf("age = %v", age)
	}

	c.Set("BTC|4h", nil)
	if removed := c.Cleanup(time.Minute); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
	if st := c.Stats(); st.TotalItems != 1 {
		t.Fatalf("stats = %+v", st)
	}
	c.Delete("BTC|4h")
	if _, ok := c.Get("BTC|4h"); ok {
		t.Fatal("deleted key still present")
	}
}
