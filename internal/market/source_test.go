package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCachedSourceReusesFreshEntries(t *testing.T) {
	src := NewStaticSource()
	src.SetCandles("15m", Series([]float64{1, 2, 3}, 0, 900_000))

	now := time.Unix(10_000, 0)
	c := NewCachedSource(src).WithClock(func() time.Time { return now })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		got, err := c.Candles(ctx, "ETH", "15m", 300)
		if err != nil {
			t.Fatalf("Candles: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d", len(got))
		}
	}
	if n := len(src.Calls()); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}

	now = now.Add(time.Minute)
	if _, err := c.Candles(ctx, "ETH", "15m", 300); err != nil {
		t.Fatal(err)
	}
	if n := len(src.Calls()); n != 2 {
		t.Fatalf("stale entry should refetch, calls = %d", n)
	}
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	src := NewStaticSource()
	src.SetError(errors.New("down"))
	c := NewCachedSource(src)
	if _, err := c.Candles(context.Background(), "ETH", "4h", 90); err == nil {
		t.Fatal("expected error")
	}
	src.SetError(nil)
	if _, err := c.Candles(context.Background(), "ETH", "4h", 90); err != nil {
		t.Fatalf("recovered call: %v", err)
	}
	if n := len(src.Calls()); n != 2 {
		t.Fatalf("calls = %d", n)
	}
}

func TestStaticSourceTrimsToBars(t *testing.T) {
	src := NewStaticSource()
	src.SetCandles("4h", Series([]float64{1, 2, 3, 4, 5}, 0, 1))
	got, _ := src.Candles(context.Background(), "ETH", "4h", 2)
	if len(got) != 2 || got[0].Close != 4 {
		t.Fatalf("got %+v", got)
	}
}
