package aster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSymbolFiltersCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/exchangeInfo" {
			t.Errorf("path = %s", r.URL.Path)
		}
		calls++
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","filters":[]},
			{"symbol":"ETHUSDT","filters":[
				{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001"},
				{"filterType":"PRICE_FILTER","tickSize":"0.01"},
				{"filterType":"MIN_NOTIONAL","notional":"5"}
			]}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	for i := 0; i < 2; i++ {
		filters, err := c.SymbolFilters(context.Background(), "ethusdt")
		if err != nil {
			t.Fatalf("SymbolFilters: %v", err)
		}
		if len(filters) != 3 || filters[2].Notional != "5" {
			t.Fatalf("filters = %+v", filters)
		}
	}
	if calls != 1 {
		t.Fatalf("exchangeInfo fetched %d times, want 1", calls)
	}

	if _, err := c.SymbolFilters(context.Background(), "DOGEUSDT"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("want ErrSymbolNotFound, got %v", err)
	}
}

func TestMarkPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ETHUSDT" {
			t.Errorf("symbol = %s", r.URL.Query().Get("symbol"))
		}
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","markPrice":"2500.55"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	mark, err := c.MarkPrice(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	if mark != 2500.55 {
		t.Fatalf("mark = %v", mark)
	}
}

func TestSignedPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Errorf("missing api key header")
		}
		q := r.URL.Query()
		sig := q.Get("signature")
		q.Del("signature")
		if want := sign(q.Encode(), "secret"); sig != want {
			t.Errorf("signature = %s, want %s", sig, want)
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"ETHUSDT","positionAmt":"0.5","entryPrice":"2000"},
			{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"}, nil)
	positions, err := c.Positions(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 || positions[0].EntryPrice != "2000" {
		t.Fatalf("positions = %+v", positions)
	}

	if _, err := NewClient(Config{BaseURL: srv.URL}, nil).Positions(context.Background(), "ETHUSDT"); err == nil {
		t.Fatal("expected credentials error")
	}
}

func TestSignIsStable(t *testing.T) {
	v := url.Values{}
	v.Set("symbol", "ETHUSDT")
	v.Set("timestamp", "1")
	if sign(v.Encode(), "s") != sign("symbol=ETHUSDT&timestamp=1", "s") {
		t.Fatal("sign should only depend on the encoded query")
	}
}
