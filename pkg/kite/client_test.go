package kite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHistoricalData_ParsesCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token key:secret" {
			t.Errorf("Unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("continuous"); got != "0" {
			t.Errorf("Expected continuous=0, got %q", got)
		}
		w.Write([]byte(`{
			"status": "success",
			"data": {"candles": [
				["2024-01-01T09:15:00+0530", 100.5, 101.0, 99.5, 100.75, 12345, 678],
				["2024-01-01T09:16:00+0530", 100.75, 101.5, 100.5, 101.25, 23456, 789]
			]}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)

	bars, err := c.HistoricalData(context.Background(), 123, from, to, "minute", false, true)
	if err != nil {
		t.Fatalf("HistoricalData failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}
	if bars[0].Open != 100.5 || bars[0].Close != 100.75 {
		t.Errorf("Bad OHLC parse: %+v", bars[0])
	}
	if bars[0].Volume != 12345 || bars[0].OI != 678 {
		t.Errorf("Bad volume/oi parse: %+v", bars[0])
	}
	if bars[0].Date.Hour() != 9 || bars[0].Date.Minute() != 15 {
		t.Errorf("Bad timestamp parse: %v", bars[0].Date)
	}
}

func TestHistoricalData_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, KindTooManyRequests},
		{"upstream failure", http.StatusBadGateway, `{"message":"gateway"}`, KindGeneral},
		{"venue error type wins", http.StatusBadRequest, `{"message":"bad interval","error_type":"InputException"}`, KindInput},
		{"expired token", http.StatusForbidden, `{"message":"token expired"}`, KindToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "key", "secret", zap.NewNop())
			_, err := c.HistoricalData(context.Background(), 123, time.Now().Add(-time.Hour), time.Now(), "day", false, false)
			if err == nil {
				t.Fatal("Expected error")
			}

			var ke *Error
			if !errors.As(err, &ke) {
				t.Fatalf("Expected *kite.Error, got %T", err)
			}
			if ke.Kind != tc.kind {
				t.Errorf("Expected kind %s, got %s", tc.kind, ke.Kind)
			}
		})
	}
}

func TestHistoricalData_NetworkErrorIsTransient(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "key", "secret", zap.NewNop())
	_, err := c.HistoricalData(context.Background(), 123, time.Now().Add(-time.Hour), time.Now(), "day", false, false)
	if err == nil {
		t.Fatal("Expected connection error")
	}
	if !IsTransient(err) {
		t.Errorf("Expected network error to classify transient: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	transient := []ErrorKind{KindNetwork, KindGeneral, KindData, KindTooManyRequests}
	for _, kind := range transient {
		if !IsTransient(&Error{Kind: kind}) {
			t.Errorf("Expected %s to be transient", kind)
		}
	}

	terminal := []error{
		&Error{Kind: KindInput},
		&Error{Kind: KindToken},
		errors.New("plain error"),
	}
	for _, err := range terminal {
		if IsTransient(err) {
			t.Errorf("Expected %v to be terminal", err)
		}
	}
}

func TestInstruments_ParsesCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments/NSE" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		w.Write([]byte("instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange\n" +
			"408065,1594,INFY,INFOSYS,1520.5,,0,0.05,1,EQ,NSE,NSE\n" +
			"256265,1001,NIFTY 50,NIFTY 50,19500,,0,0,0,EQ,INDICES,NSE\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", zap.NewNop())
	instruments, err := c.Instruments(context.Background(), "NSE")
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("Expected 2 instruments, got %d", len(instruments))
	}
	if instruments[0].InstrumentToken != 408065 || instruments[0].Tradingsymbol != "INFY" {
		t.Errorf("Bad parse: %+v", instruments[0])
	}
	if instruments[1].Segment != "INDICES" {
		t.Errorf("Bad segment parse: %+v", instruments[1])
	}
}
