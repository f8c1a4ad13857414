package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTick_ZeroValueFieldsStayInPayload(t *testing.T) {
	payload, err := json.Marshal(Tick{Mode: ModeLTP, InstrumentToken: 123, LastPrice: 100.5})
	if err != nil {
		t.Fatal(err)
	}

	// Consumers key on a fixed shape; struct and timestamp fields must be
	// present even when zero.
	for _, key := range []string{`"ohlc"`, `"exchange_timestamp"`, `"last_trade_time"`} {
		if !strings.Contains(string(payload), key) {
			t.Errorf("Expected %s in serialized tick, got %s", key, payload)
		}
	}
	if strings.Contains(string(payload), `"depth"`) {
		t.Errorf("Absent depth must be omitted, got %s", payload)
	}
}
