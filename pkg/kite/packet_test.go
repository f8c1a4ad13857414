package kite

import (
	"encoding/binary"
	"testing"

	"github.com/mdalvi/mc-broker-api/pkg/models"
)

func putU32(b []byte, offset int, v uint32) {
	binary.BigEndian.PutUint32(b[offset:offset+4], v)
}

func ltpPacket(token uint32, paise int32) []byte {
	p := make([]byte, packetLTP)
	putU32(p, 0, token)
	putU32(p, 4, uint32(paise))
	return p
}

func quotePacket(token uint32) []byte {
	p := make([]byte, packetQuote)
	putU32(p, 0, token)
	putU32(p, 4, 10050) // ltp 100.50
	putU32(p, 8, 25)    // last qty
	putU32(p, 12, 10010)
	putU32(p, 16, 50000) // volume
	putU32(p, 20, 700)
	putU32(p, 24, 800)
	putU32(p, 28, 10000) // open
	putU32(p, 32, 10150) // high
	putU32(p, 36, 9950)  // low
	putU32(p, 40, 10000) // close
	return p
}

func wrapMessage(packets ...[]byte) []byte {
	msg := make([]byte, 2)
	binary.BigEndian.PutUint16(msg, uint16(len(packets)))
	for _, p := range packets {
		size := make([]byte, 2)
		binary.BigEndian.PutUint16(size, uint16(len(p)))
		msg = append(msg, size...)
		msg = append(msg, p...)
	}
	return msg
}

func TestParseBinary_LTPPacket(t *testing.T) {
	ticks := parseBinary(wrapMessage(ltpPacket(408065, 152050)))
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}

	tick := ticks[0]
	if tick.InstrumentToken != 408065 {
		t.Errorf("Expected token 408065, got %d", tick.InstrumentToken)
	}
	if tick.LastPrice != 1520.50 {
		t.Errorf("Expected LTP 1520.50, got %f", tick.LastPrice)
	}
	if tick.Mode != models.ModeLTP {
		t.Errorf("Expected ltp mode, got %s", tick.Mode)
	}
	if !tick.Tradable {
		t.Error("Expected equity token to be tradable")
	}
}

func TestParseBinary_QuotePacket(t *testing.T) {
	ticks := parseBinary(wrapMessage(quotePacket(408065)))
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}

	tick := ticks[0]
	if tick.Mode != models.ModeQuote {
		t.Errorf("Expected quote mode, got %s", tick.Mode)
	}
	if tick.LastPrice != 100.50 {
		t.Errorf("Expected LTP 100.50, got %f", tick.LastPrice)
	}
	if tick.OHLC.High != 101.50 || tick.OHLC.Low != 99.50 {
		t.Errorf("Bad OHLC: %+v", tick.OHLC)
	}
	if tick.VolumeTraded != 50000 {
		t.Errorf("Expected volume 50000, got %d", tick.VolumeTraded)
	}
	if tick.NetChange != 0.50 {
		t.Errorf("Expected net change 0.50, got %f", tick.NetChange)
	}
}

func TestParseBinary_MultiplePackets(t *testing.T) {
	msg := wrapMessage(ltpPacket(408065, 152050), ltpPacket(738561, 245075), quotePacket(5633))
	ticks := parseBinary(msg)
	if len(ticks) != 3 {
		t.Fatalf("Expected 3 ticks, got %d", len(ticks))
	}
	if ticks[1].InstrumentToken != 738561 || ticks[1].LastPrice != 2450.75 {
		t.Errorf("Bad second tick: %+v", ticks[1])
	}
}

func TestParseBinary_IndexTokenNotTradable(t *testing.T) {
	// NIFTY 50 token, segment 9 (indices)
	ticks := parseBinary(wrapMessage(ltpPacket(256265, 1950000)))
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}
	if ticks[0].Tradable {
		t.Error("Expected index token to be non-tradable")
	}
}

func TestParseBinary_CDSDivisor(t *testing.T) {
	// Segment 3 (CDS) prices carry seven decimals
	token := uint32(0x0000FF03)
	ticks := parseBinary(wrapMessage(ltpPacket(token, 845525000)))
	if len(ticks) != 1 {
		t.Fatalf("Expected 1 tick, got %d", len(ticks))
	}
	if ticks[0].LastPrice != 84.5525 {
		t.Errorf("Expected CDS price 84.5525, got %f", ticks[0].LastPrice)
	}
}

func TestParseBinary_GarbageTolerated(t *testing.T) {
	if ticks := parseBinary([]byte{0x01}); ticks != nil && len(ticks) != 0 {
		t.Errorf("Expected no ticks for heartbeat-sized payload, got %d", len(ticks))
	}

	// Truncated packet: count says 1, length says 44, only 4 bytes follow
	msg := []byte{0x00, 0x01, 0x00, 0x2C, 0x00, 0x06, 0x39, 0x01}
	if ticks := parseBinary(msg); len(ticks) != 0 {
		t.Errorf("Expected no ticks for truncated message, got %d", len(ticks))
	}
}
