package kite

import (
	"encoding/binary"
	"time"

	"github.com/mdalvi/mc-broker-api/pkg/models"
)

// Wire sizes of the venue's binary tick packets.
const (
	packetLTP       = 8
	packetIndexLTP  = 28 // index quote: no volume or depth
	packetIndexFull = 32 // index quote + exchange timestamp
	packetQuote     = 44
	packetFull      = 184
)

// Exchange segment constants, low byte of the instrument token.
const (
	segmentCDS     = 3
	segmentBCD     = 6
	segmentIndices = 9
)

// splitPackets carves a binary websocket message into per-instrument
// packets: a 2-byte big-endian packet count, then length-prefixed packets.
func splitPackets(b []byte) [][]byte {
	if len(b) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(b[0:2]))
	packets := make([][]byte, 0, count)

	offset := 2
	for i := 0; i < count && offset+2 <= len(b); i++ {
		size := int(binary.BigEndian.Uint16(b[offset : offset+2]))
		offset += 2
		if offset+size > len(b) {
			break
		}
		packets = append(packets, b[offset:offset+size])
		offset += size
	}
	return packets
}

// parseBinary decodes a binary message into ticks. Unknown packet sizes are
// skipped rather than failing the whole batch.
func parseBinary(b []byte) []models.Tick {
	packets := splitPackets(b)
	ticks := make([]models.Tick, 0, len(packets))
	for _, p := range packets {
		if tick, ok := parsePacket(p); ok {
			ticks = append(ticks, tick)
		}
	}
	return ticks
}

func parsePacket(p []byte) (models.Tick, bool) {
	if len(p) < packetLTP {
		return models.Tick{}, false
	}

	token := binary.BigEndian.Uint32(p[0:4])
	div := priceDivisor(token)
	isIndex := segment(token) == segmentIndices

	tick := models.Tick{
		Mode:            models.ModeLTP,
		InstrumentToken: token,
		Tradable:        !isIndex,
		LastPrice:       price(p, 4, div),
	}

	switch len(p) {
	case packetLTP:
		return tick, true

	case packetIndexLTP, packetIndexFull:
		tick.Mode = models.ModeQuote
		tick.OHLC = models.OHLC{
			High:  price(p, 8, div),
			Low:   price(p, 12, div),
			Open:  price(p, 16, div),
			Close: price(p, 20, div),
		}
		tick.NetChange = tick.LastPrice - tick.OHLC.Close
		if len(p) == packetIndexFull {
			tick.Mode = models.ModeFull
			tick.ExchangeTimestamp = epoch(p, 28)
		}
		return tick, true

	case packetQuote, packetFull:
		tick.Mode = models.ModeQuote
		tick.LastTradedQuantity = binary.BigEndian.Uint32(p[8:12])
		tick.AverageTradedPrice = price(p, 12, div)
		tick.VolumeTraded = binary.BigEndian.Uint32(p[16:20])
		tick.TotalBuyQuantity = binary.BigEndian.Uint32(p[20:24])
		tick.TotalSellQuantity = binary.BigEndian.Uint32(p[24:28])
		tick.OHLC = models.OHLC{
			Open:  price(p, 28, div),
			High:  price(p, 32, div),
			Low:   price(p, 36, div),
			Close: price(p, 40, div),
		}
		tick.NetChange = tick.LastPrice - tick.OHLC.Close

		if len(p) == packetFull {
			tick.Mode = models.ModeFull
			tick.LastTradeTime = epoch(p, 44)
			tick.OI = binary.BigEndian.Uint32(p[48:52])
			tick.OIDayHigh = binary.BigEndian.Uint32(p[52:56])
			tick.OIDayLow = binary.BigEndian.Uint32(p[56:60])
			tick.ExchangeTimestamp = epoch(p, 60)
			tick.Depth = parseDepth(p[64:184], div)
		}
		return tick, true
	}
	return models.Tick{}, false
}

// parseDepth decodes the ten 12-byte depth entries: five bid, five ask.
func parseDepth(b []byte, div float64) *models.Depth {
	depth := &models.Depth{}
	for i := 0; i < 10; i++ {
		entry := models.DepthItem{
			Quantity: binary.BigEndian.Uint32(b[i*12 : i*12+4]),
			Price:    price(b, i*12+4, div),
			Orders:   uint32(binary.BigEndian.Uint16(b[i*12+8 : i*12+10])),
		}
		if i < 5 {
			depth.Buy = append(depth.Buy, entry)
		} else {
			depth.Sell = append(depth.Sell, entry)
		}
	}
	return depth
}

func segment(token uint32) uint32 { return token & 0xFF }

// priceDivisor converts the venue's integer prices to rupees. Currency
// derivatives quote to four decimals on BCD and seven on CDS.
func priceDivisor(token uint32) float64 {
	switch segment(token) {
	case segmentCDS:
		return 10000000
	case segmentBCD:
		return 10000
	default:
		return 100
	}
}

func price(b []byte, offset int, div float64) float64 {
	return float64(int32(binary.BigEndian.Uint32(b[offset:offset+4]))) / div
}

func epoch(b []byte, offset int) time.Time {
	secs := binary.BigEndian.Uint32(b[offset : offset+4])
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}
