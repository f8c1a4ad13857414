package models

import "time"

// Streaming modes supported by the venue. FULL includes market depth,
// QUOTE adds OHLC/volume on top of LTP.
const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)

// OHLC holds the day's open/high/low/close for an instrument.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// DepthItem is one level of the order book.
type DepthItem struct {
	Price    float64 `json:"price"`
	Quantity uint32  `json:"quantity"`
	Orders   uint32  `json:"orders"`
}

// Depth is the five-level market depth sent in full mode.
type Depth struct {
	Buy  []DepthItem `json:"buy"`
	Sell []DepthItem `json:"sell"`
}

// Tick represents a single market tick for an instrument. Only
// InstrumentToken and LastPrice are interpreted downstream; the rest of the
// venue payload is carried through as-is.
type Tick struct {
	Mode            string `json:"mode"`
	InstrumentToken uint32 `json:"instrument_token"`
	Tradable        bool   `json:"tradable"`

	LastPrice          float64 `json:"last_price"`
	LastTradedQuantity uint32  `json:"last_traded_quantity,omitempty"`
	AverageTradedPrice float64 `json:"average_traded_price,omitempty"`
	VolumeTraded       uint32  `json:"volume_traded,omitempty"`
	TotalBuyQuantity   uint32  `json:"total_buy_quantity,omitempty"`
	TotalSellQuantity  uint32  `json:"total_sell_quantity,omitempty"`
	OHLC               OHLC    `json:"ohlc"`
	NetChange          float64 `json:"net_change,omitempty"`

	OI        uint32 `json:"oi,omitempty"`
	OIDayHigh uint32 `json:"oi_day_high,omitempty"`
	OIDayLow  uint32 `json:"oi_day_low,omitempty"`

	ExchangeTimestamp time.Time `json:"exchange_timestamp"`
	LastTradeTime     time.Time `json:"last_trade_time"`

	Depth *Depth `json:"depth,omitempty"`
}
