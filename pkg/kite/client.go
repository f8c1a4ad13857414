// Package kite is the concrete client for the venue's REST and streaming
// APIs: historical candles and the instrument dump over HTTP, live ticks
// over a binary websocket protocol.
package kite

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	kiteHeaderVersion = "3"
	dateLayout        = "2006-01-02 15:04:05"
	candleLayout      = "2006-01-02T15:04:05-0700"
)

// Bar is one raw candle as returned by the venue.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	OI     int64
}

// Instrument is one row of the venue's instrument dump.
type Instrument struct {
	InstrumentToken uint32
	ExchangeToken   uint32
	Tradingsymbol   string
	Name            string
	LastPrice       float64
	Expiry          string
	Strike          float64
	TickSize        float64
	LotSize         int
	InstrumentType  string
	Segment         string
	Exchange        string
}

// Client provides access to the venue's REST API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	logger      *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, apiKey, accessToken string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// HistoricalData fetches raw candles for one instrument over a closed date
// interval. The venue caps the span per call; splitting larger ranges is the
// caller's job.
func (c *Client) HistoricalData(ctx context.Context, token uint32, from, to time.Time, interval string, continuous, oi bool) ([]Bar, error) {
	endpoint := fmt.Sprintf("%s/instruments/historical/%d/%s", c.baseURL, token, interval)

	q := url.Values{}
	q.Set("from", from.Format(dateLayout))
	q.Set("to", to.Format(dateLayout))
	q.Set("continuous", boolParam(continuous))
	q.Set("oi", boolParam(oi))

	body, err := c.get(ctx, endpoint+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Candles [][]interface{} `json:"candles"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindData, 0, "malformed historical payload", err)
	}

	bars := make([]Bar, 0, len(resp.Data.Candles))
	for _, c := range resp.Data.Candles {
		bar, err := parseCandle(c)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Instruments fetches the instrument dump, optionally scoped to one
// exchange. The venue serves this as CSV.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]Instrument, error) {
	endpoint := c.baseURL + "/instruments"
	if exchange != "" {
		endpoint += "/" + exchange
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return parseInstrumentsCSV(body)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(KindInput, 0, "building request", err)
	}
	req.Header.Set("X-Kite-Version", kiteHeaderVersion)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindNetwork, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

// classifyHTTPError maps an error response onto the venue's exception
// taxonomy, preferring the error_type the venue itself reports.
func classifyHTTPError(status int, body []byte) error {
	var payload struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	if payload.ErrorType != "" {
		return newError(ErrorKind(payload.ErrorType), status, msg, nil)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return newError(KindTooManyRequests, status, msg, nil)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return newError(KindToken, status, msg, nil)
	case status >= 500:
		return newError(KindGeneral, status, msg, nil)
	default:
		return newError(KindInput, status, msg, nil)
	}
}

func parseCandle(raw []interface{}) (Bar, error) {
	if len(raw) < 6 {
		return Bar{}, newError(KindData, 0, fmt.Sprintf("candle has %d fields, want at least 6", len(raw)), nil)
	}

	ts, ok := raw[0].(string)
	if !ok {
		return Bar{}, newError(KindData, 0, "candle timestamp is not a string", nil)
	}
	date, err := time.Parse(candleLayout, ts)
	if err != nil {
		return Bar{}, newError(KindData, 0, "unparseable candle timestamp "+ts, err)
	}

	nums := make([]float64, 0, len(raw)-1)
	for _, v := range raw[1:] {
		f, ok := v.(float64)
		if !ok {
			return Bar{}, newError(KindData, 0, "non-numeric candle field", nil)
		}
		nums = append(nums, f)
	}

	bar := Bar{
		Date:   date,
		Open:   nums[0],
		High:   nums[1],
		Low:    nums[2],
		Close:  nums[3],
		Volume: int64(nums[4]),
	}
	if len(nums) >= 6 {
		bar.OI = int64(nums[5])
	}
	return bar, nil
}

func parseInstrumentsCSV(body []byte) ([]Instrument, error) {
	r := csv.NewReader(bytes.NewReader(body))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, newError(KindData, 0, "malformed instrument dump", err)
	}
	if len(rows) < 1 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}

	instruments := make([]Instrument, 0, len(rows)-1)
	for _, row := range rows[1:] {
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}

		token, _ := strconv.ParseUint(get("instrument_token"), 10, 32)
		exToken, _ := strconv.ParseUint(get("exchange_token"), 10, 32)
		ltp, _ := strconv.ParseFloat(get("last_price"), 64)
		strike, _ := strconv.ParseFloat(get("strike"), 64)
		tick, _ := strconv.ParseFloat(get("tick_size"), 64)
		lot, _ := strconv.Atoi(get("lot_size"))

		instruments = append(instruments, Instrument{
			InstrumentToken: uint32(token),
			ExchangeToken:   uint32(exToken),
			Tradingsymbol:   get("tradingsymbol"),
			Name:            get("name"),
			LastPrice:       ltp,
			Expiry:          get("expiry"),
			Strike:          strike,
			TickSize:        tick,
			LotSize:         lot,
			InstrumentType:  get("instrument_type"),
			Segment:         get("segment"),
			Exchange:        get("exchange"),
		})
	}
	return instruments, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (c *Client) String() string {
	return fmt.Sprintf("kite.Client(%s)", c.baseURL)
}
