package models

import "time"

// HistoricalRecord is one normalized bar of historical data. The calendar
// fields are derived from RecordDatetime via DeriveCalendar and must never
// be set independently.
type HistoricalRecord struct {
	InstrumentToken uint32    `json:"instrument_token"`
	Interval        string    `json:"interval"`
	RecordDatetime  time.Time `json:"record_datetime"`

	OpenPrice  float64 `json:"open_price"`
	HighPrice  float64 `json:"high_price"`
	LowPrice   float64 `json:"low_price"`
	ClosePrice float64 `json:"close_price"`
	Volume     int64   `json:"volume"`
	OI         int64   `json:"oi,omitempty"`

	// Derived calendar fields.
	Date    string `json:"date"` // 2006-01-02
	Time    string `json:"time"` // 15:04:05
	Day     int    `json:"day"`
	Month   int    `json:"month"`
	Year    int    `json:"year"`
	Weekday int    `json:"weekday"` // ISO, Monday=1
	ISOWeek int    `json:"iso_week"`
}

// DeriveCalendar fills the calendar fields from RecordDatetime.
func (r *HistoricalRecord) DeriveCalendar() {
	dt := r.RecordDatetime
	r.Date = dt.Format("2006-01-02")
	r.Time = dt.Format("15:04:05")
	r.Day = dt.Day()
	r.Month = int(dt.Month())
	r.Year = dt.Year()

	wd := int(dt.Weekday())
	if wd == 0 {
		wd = 7 // time.Sunday is 0, ISO wants 7
	}
	r.Weekday = wd
	_, r.ISOWeek = dt.ISOWeek()
}
