// Package historical retrieves bulk candle data under the venue's
// per-call limits: large date ranges are split into API-legal chunks,
// fetched most-recent-first behind the shared rate limiter, then normalized
// into a single deduplicated, time-ascending dataset.
package historical

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/pkg/kite"
	"github.com/mdalvi/mc-broker-api/pkg/models"
	"github.com/mdalvi/mc-broker-api/pkg/ratelimit"
	"github.com/mdalvi/mc-broker-api/pkg/retry"
	"github.com/mdalvi/mc-broker-api/pkg/store"
)

// MaxChunkDays is the venue's span ceiling for one historical call.
const MaxChunkDays = 60

const (
	defaultFromOffsetDays = 5
	defaultToOffsetDays   = 1
)

// VenueClient is the slice of the REST client the fetcher needs.
type VenueClient interface {
	HistoricalData(ctx context.Context, token uint32, from, to time.Time, interval string, continuous, oi bool) ([]kite.Bar, error)
}

// Clock is injected for deterministic testing
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FetchRequest describes one historical fetch. InstrumentToken and Interval
// are required; nil dates take the documented defaults.
type FetchRequest struct {
	InstrumentToken uint32
	FromDate        *time.Time
	ToDate          *time.Time
	Interval        string
	Continuous      bool
	IncludeOI       bool
}

type chunk struct {
	from time.Time
	to   time.Time
}

type Fetcher struct {
	venue   VenueClient
	limiter *ratelimit.Limiter
	policy  *retry.Policy
	loc     *time.Location
	clock   Clock
	logger  *zap.Logger
}

func NewFetcher(venue VenueClient, limiter *ratelimit.Limiter, policy *retry.Policy, loc *time.Location, clock Clock, logger *zap.Logger) *Fetcher {
	if clock == nil {
		clock = realClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Fetcher{
		venue:   venue,
		limiter: limiter,
		policy:  policy,
		loc:     loc,
		clock:   clock,
		logger:  logger,
	}
}

// Fetch retrieves, normalizes and deduplicates candles for the requested
// range. The result is complete or the call errors; the only sanctioned
// shortfall is the early stop when an intermediate chunk comes back empty.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) ([]models.HistoricalRecord, error) {
	if req.InstrumentToken == 0 {
		return nil, kite.NewInputError("instrument token is required")
	}
	if req.Interval == "" {
		return nil, kite.NewInputError("interval is required")
	}

	from, to := f.resolveDates(req)
	if to.Before(from) {
		return nil, kite.NewInputError(fmt.Sprintf("to date %s precedes from date %s", to, from))
	}

	chunks := buildChunks(from, to, f.loc)
	f.logger.Info("Historical fetch planned",
		zap.Uint32("token", req.InstrumentToken),
		zap.String("interval", req.Interval),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("chunks", len(chunks)))

	var records []models.HistoricalRecord
	for i, ch := range chunks {
		bars, err := f.fetchChunk(ctx, req, ch)
		if err != nil {
			return nil, err
		}

		for _, bar := range bars {
			records = append(records, models.HistoricalRecord{
				InstrumentToken: req.InstrumentToken,
				Interval:        req.Interval,
				RecordDatetime:  bar.Date,
				OpenPrice:       bar.Open,
				HighPrice:       bar.High,
				LowPrice:        bar.Low,
				ClosePrice:      bar.Close,
				Volume:          bar.Volume,
				OI:              bar.OI,
			})
		}

		// A gap in a non-terminal chunk means older data does not exist;
		// walking further back would only burn rate-limit quota.
		if len(bars) == 0 && i < len(chunks)-1 {
			f.logger.Debug("Empty chunk, stopping walk",
				zap.Time("chunk_from", ch.from),
				zap.Time("chunk_to", ch.to),
				zap.Int("chunks_skipped", len(chunks)-1-i))
			break
		}
	}

	return finalize(records), nil
}

// fetchChunk performs one rate-limited, retried venue call. The shared
// timestamp is recorded after the call regardless of outcome: the call was
// made either way.
func (f *Fetcher) fetchChunk(ctx context.Context, req FetchRequest, ch chunk) ([]kite.Bar, error) {
	if err := f.limiter.Wait(ctx, store.KeyHistoricalRateLimit); err != nil {
		return nil, err
	}

	var bars []kite.Bar
	callErr := f.policy.Do(ctx, "historical_data", func() error {
		var err error
		bars, err = f.venue.HistoricalData(ctx, req.InstrumentToken, ch.from, ch.to, req.Interval, req.Continuous, req.IncludeOI)
		return err
	}, kite.IsTransient)

	recordErr := f.limiter.Record(ctx, store.KeyHistoricalRateLimit)
	if callErr != nil {
		// The venue error is the one the caller can act on; a failed
		// timestamp write must not mask it.
		if recordErr != nil {
			f.logger.Warn("Rate limit record failed", zap.Error(recordErr))
		}
		return nil, callErr
	}
	if recordErr != nil {
		return nil, recordErr
	}
	return bars, nil
}

// resolveDates applies the documented defaults in the configured timezone:
// from = 5 calendar days ago at 00:00:00, to = yesterday at 23:59:59.
func (f *Fetcher) resolveDates(req FetchRequest) (time.Time, time.Time) {
	now := f.clock.Now().In(f.loc)

	var from time.Time
	if req.FromDate != nil {
		from = req.FromDate.In(f.loc)
	} else {
		d := now.AddDate(0, 0, -defaultFromOffsetDays)
		from = dayStart(d, f.loc)
	}

	var to time.Time
	if req.ToDate != nil {
		to = req.ToDate.In(f.loc)
	} else {
		d := now.AddDate(0, 0, -defaultToOffsetDays)
		to = dayEnd(d, f.loc)
	}
	return from, to
}

// buildChunks splits [from, to] back-to-front into contiguous windows of at
// most MaxChunkDays, most recent first.
func buildChunks(from, to time.Time, loc *time.Location) []chunk {
	var chunks []chunk
	for spanDays(from, to) > MaxChunkDays {
		lower := dayStart(to.AddDate(0, 0, -MaxChunkDays), loc)
		chunks = append(chunks, chunk{from: lower, to: to})
		to = dayEnd(lower.AddDate(0, 0, -1), loc)
	}
	chunks = append(chunks, chunk{from: from, to: to})
	return chunks
}

// finalize deduplicates on (token, interval, record_datetime), sorts
// ascending and derives the calendar fields.
func finalize(records []models.HistoricalRecord) []models.HistoricalRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.HistoricalRecord, 0, len(records))
	for _, r := range records {
		key := fmt.Sprintf("%d|%s|%d", r.InstrumentToken, r.Interval, r.RecordDatetime.UnixNano())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordDatetime.Before(out[j].RecordDatetime)
	})

	for i := range out {
		out[i].DeriveCalendar()
	}
	return out
}

func spanDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func dayEnd(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
}
