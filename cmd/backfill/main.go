package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mdalvi/mc-broker-api/pkg/auth"
	"github.com/mdalvi/mc-broker-api/pkg/config"
	"github.com/mdalvi/mc-broker-api/pkg/historical"
	"github.com/mdalvi/mc-broker-api/pkg/kite"
	"github.com/mdalvi/mc-broker-api/pkg/ratelimit"
	"github.com/mdalvi/mc-broker-api/pkg/retry"
	"github.com/mdalvi/mc-broker-api/pkg/store"
)

func main() {
	var (
		token      = flag.Uint("token", 0, "instrument token (required)")
		interval   = flag.String("interval", "day", "candle interval: minute, day, 5minute, ...")
		fromArg    = flag.String("from", "", "start date YYYY-MM-DD (default: 5 days ago)")
		toArg      = flag.String("to", "", "end date YYYY-MM-DD (default: yesterday)")
		continuous = flag.Bool("continuous", false, "continuous futures data")
		oi         = flag.Bool("oi", false, "include open interest")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		logger.Fatal("Invalid timezone", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	ctrl := store.NewRedisControl(rdb)
	defer ctrl.Close()

	accessToken, err := auth.DecryptToken(cfg.Kite.FernetKey, cfg.Kite.AccessToken)
	if err != nil {
		logger.Fatal("Failed to decrypt access token", zap.Error(err))
	}

	client := kite.NewClient(cfg.Kite.APIURL, cfg.Kite.APIKey, accessToken, logger)
	limiter := ratelimit.NewLimiter(ctrl, ratelimit.DefaultInterval, ratelimit.RealClock{}, logger)
	policy := retry.NewPolicy(retry.DefaultAttempts, retry.DefaultDelay, retry.RealClock{}, logger)
	fetcher := historical.NewFetcher(client, limiter, policy, loc, nil, logger)

	req := historical.FetchRequest{
		InstrumentToken: uint32(*token),
		Interval:        *interval,
		Continuous:      *continuous,
		IncludeOI:       *oi,
	}
	if *fromArg != "" {
		from, err := parseDay(*fromArg, loc, false)
		if err != nil {
			logger.Fatal("Invalid -from date", zap.Error(err))
		}
		req.FromDate = &from
	}
	if *toArg != "" {
		to, err := parseDay(*toArg, loc, true)
		if err != nil {
			logger.Fatal("Invalid -to date", zap.Error(err))
		}
		req.ToDate = &to
	}

	records, err := fetcher.Fetch(context.Background(), req)
	if err != nil {
		logger.Fatal("Fetch failed", zap.Error(err))
	}

	if len(records) == 0 {
		fmt.Println("No records returned")
		os.Exit(0)
	}

	first, last := records[0], records[len(records)-1]
	fmt.Printf("Fetched %d records for token %d [%s .. %s]\n",
		len(records), req.InstrumentToken, first.Date, last.Date)
	for i, r := range records {
		if i >= 5 {
			fmt.Printf("... %d more\n", len(records)-5)
			break
		}
		fmt.Printf("%s %s  O=%.2f H=%.2f L=%.2f C=%.2f V=%d\n",
			r.Date, r.Time, r.OpenPrice, r.HighPrice, r.LowPrice, r.ClosePrice, r.Volume)
	}
}

// parseDay parses YYYY-MM-DD, pinning the start or end of day.
func parseDay(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc), nil
	}
	return d, nil
}
