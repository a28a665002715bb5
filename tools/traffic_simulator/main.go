// Generates synthetic ad traffic against a running server: requests ads,
// fires the returned impression pixels and clicks a configurable fraction.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server          string
	users           int
	placementCSV    string
	totalReq        int
	conc            int
	duration        time.Duration
	rate            float64
	clickRate       float64
	stats           bool
	flush           bool
	redisAddr       string
	debug           bool
	label           string
	surgeInterval   time.Duration
	surgeDuration   time.Duration
	surgeMultiplier float64
	jitter          float64
)

var logger *zap.Logger

var httpClient *http.Client

// click client must not follow the 302 to the destination URL
var clickClient *http.Client

var (
	placementIDs = []string{"homepage", "sidebar"}
	userAgents   = []string{
		// Mobile
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 15_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Mobile/15E148 Safari/604.1",

		// Desktop
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
	}
	userIPs = []string{
		"192.0.2.1",
		"198.51.100.1",
		"203.0.113.1",
	}
)

const statsInterval = 5 * time.Second

var (
	countSent    uint64
	countSuccess uint64
	countNoFill  uint64
	countErrors  uint64
	countClicks  uint64
)

type adsResponse struct {
	RequestID string `json:"request_id"`
	Ads       []struct {
		CampaignID    int    `json:"campaign_id"`
		CreativeID    int    `json:"creative_id"`
		ImpressionURL string `json:"impression_url"`
		ClickURL      string `json:"click_url"`
	} `json:"ads"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "ad server base URL")
	flag.IntVar(&users, "users", 100, "number of unique viewers")
	flag.StringVar(&placementCSV, "placements", "homepage,sidebar", "comma-separated placement IDs")
	flag.IntVar(&totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.Float64Var(&clickRate, "click-rate", 0.05, "probability of a click per impression")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "flush redis dedup/counter data before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.DurationVar(&surgeInterval, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&surgeDuration, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&surgeMultiplier, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	clickClient = &http.Client{
		Timeout:   10 * time.Second,
		Transport: httpClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		cfg := config.Load()
		addr := redisAddr
		if addr == "" {
			addr = cfg.RedisAddr
		}
		store, err := db.InitRedis(addr)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}

		// Operational keys only; ledger balances are preserved.
		patterns := []string{
			"dedup:*",
			"events:*",
			"spend:*",
		}

		flushedCount := 0
		for _, pattern := range patterns {
			keys, err := store.Client.Keys(store.Ctx, pattern).Result()
			if err != nil {
				logger.Error("failed to get keys for pattern", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			if len(keys) > 0 {
				if err := store.Client.Del(store.Ctx, keys...).Err(); err != nil {
					logger.Error("failed to delete keys", zap.String("pattern", pattern), zap.Error(err))
					continue
				}
				flushedCount += len(keys)
			}
		}

		store.Close()
		logger.Info("redis operational data flushed",
			zap.String("addr", addr),
			zap.Int("keys_deleted", flushedCount))
	}

	placementIDs = strings.Split(placementCSV, ",")
	for i := range placementIDs {
		placementIDs[i] = strings.TrimSpace(placementIDs[i])
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					printStats()
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if surgeInterval > 0 && surgeDuration > 0 && surgeMultiplier > 0 {
				elapsed := time.Since(start)
				if elapsed%surgeInterval < surgeDuration {
					effective = time.Duration(float64(effective) / surgeMultiplier)
				}
			}
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			atomic.AddUint64(&countSent, 1)
			sendOne(r.Int63())
		}()
	}
	wg.Wait()
	close(done)
	if !stats {
		printStats()
	}
}

// sendOne runs a full serve round trip: ad request, impression pixel,
// probabilistic click. It derives all randomness from the given seed so the
// goroutine does not share the main rand source.
func sendOne(seed int64) {
	r := rand.New(rand.NewSource(seed))
	viewerID := fmt.Sprintf("viewer%d", r.Intn(users))
	placementID := placementIDs[r.Intn(len(placementIDs))]
	ua := userAgents[r.Intn(len(userAgents))]
	ip := userIPs[r.Intn(len(userIPs))]

	body := models.AdRequest{
		PlacementID: placementID,
		ViewerID:    viewerID,
		PageURL:     "https://jobs.example.com/search",
		Limit:       1,
	}
	blob, err := json.Marshal(body)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("marshal error", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", server+"/api/v1/ads", bytes.NewReader(blob))
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ua)
	req.Header.Set("X-Forwarded-For", ip)

	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("ad request error", zap.Error(err))
		return
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("read body error", zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}

	var ads adsResponse
	if err := json.Unmarshal(bodyBytes, &ads); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode error", zap.Error(err), zap.String("body", strings.TrimSpace(string(bodyBytes))))
		return
	}
	if len(ads.Ads) == 0 {
		atomic.AddUint64(&countNoFill, 1)
		logger.Debug("no fill", zap.String("request_id", ads.RequestID))
		return
	}
	ad := ads.Ads[0]

	if err := fire(httpClient, ad.ImpressionURL, ua); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("impression get error", zap.Error(err))
		return
	}
	if r.Float64() < clickRate && ad.ClickURL != "" {
		if err := fire(clickClient, ad.ClickURL, ua); err != nil {
			atomic.AddUint64(&countErrors, 1)
			logger.Error("click get error", zap.Error(err))
			return
		}
		atomic.AddUint64(&countClicks, 1)
	}
	atomic.AddUint64(&countSuccess, 1)
	logger.Debug("served",
		zap.String("request_id", ads.RequestID),
		zap.String("placement", placementID),
		zap.Int("campaign_id", ad.CampaignID),
		zap.Int("creative_id", ad.CreativeID))
}

func fire(client *http.Client, path, ua string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := strings.TrimRight(server, "/") + path
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", ua)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	succ := atomic.LoadUint64(&countSuccess)
	nf := atomic.LoadUint64(&countNoFill)
	errs := atomic.LoadUint64(&countErrors)
	clk := atomic.LoadUint64(&countClicks)
	var ctr float64
	if succ > 0 {
		ctr = float64(clk) / float64(succ)
	}
	logger.Info("stats", zap.String("run", label), zap.Uint64("sent", sent), zap.Uint64("success", succ), zap.Uint64("no_fill", nf), zap.Uint64("errors", errs), zap.Uint64("clicks", clk), zap.Float64("ctr", ctr))
}
