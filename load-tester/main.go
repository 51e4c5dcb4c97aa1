package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	Endpoint           string
	Shop               string
	Origin             string
	Key                string
	Total              int
	Rate               int
	Concurrency        int
	DuplicationPercent int
	FunnelPercent      int
}

func parseFlags() *Config {
	c := &Config{}
	flag.StringVar(&c.Endpoint, "endpoint", "", "Ingest URL, e.g. http://localhost:8080/ingest (required)")
	flag.StringVar(&c.Shop, "shop", "demo.myshopify.com", "Shop domain sent in the body and X-Shop-Domain")
	flag.StringVar(&c.Origin, "origin", "https://demo.example.com", "Origin header")
	flag.StringVar(&c.Key, "key", "", "Ingestion key sent as X-Pixel-Key")
	flag.IntVar(&c.Total, "total", 10000, "Total requests")
	flag.IntVar(&c.Rate, "rate", 2000, "Requests per second")
	flag.IntVar(&c.Concurrency, "concurrency", 0, "Worker count (0=auto)")
	flag.IntVar(&c.DuplicationPercent, "duplication-percent", 0, "Share of beacons replayed from earlier ones")
	flag.IntVar(&c.FunnelPercent, "funnel-percent", 0, "Share of funnel (non-purchase) beacons")
	flag.Parse()

	if c.Endpoint == "" {
		fmt.Fprintln(os.Stderr, "Error: -endpoint is required")
		flag.Usage()
		os.Exit(1)
	}

	if c.Concurrency == 0 {
		c.Concurrency = c.Rate / 20
		if c.Concurrency < 50 {
			c.Concurrency = 50
		}
	}

	c.DuplicationPercent = clampPercent(c.DuplicationPercent)
	c.FunnelPercent = clampPercent(c.FunnelPercent)
	return c
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}

// Stats counts responses by how the service decided.
type Stats struct {
	accepted  uint64
	dropped   uint64
	throttled uint64
	rejected  uint64
	errors    uint64
	latency   int64 // microseconds
}

func (s *Stats) Add(status int, duration time.Duration) {
	switch {
	case status == http.StatusOK:
		atomic.AddUint64(&s.accepted, 1)
	case status == http.StatusNoContent:
		atomic.AddUint64(&s.dropped, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddUint64(&s.throttled, 1)
	default:
		atomic.AddUint64(&s.rejected, 1)
	}
	atomic.AddInt64(&s.latency, duration.Microseconds())
}

func (s *Stats) AddError() {
	atomic.AddUint64(&s.errors, 1)
}

func (s *Stats) answered() uint64 {
	return atomic.LoadUint64(&s.accepted) + atomic.LoadUint64(&s.dropped) +
		atomic.LoadUint64(&s.throttled) + atomic.LoadUint64(&s.rejected)
}

func (s *Stats) String() string {
	return fmt.Sprintf("200: %d | 204: %d | 429: %d | other: %d | errors: %d",
		atomic.LoadUint64(&s.accepted), atomic.LoadUint64(&s.dropped),
		atomic.LoadUint64(&s.throttled), atomic.LoadUint64(&s.rejected),
		atomic.LoadUint64(&s.errors))
}

func (s *Stats) StartLogger(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.answered()
			avgLat := 0.0
			if n > 0 {
				avgLat = float64(atomic.LoadInt64(&s.latency)) / float64(n) / 1000.0
			}
			log.Printf("[STATS] %s | AvgLat: %.2fms", s, avgLat)
		}
	}
}

// BeaconPool keeps recent beacons so some can be replayed verbatim.
type BeaconPool struct {
	mu  sync.RWMutex
	buf []beacon
	max int
}

type beacon struct {
	body      []byte
	timestamp int64
}

func NewBeaconPool(max int) *BeaconPool {
	return &BeaconPool{buf: make([]beacon, 0, max), max: max}
}

func (p *BeaconPool) Add(b beacon) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) >= p.max {
		p.buf = p.buf[1:]
	}
	p.buf = append(p.buf, b)
}

func (p *BeaconPool) GetRandom(rng *rand.Rand) (beacon, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.buf) == 0 {
		return beacon{}, false
	}
	return p.buf[rng.Intn(len(p.buf))], true
}

func main() {
	cfg := parseFlags()
	stats := &Stats{}
	pool := NewBeaconPool(10000)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency,
			MaxIdleConnsPerHost: cfg.Concurrency,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	log.Printf("Starting Load Test: Target=%s Shop=%s Rate=%d/s Total=%d Workers=%d", cfg.Endpoint, cfg.Shop, cfg.Rate, cfg.Total, cfg.Concurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stats.StartLogger(ctx)

	jobs := make(chan struct{}, cfg.Rate*2)
	var wg sync.WaitGroup
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		w := &worker{
			cfg:    cfg,
			client: client,
			stats:  stats,
			pool:   pool,
			rng:    rand.New(rand.NewSource(rng.Int63())),
		}
		go w.run(jobs, &wg)
	}

	remaining := cfg.Total
	for remaining > 0 {
		start := time.Now()
		batch := min(cfg.Rate, remaining)
		for i := 0; i < batch; i++ {
			jobs <- struct{}{}
		}
		remaining -= batch

		if elapsed := time.Since(start); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}

	close(jobs)
	wg.Wait()

	log.Printf("DONE. %s", stats)
}

type worker struct {
	cfg    *Config
	client *http.Client
	stats  *Stats
	pool   *BeaconPool
	rng    *rand.Rand
}

func (w *worker) run(jobs <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for range jobs {
		b := w.pick()
		start := time.Now()

		status, err := w.send(b)
		if err != nil {
			w.stats.AddError()
			continue
		}
		w.stats.Add(status, time.Since(start))
	}
}

func (w *worker) pick() beacon {
	if w.cfg.DuplicationPercent > 0 && w.rng.Intn(100) < w.cfg.DuplicationPercent {
		if b, ok := w.pool.GetRandom(w.rng); ok {
			return b
		}
	}
	b := generateBeacon(w.rng, w.cfg.Shop, w.cfg.FunnelPercent)
	w.pool.Add(b)
	return b
}

func (w *worker) send(b beacon) (int, error) {
	req, err := http.NewRequest(http.MethodPost, w.cfg.Endpoint, bytes.NewReader(b.body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", w.cfg.Origin)
	req.Header.Set("X-Shop-Domain", w.cfg.Shop)
	req.Header.Set("X-Pixel-Timestamp", strconv.FormatInt(b.timestamp, 10))
	if w.cfg.Key != "" {
		req.Header.Set("X-Pixel-Key", w.cfg.Key)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

var (
	funnelEvents = []string{"page_viewed", "product_viewed", "product_added_to_cart", "checkout_started"}
	currencies   = []string{"TRY", "USD", "EUR"}
	coin         = []bool{true, false}
)

func generateBeacon(rng *rand.Rand, shop string, funnelPercent int) beacon {
	ts := time.Now().UnixMilli() - int64(rng.Intn(60_000))
	evt := map[string]any{
		"eventName":  "checkout_completed",
		"shopDomain": shop,
		"timestamp":  ts,
		"consent": map[string]any{
			"marketing": coin[rng.Intn(2)],
			"analytics": coin[rng.Intn(2)],
		},
		"data": map[string]any{
			"orderId":  fmt.Sprintf("gid://shopify/Order/%d", rng.Int63n(1e12)),
			"value":    float64(rng.Intn(50_000)) / 100,
			"currency": currencies[rng.Intn(len(currencies))],
		},
	}
	if funnelPercent > 0 && rng.Intn(100) < funnelPercent {
		evt["eventName"] = funnelEvents[rng.Intn(len(funnelEvents))]
		delete(evt, "data")
	}
	body, _ := json.Marshal(evt)
	return beacon{body: body, timestamp: ts}
}
