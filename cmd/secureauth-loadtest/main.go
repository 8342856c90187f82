package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		identifiers = flag.Int("identifiers", 1000, "number of distinct limiter identifiers")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "total Check calls")
		maxAttempts = flag.Int("max", 5, "attempts allowed per window")
		backend     = flag.String("backend", "memory", "limiter backend: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identifiers <= 0 || *concurrency <= 0 || *ops <= 0 || *maxAttempts <= 0 {
		fmt.Fprintln(os.Stderr, "identifiers, concurrency, ops and max must be > 0")
		os.Exit(2)
	}

	limiter, cleanup, err := newLimiter(*backend, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// A window longer than the run keeps every identifier in one window.
	policy := ratelimit.Policy{MaxAttempts: *maxAttempts, Window: time.Hour, Block: time.Hour}

	res, err := run(context.Background(), limiter, policy, *identifiers, *ops, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("check", res.stats)
	fmt.Printf("allowed=%d denied=%d over_limit_identifiers=%d\n", res.allowed, res.denied, res.violations)
	if res.violations > 0 {
		os.Exit(1)
	}
}

func newLimiter(backend, addr string) (ratelimit.Limiter, func(), error) {
	switch backend {
	case "memory":
		return ratelimit.NewMemoryLimiter(time.Now), func() {}, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return ratelimit.NewRedisLimiter(client, "loadtest:rl", time.Now), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return ratelimit.NewRedisLimiter(client, "loadtest:rl", time.Now), func() { _ = client.Close() }, nil
}

type result struct {
	stats      phaseStats
	allowed    int64
	denied     int64
	violations int
}

func run(ctx context.Context, limiter ratelimit.Limiter, policy ratelimit.Policy, identifiers, ops, concurrency int) (result, error) {
	var (
		cursor    int64
		allowed   int64
		denied    int64
		granted   = make([]int64, identifiers)
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		worker := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				idx := r.Intn(identifiers)
				t0 := time.Now()
				d, err := limiter.Check(gctx, fmt.Sprintf("login:198.51.100.%d", idx), policy)
				elapsed := time.Since(t0)
				if err != nil {
					return err
				}
				if d.Allowed {
					atomic.AddInt64(&allowed, 1)
					atomic.AddInt64(&granted[idx], 1)
				} else {
					atomic.AddInt64(&denied, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return result{}, err
	}
	total := time.Since(start)

	res := result{
		stats:   computeStats(total, latencies),
		allowed: allowed,
		denied:  denied,
	}
	for i := range granted {
		if granted[i] > int64(policy.MaxAttempts) {
			res.violations++
		}
	}
	return res, nil
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
