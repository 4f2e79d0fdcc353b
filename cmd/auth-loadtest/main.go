// Command auth-loadtest measures the hot Redis paths of the auth engine:
// active-session validation and persistent-token rotation. It seeds one
// registry row and one remember-me slot per simulated user, then drives both
// phases concurrently and reports latency percentiles.
//
// Run against a real Redis with -redis-addr (or REDIS_ADDR); without either
// it spins up an embedded miniredis.
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

	"github.com/alicebob/miniredis/v2"
	"github.com/infusephp/auth/internal"
	"github.com/infusephp/auth/internal/stores"
	"github.com/redis/go-redis/v9"
)

type slotState struct {
	email  string
	series string
	token  string
	mu     sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 50000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "auth", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	persistent := stores.NewPersistentSessions(client, *prefix+":pr", []byte("loadtest-loadtest-loadtest-load!"))
	registry := stores.NewActiveSessions(client, *prefix+":as")

	slots := make([]slotState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	now := time.Now()
	for i := 0; i < *users; i++ {
		series, err := internal.NewSeries()
		if err != nil {
			fmt.Fprintf(os.Stderr, "series: %v\n", err)
			os.Exit(1)
		}
		token, err := internal.NewToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		email := fmt.Sprintf("user-%d@loadtest.invalid", i)
		slots[i] = slotState{email: email, series: series, token: token}

		if err := persistent.Save(ctx, email, series, token, int64(i+1), now, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
		if err := registry.Record(ctx, stores.ActiveRecord{
			SessionID: fmt.Sprintf("sid-%d", i),
			UserID:    int64(i + 1),
			UserAgent: "loadtest",
			Expires:   now.Add(24 * time.Hour),
			Valid:     true,
		}, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "record failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, registry, *users, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, persistent, slots, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
}

func runValidatePhase(ctx context.Context, registry *stores.ActiveSessions, users, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				sid := fmt.Sprintf("sid-%d", r.Intn(users))
				t0 := time.Now()
				valid, err := registry.IsValid(ctx, sid)
				d := time.Since(t0)
				if err != nil || !valid {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRotatePhase drives the remember-me rotation pair: atomic consume of the
// current token followed by a save of its replacement under the same series.
func runRotatePhase(ctx context.Context, persistent *stores.PersistentSessions, slots []slotState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				slot := &slots[r.Intn(len(slots))]

				slot.mu.Lock()
				next, err := internal.NewToken()
				if err != nil {
					atomic.AddInt64(&failures, 1)
					slot.mu.Unlock()
					continue
				}

				t0 := time.Now()
				consumed, err := persistent.Consume(ctx, slot.email, slot.series, slot.token)
				if err == nil && consumed.Status == stores.ConsumeMatched {
					err = persistent.Save(ctx, slot.email, slot.series, next, consumed.UserID, time.Now(), 24*time.Hour)
				} else if err == nil {
					err = fmt.Errorf("consume status %d", consumed.Status)
				}
				d := time.Since(t0)

				if err == nil {
					slot.token = next
				} else {
					atomic.AddInt64(&failures, 1)
				}
				slot.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
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
	fmt.Printf(
		"%-9s ops=%d failures=%d total=%s rate=%.0f/s p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond), s.opsPerS,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond),
	)
}
