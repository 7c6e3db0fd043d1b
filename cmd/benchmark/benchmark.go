package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	cache "github.com/krisalay/loading-cache"
	"github.com/krisalay/loading-cache/eviction"
	"github.com/krisalay/loading-cache/metrics"
	"github.com/krisalay/loading-cache/types"
)

// ================= BENCHMARK =================

func main() {
	var (
		shards      = flag.Int("shards", 8, "number of shards")
		capacity    = flag.Int("capacity", 200000, "maximum number of entries")
		preloadKeys = flag.Int("preload", 100000, "keys put before the run")
		goroutines  = flag.Int("goroutines", 200, "concurrent readers")
		opsPerG     = flag.Int("ops", 5000, "Get calls per reader")
		policy      = flag.String("eviction", "LRU", "eviction policy (LRU, LFU, FIFO)")
		metricsAddr = flag.String("metrics-addr", "", "serve /metrics on this address and wait for SIGINT after the run")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")

	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Shards       :", *shards)
	fmt.Println("Capacity     :", *capacity)
	fmt.Println("Preload Keys :", *preloadKeys)
	fmt.Println("Goroutines   :", *goroutines)
	fmt.Println("Ops/Goroutine:", *opsPerG)
	fmt.Println("Eviction     :", *policy)
	fmt.Println("---------------------------------")

	// ---------------- Backing Store ----------------
	// Every key is computable, so misses after eviction just reload.
	loader := types.LoaderFunc[int, int](func(_ context.Context, key int) (int, error) {
		return key * 2, nil
	})

	c, err := cache.New[int, int](cache.Config{
		Shards:      *shards,
		MaximumSize: *capacity,
		Eviction:    eviction.PolicyType(*policy),
		Logger:      logger,
	}, loader)
	if err != nil {
		logger.Error("invalid cache configuration", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	// ---------------- Metrics ----------------
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		metrics.NewCollector("benchmark", "main", c),
	)

	// ---------------- Preload Cache ----------------
	fmt.Println("Preloading cache...")
	ctx := context.Background()
	for i := 0; i < *preloadKeys; i++ {
		c.Put(i, i*2)
	}
	fmt.Println("Preload complete.")

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		c.Get(ctx, i%max(*preloadKeys, 1))
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	before := c.Stats()
	start := time.Now()

	var g errgroup.Group
	for i := 0; i < *goroutines; i++ {
		g.Go(func() error {
			for j := 0; j < *opsPerG; j++ {
				if _, err := c.Get(ctx, (i*7919+j)%max(*preloadKeys, 1)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}

	duration := time.Since(start)
	totalOps := *goroutines * *opsPerG
	run := c.Stats().Minus(before)

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Printf("Hit Rate         : %.4f\n", run.HitRate())
	fmt.Printf("Evictions        : %d\n", run.EvictionCount)
	fmt.Println("=========================================")

	if *metricsAddr != "" {
		if err := serveMetrics(*metricsAddr, registry, logger); err != nil {
			logger.Error("metrics server failed", "error", err)
			os.Exit(1)
		}
	}
}

// serveMetrics exposes the registry until SIGINT or SIGTERM.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
