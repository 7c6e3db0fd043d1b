package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cache "github.com/krisalay/loading-cache"
	"github.com/krisalay/loading-cache/types"
)

// ================= LOADER SIDE =================

// RequestContext is what every task hands to the loader.
type RequestContext struct {
	Task string
}

// Value remembers who loaded it and when.
type Value struct {
	LoadedBy string
	LoadedAt time.Time
}

func (v *Value) String() string {
	return fmt.Sprintf("%s(%s)", v.LoadedBy, time.Since(v.LoadedAt).Round(time.Millisecond))
}

func newLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// ================= MAIN =================

func main() {
	var (
		workers   = flag.Int("workers", 10, "concurrent workers")
		tasks     = flag.Int("tasks", 200, "number of GetAll tasks")
		keys      = flag.String("keys", "a,b,c,d,e,f,g,h,i,j", "comma-separated key space")
		maxSize   = flag.Int("max-size", 1000, "maximum number of entries")
		ttl       = flag.Duration("ttl", time.Second, "expire after write")
		bulk      = flag.Bool("bulk", true, "load misses with one bulk call")
		mode      = flag.String("mode", "all-or-nothing", "bulk failure mode (all-or-nothing, best-effort)")
		logLevel  = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "log format (text, json)")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logFormat)

	cfg := cache.Config{
		MaximumSize:      *maxSize,
		ExpireAfterWrite: *ttl,
		Logger:           logger,
	}
	if *mode == "best-effort" {
		cfg.BulkLoadFailureMode = cache.BestEffort
	}

	onRemoval := func(n types.RemovalNotification[string, *Value]) error {
		logger.Info("remove", "key", n.Key, "value", n.Value.String(), "cause", n.Cause.String())
		return nil
	}

	c, err := cache.New[string, *Value](cfg, nil, cache.WithRemovalListener(onRemoval))
	if err != nil {
		logger.Error("invalid cache configuration", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	loader := func(_ context.Context, rc *RequestContext, key string) (*Value, error) {
		logger.Info("load", "task", rc.Task, "key", key)
		return &Value{LoadedBy: rc.Task, LoadedAt: time.Now()}, nil
	}

	var bulkLoader cache.ContextedBulkLoader[string, *Value, *RequestContext]
	if *bulk {
		bulkLoader = func(ctx context.Context, rc *RequestContext, keys []string) (map[string]*Value, error) {
			logger.Info("loadall", "task", rc.Task, "keys", "["+strings.Join(keys, ", ")+"]")
			out := make(map[string]*Value, len(keys))
			for _, k := range keys {
				v, err := loader(ctx, rc, k)
				if err != nil {
					return nil, err
				}
				out[k] = v
			}
			return out, nil
		}
	}

	cc := cache.NewContexted(c, loader, bulkLoader)
	keySpace := strings.Split(*keys, ",")

	fmt.Println("\n==================== LOAD TEST ====================")
	fmt.Println("WORKERS   :", *workers)
	fmt.Println("TASKS     :", *tasks)
	fmt.Println("MAX SIZE  :", *maxSize)
	fmt.Println("TTL       :", *ttl)
	fmt.Println("BULK      :", *bulk)
	fmt.Println("MODE      :", cfg.BulkLoadFailureMode)

	ctx := context.Background()
	results := make([]string, *tasks)

	var g errgroup.Group
	g.SetLimit(*workers)
	for i := 0; i < *tasks; i++ {
		rc := &RequestContext{Task: fmt.Sprintf("task%d", i)}
		g.Go(func() error {
			time.Sleep(time.Duration(200+rand.IntN(500)) * time.Millisecond)

			req := append([]string(nil), keySpace...)
			rand.Shuffle(len(req), func(a, b int) { req[a], req[b] = req[b], req[a] })
			req = req[:1+rand.IntN(max(len(req)-1, 1))]

			logger.Info("request", "task", rc.Task, "keys", req)
			start := time.Now()
			got, err := cc.GetAll(ctx, rc, req)
			if err != nil {
				return fmt.Errorf("%s: %w", rc.Task, err)
			}

			parts := make([]string, 0, len(req))
			for _, k := range req {
				parts = append(parts, k+"="+got[k].String())
			}
			results[i] = fmt.Sprintf("%s - result: {%s} (%s)", rc.Task, strings.Join(parts, ", "),
				time.Since(start).Round(time.Millisecond))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("load test failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\n==================== RESULTS ====================")
	for _, r := range results {
		fmt.Println(r)
	}

	fmt.Println("\n==================== STATS ====================")
	fmt.Println(c.Stats())
	fmt.Printf("HIT RATE          : %.2f\n", c.Stats().HitRate())
	fmt.Printf("AVG LOAD PENALTY  : %s\n", c.Stats().AverageLoadPenalty())
	fmt.Printf("LISTENER FAILURES : %d\n", c.RemovalListenerFailures())
}
