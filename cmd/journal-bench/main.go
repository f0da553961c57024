package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-journal/pkg/config"
	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journal"
	"github.com/dd0wney/cluso-journal/pkg/metrics"
	"github.com/dd0wney/cluso-journal/pkg/writer"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	dataDir := flag.String("data", "./data/journal-bench", "Journal directory (ignored with -config)")
	entries := flag.Int("entries", 100000, "Number of entries to append")
	seeks := flag.Int("seeks", 10000, "Number of random realtime seeks")
	units := flag.Int("units", 16, "Distinct _SYSTEMD_UNIT values")
	codec := flag.String("codec", "zstd", "Compression codec: none, snappy, zstd")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *dataDir, *codec)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	reg := metrics.NewRegistry()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	fmt.Printf("Cluso Journal Benchmark\n")
	fmt.Printf("=======================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Entries: %d\n", *entries)
	fmt.Printf("  Seeks: %d\n", *seeks)
	fmt.Printf("  Codec: %s\n", cfg.Compression.Codec)
	fmt.Printf("  Max File Size: %d MiB\n", cfg.MaxFileSize>>20)
	fmt.Printf("  Data Directory: %s\n\n", cfg.Directory)

	w, err := writer.Open(cfg, writer.Options{
		Boot:    id128.Static(id128.New()),
		Logger:  cfg.Logger(),
		Metrics: reg,
	})
	if err != nil {
		log.Fatalf("Failed to open writer: %v", err)
	}

	// Benchmark 1: appends
	fmt.Printf("Benchmark 1: Append\n")
	start := time.Now()
	for i := 0; i < *entries; i++ {
		fields := [][]byte{
			[]byte(fmt.Sprintf("MESSAGE=request %d served in %dms", i, rand.Intn(500))),
			[]byte(fmt.Sprintf("PRIORITY=%d", i%8)),
			[]byte(fmt.Sprintf("_SYSTEMD_UNIT=unit-%d.service", i%*units)),
		}
		if _, err := w.Append(fields); err != nil {
			log.Fatalf("Failed to append entry %d: %v", i, err)
		}
		if (i+1)%20000 == 0 {
			fmt.Printf("  Appended %d entries...\n", i+1)
		}
	}
	report("entries", *entries, time.Since(start))
	st := w.Stats()
	fmt.Printf("  Active file: %d entries, %d data objects, %d bytes\n", st.Entries, st.Data, st.FileBytes)
	if err := w.Close(); err != nil {
		log.Fatalf("Failed to close writer: %v", err)
	}

	j, err := journal.OpenDirectory(cfg.Directory, journal.Options{Logger: cfg.Logger(), Metrics: reg})
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()
	fmt.Printf("\n  Files: %d\n", len(j.Files()))

	// Benchmark 2: forward scan
	fmt.Printf("\nBenchmark 2: Sequential Read\n")
	start = time.Now()
	var realtimes []uint64
	for {
		ok, err := j.Next()
		if err != nil {
			log.Fatalf("Failed to step: %v", err)
		}
		if !ok {
			break
		}
		rt, err := j.Realtime()
		if err != nil {
			log.Fatalf("Failed to read realtime: %v", err)
		}
		realtimes = append(realtimes, rt)
	}
	report("entries", len(realtimes), time.Since(start))

	// Benchmark 3: realtime seeks
	if len(realtimes) > 0 {
		fmt.Printf("\nBenchmark 3: Random Realtime Seeks\n")
		start = time.Now()
		for i := 0; i < *seeks; i++ {
			if err := j.SeekRealtime(realtimes[rand.Intn(len(realtimes))]); err != nil {
				log.Fatalf("Failed to seek: %v", err)
			}
			if _, err := j.Next(); err != nil {
				log.Fatalf("Failed to step after seek: %v", err)
			}
		}
		report("seeks", *seeks, time.Since(start))
	}

	// Benchmark 4: filtered scan
	fmt.Printf("\nBenchmark 4: Match Scan (PRIORITY=3, one unit)\n")
	for _, term := range []string{"PRIORITY=3", "_SYSTEMD_UNIT=unit-3.service"} {
		if err := j.AddMatch([]byte(term)); err != nil {
			log.Fatalf("Failed to add match %q: %v", term, err)
		}
	}
	if err := j.SeekHead(); err != nil {
		log.Fatalf("Failed to seek head: %v", err)
	}
	start = time.Now()
	matched := 0
	for {
		ok, err := j.Next()
		if err != nil {
			log.Fatalf("Failed to step: %v", err)
		}
		if !ok {
			break
		}
		matched++
	}
	report("matches", matched, time.Since(start))
	j.FlushMatches()

	boots, err := j.Boots(false, -1)
	if err != nil {
		log.Fatalf("Failed to list boots: %v", err)
	}
	fmt.Printf("\nBoots: %d\n", len(boots))

	fmt.Printf("\nBenchmark complete\n")
	if *metricsAddr != "" {
		fmt.Printf("Metrics still served on %s, interrupt to exit\n", *metricsAddr)
		select {}
	}
}

func loadConfig(path, dir, codec string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{Directory: dir}
	cfg.Compression.Codec = codec
	cfg.ApplyDefaults()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, cfg.Validate()
}

func serveMetrics(addr string, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}

func report(what string, n int, d time.Duration) {
	fmt.Printf("  Done: %d %s in %v\n", n, what, d)
	if n == 0 {
		return
	}
	fmt.Printf("  Average: %.2fus per op\n", float64(d.Microseconds())/float64(n))
	fmt.Printf("  Throughput: %.0f ops/sec\n", float64(n)/d.Seconds())
}
