// Command fastqueue-bench is a throughput/latency benchmark harness for
// fastqueue. It drives a real queue directory through page-boundary
// crossings, concurrent producers, and gc reclamation, and prints
// operations/sec and p50/p99 latency for each phase.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fastqueue/fastqueue/pkg/fastarray"
	"github.com/fastqueue/fastqueue/pkg/fastqueue"
)

// Config holds all benchmark configuration.
type Config struct {
	Dir          string
	DataPageSize int
	MetaPageSize int
	Records      int
	RecordSize   int
	Producers    int
}

// PhaseResult holds the measurement summary for one benchmark phase.
type PhaseResult struct {
	Label string
	Ops   int
	Total time.Duration
	P50   time.Duration
	P99   time.Duration
}

func main() {
	cfg := Config{}

	flag.StringVar(&cfg.Dir, "dir", "", "benchmark queue directory (default: a temp dir)")
	flag.IntVar(&cfg.DataPageSize, "data-page-size", fastarray.MinDataPageSize, "data page size in bytes")
	flag.IntVar(&cfg.MetaPageSize, "meta-page-size", 1<<15, "meta page size in bytes")
	flag.IntVar(&cfg.Records, "records", 20000, "records to enqueue per phase")
	flag.IntVar(&cfg.RecordSize, "record-size", 4096, "record payload size in bytes")
	flag.IntVar(&cfg.Producers, "producers", 4, "concurrent producers for the contention phase")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: fastqueue-bench [flags]\n\n")
		fmt.Fprint(os.Stderr, "Benchmarks fastqueue: sequential enqueue/dequeue, page-boundary\n")
		fmt.Fprint(os.Stderr, "crossing, concurrent producers, and gc reclamation.\n\n")
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if cfg.Dir == "" {
		dir, err := os.MkdirTemp("", "fastqueue-bench-")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

		defer os.RemoveAll(dir)

		cfg.Dir = dir
	}

	if err := runBench(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runBench(cfg Config) error {
	q, err := fastqueue.Open(fastqueue.Options{
		Dir:          cfg.Dir,
		DataPageSize: cfg.DataPageSize,
		MetaPageSize: cfg.MetaPageSize,
	})
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer q.Close()

	payload := make([]byte, cfg.RecordSize)
	rand.New(rand.NewSource(1)).Read(payload) //nolint:gosec // deterministic benchmark data, not security sensitive

	results := []PhaseResult{
		benchEnqueue(q, cfg.Records, payload),
		benchDequeue(q, cfg.Records),
		benchConcurrentProducers(q, cfg.Producers, cfg.Records/cfg.Producers, payload),
	}

	drainAll(q)

	results = append(results, benchGc(q))

	printResults(results)

	return nil
}

func benchEnqueue(q *fastqueue.Queue, n int, payload []byte) PhaseResult {
	lat := make([]time.Duration, n)

	start := time.Now()

	for i := 0; i < n; i++ {
		t0 := time.Now()

		if err := q.Enqueue(payload); err != nil {
			fmt.Fprintln(os.Stderr, "enqueue error:", err)
			break
		}

		lat[i] = time.Since(t0)
	}

	return summarize("enqueue", n, time.Since(start), lat)
}

func benchDequeue(q *fastqueue.Queue, n int) PhaseResult {
	lat := make([]time.Duration, n)

	start := time.Now()

	for i := 0; i < n; i++ {
		t0 := time.Now()

		if _, _, err := q.Dequeue(); err != nil {
			fmt.Fprintln(os.Stderr, "dequeue error:", err)
			break
		}

		lat[i] = time.Since(t0)
	}

	return summarize("dequeue", n, time.Since(start), lat)
}

func benchConcurrentProducers(q *fastqueue.Queue, producers, perProducer int, payload []byte) PhaseResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allLat  []time.Duration
		errored bool
	)

	start := time.Now()

	wg.Add(producers)

	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()

			local := make([]time.Duration, 0, perProducer)

			for i := 0; i < perProducer; i++ {
				t0 := time.Now()

				if err := q.Enqueue(payload); err != nil {
					errored = true
					return
				}

				local = append(local, time.Since(t0))
			}

			mu.Lock()
			allLat = append(allLat, local...)
			mu.Unlock()
		}()
	}

	wg.Wait()

	if errored {
		fmt.Fprintln(os.Stderr, "concurrent producer error")
	}

	return summarize("concurrent-producers", len(allLat), time.Since(start), allLat)
}

func benchGc(q *fastqueue.Queue) PhaseResult {
	start := time.Now()

	if err := q.Gc(); err != nil {
		fmt.Fprintln(os.Stderr, "gc error:", err)
	}

	return PhaseResult{Label: "gc", Ops: 1, Total: time.Since(start)}
}

func drainAll(q *fastqueue.Queue) {
	for {
		_, ok, err := q.Dequeue()
		if err != nil || !ok {
			return
		}
	}
}

func summarize(label string, ops int, total time.Duration, lat []time.Duration) PhaseResult {
	lat = lat[:min(ops, len(lat))]

	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	result := PhaseResult{Label: label, Ops: len(lat), Total: total}

	if len(lat) > 0 {
		result.P50 = lat[len(lat)*50/100]
		result.P99 = lat[len(lat)*99/100]
	}

	return result
}

func printResults(results []PhaseResult) {
	fmt.Printf("%-22s %10s %14s %12s %12s\n", "phase", "ops", "ops/sec", "p50", "p99")

	for _, r := range results {
		opsPerSec := float64(0)
		if r.Total > 0 {
			opsPerSec = float64(r.Ops) / r.Total.Seconds()
		}

		fmt.Printf("%-22s %10d %14.0f %12s %12s\n", r.Label, r.Ops, opsPerSec, r.P50, r.P99)
	}
}
