// Benchmark drives synthetic users through Engine.ProcessEvent to measure
// per-user-critical-section throughput, independent of persistence or
// network I/O (§4.J "Workers hold no user state", §5 "Per user, an
// exclusive critical section").
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"amas/internal/config"
	"amas/internal/engine"
	"amas/internal/perception"
	"amas/internal/telemetry"
	"amas/internal/workers"
)

type BenchmarkResult struct {
	ScenarioName string
	Description  string
	AverageTime  time.Duration
	MinTime      time.Duration
	MaxTime      time.Duration
	Iterations   int
	EventsPerRun int
}

type BenchmarkSuite struct {
	eng     *engine.Engine
	results []BenchmarkResult
}

func NewBenchmarkSuite() *BenchmarkSuite {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log_ := telemetry.New("amas-benchmark", nil)
	metrics := telemetry.NewMetrics()
	pool := workers.New(workers.SizeCPUBound(cfg.WorkerPoolSize), log_)

	// No repositories, queues, or caches: the benchmark isolates the
	// in-memory pipeline cost from any I/O.
	eng := engine.New(cfg, log_, metrics, pool, nil, nil, nil, nil, nil, nil)

	return &BenchmarkSuite{eng: eng}
}

func syntheticEvent(rng *rand.Rand, seq int) perception.RawEvent {
	return perception.RawEvent{
		WordID:              fmt.Sprintf("word-%d", seq%500),
		IsCorrect:           rng.Float64() < 0.75,
		ResponseTimeMs:      800 + rng.Float64()*4000,
		DwellTimeMs:         200 + rng.Float64()*1500,
		TimestampUnixMs:     time.Now().UnixMilli(),
		PauseCount:          rng.Intn(3),
		SwitchCount:         rng.Intn(2),
		RetryCount:          rng.Intn(2),
		FocusLossDurationMs: rng.Float64() * 500,
		InteractionDensity:  rng.Float64(),
	}
}

// runScenario drives userCount synthetic users through eventsPerUser events
// each, `iterations` times, and records the wall-clock distribution of one
// full pass.
func (bs *BenchmarkSuite) runScenario(scenarioName, description string, userCount, eventsPerUser, iterations int) {
	log.Printf("running scenario: %s", scenarioName)
	log.Printf("  %s", description)

	var totalTime time.Duration
	minTime := time.Hour
	var maxTime time.Duration
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < iterations; i++ {
		start := time.Now()
		for u := 0; u < userCount; u++ {
			userID := fmt.Sprintf("bench-user-%d", u)
			for e := 0; e < eventsPerUser; e++ {
				ev := syntheticEvent(rng, e)
				if _, _, _, err := bs.eng.ProcessEvent(ctx, userID, "bench-session", ev, time.Time{}); err != nil {
					log.Printf("  process event failed: %v", err)
				}
			}
		}
		elapsed := time.Since(start)
		totalTime += elapsed
		if elapsed < minTime {
			minTime = elapsed
		}
		if elapsed > maxTime {
			maxTime = elapsed
		}
		log.Printf("  iteration %d/%d: %.2fms", i+1, iterations, float64(elapsed.Milliseconds()))
	}

	avg := totalTime / time.Duration(iterations)
	eventsPerRun := userCount * eventsPerUser
	throughput := float64(eventsPerRun) / avg.Seconds()

	bs.results = append(bs.results, BenchmarkResult{
		ScenarioName: scenarioName,
		Description:  description,
		AverageTime:  avg,
		MinTime:      minTime,
		MaxTime:      maxTime,
		Iterations:   iterations,
		EventsPerRun: eventsPerRun,
	})

	log.Printf("  avg=%.2fms min=%.2fms max=%.2fms throughput=%.0f events/sec",
		float64(avg.Milliseconds()), float64(minTime.Milliseconds()), float64(maxTime.Milliseconds()), throughput)
	log.Println()
}

func (bs *BenchmarkSuite) runAll(iterations int) {
	log.Println("amas engine throughput benchmark")
	log.Println()

	bs.runScenario("cold-start-single-user", "one user's first events through cold-start classification", 1, 20, iterations)
	bs.runScenario("warm-single-user", "one already-classified user processing a long session", 1, 200, iterations)
	bs.runScenario("concurrent-users-light", "many users each processing a handful of events", 50, 10, iterations)
	bs.runScenario("concurrent-users-heavy", "many users each processing a full session", 200, 50, iterations)
}

func (bs *BenchmarkSuite) report() {
	log.Println("benchmark summary")

	if len(bs.results) == 0 {
		log.Println("no results to report")
		return
	}

	log.Println("scenario,avg_ms,min_ms,max_ms,iterations,events_per_run,events_per_sec")
	for _, r := range bs.results {
		avgMs := float64(r.AverageTime.Milliseconds())
		minMs := float64(r.MinTime.Milliseconds())
		maxMs := float64(r.MaxTime.Milliseconds())
		throughput := float64(r.EventsPerRun) / r.AverageTime.Seconds()
		log.Printf("%s,%.2f,%.2f,%.2f,%d,%d,%.0f", r.ScenarioName, avgMs, minMs, maxMs, r.Iterations, r.EventsPerRun, throughput)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultFile := fmt.Sprintf("benchmark_results_%s.csv", timestamp)

	file, err := os.Create(resultFile)
	if err != nil {
		log.Printf("failed to create result file: %v", err)
		return
	}
	defer file.Close()

	file.WriteString("scenario,description,avg_ms,min_ms,max_ms,iterations,events_per_run,events_per_sec\n")
	for _, r := range bs.results {
		avgMs := float64(r.AverageTime.Milliseconds())
		minMs := float64(r.MinTime.Milliseconds())
		maxMs := float64(r.MaxTime.Milliseconds())
		throughput := float64(r.EventsPerRun) / r.AverageTime.Seconds()
		line := fmt.Sprintf("%s,%s,%.2f,%.2f,%.2f,%d,%d,%.0f\n",
			r.ScenarioName, r.Description, avgMs, minMs, maxMs, r.Iterations, r.EventsPerRun, throughput)
		file.WriteString(line)
	}

	log.Printf("detailed results exported to: %s", resultFile)
}

func main() {
	iterations := 5
	if len(os.Args) > 1 {
		if parsed, err := fmt.Sscanf(os.Args[1], "%d", &iterations); err != nil || parsed != 1 {
			log.Fatalf("invalid iterations argument: %s", os.Args[1])
		}
	}

	suite := NewBenchmarkSuite()
	suite.runAll(iterations)
	suite.report()

	log.Println("benchmarking completed")
}
