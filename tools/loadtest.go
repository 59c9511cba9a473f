package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"metric-anomaly-engine/models"
)

// seriesLength is one week of hourly points plus the detection window.
const seriesLength = 7*24 + 24

var (
	requestCount  atomic.Int64
	successCount  atomic.Int64
	failCount     atomic.Int64
	anomalyCount  atomic.Int64
	latencies     []float64
	latenciesLock sync.Mutex

	detectors = []string{"threshold", "absolute_change", "percentage_change", "mean_variance", "holt_winters"}
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run tools/loadtest.go <url> [workers] [duration]")
		fmt.Println("Example: go run tools/loadtest.go http://localhost:8080/detect 8 30s")
		os.Exit(1)
	}

	url := os.Args[1]
	workers := 8
	duration := 30 * time.Second

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &workers)
	}
	if len(os.Args) > 3 {
		d, err := time.ParseDuration(os.Args[3])
		if err == nil {
			duration = d
		}
	}

	fmt.Printf("Load Test Configuration:\n")
	fmt.Printf("  URL: %s\n", url)
	fmt.Printf("  Workers: %d\n", workers)
	fmt.Printf("  Duration: %v\n\n", duration)

	latencies = make([]float64, 0, 10000)
	startTime := time.Now()
	endTime := startTime.Add(duration)

	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(endTime) {
				sendRequest(client, url, syntheticRequest(rng))
			}
		}(int64(w))
	}

	wg.Wait()
	printResults(time.Since(startTime))
}

// syntheticRequest builds a daily-seasonal hourly series with noise and a
// few injected spikes in the last day, for a randomly chosen detector.
func syntheticRequest(rng *rand.Rand) models.DetectionRequest {
	start := time.Now().UTC().Truncate(time.Hour).Add(-seriesLength * time.Hour)
	series := models.SeriesPayload{}
	for i := 0; i < seriesLength; i++ {
		v := 100 + 30*math.Sin(2*math.Pi*float64(i%24)/24) + rng.NormFloat64()*3
		if i >= seriesLength-24 && rng.Float64() < 0.1 {
			v *= 2
		}
		series.Timestamps = append(series.Timestamps, start.Add(time.Duration(i)*time.Hour).UnixMilli())
		series.Values = append(series.Values, &v)
	}

	kind := detectors[rng.Intn(len(detectors))]
	cfg := models.DetectorConfig{Pattern: "UP_OR_DOWN"}
	switch kind {
	case "threshold":
		lo, hi := 40.0, 160.0
		cfg.Min, cfg.Max = &lo, &hi
	case "absolute_change":
		v := 25.0
		cfg.AbsoluteChange, cfg.Offset = &v, "do1d"
	case "percentage_change":
		v := 0.3
		cfg.PercentageChange, cfg.Offset = &v, "mean3d"
	case "mean_variance":
		lookback := 48
		cfg.Lookback = &lookback
	case "holt_winters":
		lookback, period := 72, 24
		cfg.Lookback, cfg.Period = &lookback, &period
	}

	return models.DetectionRequest{
		Type:   kind,
		Config: cfg,
		Start:  start.Add((seriesLength - 24) * time.Hour).Format(time.RFC3339),
		End:    start.Add(seriesLength * time.Hour).Format(time.RFC3339),
		Inputs: map[string]models.SeriesPayload{"current": series},
	}
}

func sendRequest(client *http.Client, url string, body models.DetectionRequest) {
	jsonData, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)

	requestCount.Add(1)
	if err != nil {
		failCount.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		failCount.Add(1)
		return
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failCount.Add(1)
		return
	}
	successCount.Add(1)
	anomalyCount.Add(int64(result.Anomalies))

	latenciesLock.Lock()
	latencies = append(latencies, float64(latency))
	latenciesLock.Unlock()
}

func printResults(duration time.Duration) {
	total := requestCount.Load()
	success := successCount.Load()

	latenciesLock.Lock()
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	latenciesLock.Unlock()
	sort.Float64s(sorted)

	fmt.Println("\n==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:        %v\n", duration)
	fmt.Printf("Total Requests: %d\n", total)
	fmt.Printf("Successful:     %d\n", success)
	fmt.Printf("Failed:         %d\n", failCount.Load())
	if total > 0 {
		fmt.Printf("Success Rate:   %.2f%%\n", float64(success)/float64(total)*100)
	}
	fmt.Printf("Requests/sec:   %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("Anomalies:      %d\n", anomalyCount.Load())

	if len(sorted) == 0 {
		fmt.Println("==========================================")
		return
	}
	fmt.Println("\nLatency Statistics:")
	fmt.Printf("  Min:          %v\n", time.Duration(sorted[0]))
	fmt.Printf("  Max:          %v\n", time.Duration(sorted[len(sorted)-1]))
	fmt.Printf("  Average:      %v\n", time.Duration(stat.Mean(sorted, nil)))
	for _, p := range []float64{0.5, 0.95, 0.99} {
		fmt.Printf("  p%-2.0f:          %v\n", p*100, time.Duration(stat.Quantile(p, stat.Empirical, sorted, nil)))
	}
	fmt.Println("==========================================")
}
