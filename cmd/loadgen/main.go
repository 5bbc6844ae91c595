// Load generator for exercising the Harrier detection API.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 1000
//
// This tool:
//   1. Generates synthetic transactions from a seeded random stream
//   2. Injects a configurable fraction of risky transactions
//   3. Sends each transaction to POST /detect
//   4. Reports alert rates, severity distribution, and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DetectRequest mirrors the API request format.
type DetectRequest struct {
	TransactionID      string                  `json:"transactionId,omitempty"`
	Amount             float64                 `json:"amount"`
	Currency           string                  `json:"currency,omitempty"`
	SourceAccount      string                  `json:"sourceAccount"`
	DestinationAccount string                  `json:"destinationAccount"`
	Channel            string                  `json:"channel,omitempty"`
	GeoLocation        string                  `json:"geoLocation,omitempty"`
	DeviceFingerprint  string                  `json:"deviceFingerprint,omitempty"`
	Timestamp          *time.Time              `json:"timestamp,omitempty"`
	Historical         []HistoricalTransaction `json:"historical,omitempty"`
}

// HistoricalTransaction mirrors the API historical entry format.
type HistoricalTransaction struct {
	Amount             float64   `json:"amount"`
	Timestamp          time.Time `json:"timestamp"`
	DestinationAccount string    `json:"destinationAccount,omitempty"`
	Channel            string    `json:"channel,omitempty"`
}

// DetectResponse mirrors the API response format.
type DetectResponse struct {
	Detection struct {
		ID          string  `json:"id"`
		RiskScore   float64 `json:"riskScore"`
		Severity    string  `json:"severity"`
		ShouldAlert bool    `json:"shouldAlert"`
	} `json:"detection"`
	AlertID string `json:"alertId,omitempty"`
}

// genTx pairs a request with the generator's intent, so alert rates can
// be reported per cohort.
type genTx struct {
	req   DetectRequest
	risky bool
}

// Metrics tracks load run results.
type Metrics struct {
	TotalSent   int64
	TotalErrors int64

	AlertsOnRisky  int64
	AlertsOnNormal int64
	TotalRisky     int64
	TotalNormal    int64

	SeverityCritical int64
	SeverityHigh     int64
	SeverityMedium   int64
	SeverityLow      int64

	LatencyMs int64
}

var channels = []string{"card", "wire", "ach", "mobile"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "loadgen", "Tenant ID for requests")
	count := flag.Int("count", 1000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for reproducible runs")
	fraudRate := flag.Float64("fraud-rate", 0.05, "Fraction of risky transactions (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            HARRIER LOADGEN - Synthetic Transactions           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nHarrier URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Count:        %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Printf("Fraud Rate:   %.2f\n", *fraudRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Generate everything up front from one seeded stream so runs with
	// the same seed send the same transactions.
	rng := rand.New(rand.NewSource(*seed))
	transactions := make([]genTx, *count)
	for i := range transactions {
		transactions[i] = generate(rng, i, *fraudRate)
	}

	fmt.Printf("✓ Generated %d transactions\n\n", len(transactions))
	fmt.Printf("Running with %d workers...\n", *workers)

	startTime := time.Now()
	metrics := run(transactions, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

// generate produces one synthetic transaction. Risky transactions spend
// far above the attached history through an unseen channel; normal ones
// stay inside their historical pattern.
func generate(rng *rand.Rand, i int, fraudRate float64) genTx {
	entity := fmt.Sprintf("acct-%04d", rng.Intn(200))
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ts := base.Add(time.Duration(i) * time.Second)

	// Typical spending for this entity
	mean := 200 + rng.Float64()*1800
	history := make([]HistoricalTransaction, 5)
	channel := channels[rng.Intn(len(channels))]
	for j := range history {
		history[j] = HistoricalTransaction{
			Amount:             mean * (0.7 + rng.Float64()*0.6),
			Timestamp:          ts.Add(-time.Duration(j+1) * 24 * time.Hour),
			DestinationAccount: fmt.Sprintf("dest-%04d", rng.Intn(50)),
			Channel:            channel,
		}
	}

	risky := rng.Float64() < fraudRate

	req := DetectRequest{
		TransactionID: fmt.Sprintf("loadgen-%06d", i),
		Currency:      "USD",
		SourceAccount: entity,
		Timestamp:     &ts,
		Historical:    history,
	}

	if risky {
		req.Amount = mean * (15 + rng.Float64()*30)
		req.DestinationAccount = fmt.Sprintf("mule-%06d", rng.Intn(1000000))
		req.Channel = "crypto"
		nightTs := time.Date(ts.Year(), ts.Month(), ts.Day(), rng.Intn(4), rng.Intn(60), 0, 0, time.UTC)
		req.Timestamp = &nightTs
		req.DeviceFingerprint = fmt.Sprintf("device-unseen-%06d", rng.Intn(1000000))
	} else {
		req.Amount = mean * (0.8 + rng.Float64()*0.4)
		req.DestinationAccount = history[rng.Intn(len(history))].DestinationAccount
		req.Channel = channel
	}

	return genTx{req: req, risky: risky}
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func run(transactions []genTx, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan genTx, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := detect(client, baseURL, tenantID, tx.req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.LatencyMs, elapsed)
				atomic.AddInt64(&metrics.TotalSent, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.req.TransactionID, err)
					}
					continue
				}

				if tx.risky {
					atomic.AddInt64(&metrics.TotalRisky, 1)
					if result.Detection.ShouldAlert {
						atomic.AddInt64(&metrics.AlertsOnRisky, 1)
					}
				} else {
					atomic.AddInt64(&metrics.TotalNormal, 1)
					if result.Detection.ShouldAlert {
						atomic.AddInt64(&metrics.AlertsOnNormal, 1)
					}
				}

				if result.Detection.ShouldAlert {
					switch result.Detection.Severity {
					case "CRITICAL":
						atomic.AddInt64(&metrics.SeverityCritical, 1)
					case "HIGH":
						atomic.AddInt64(&metrics.SeverityHigh, 1)
					case "MEDIUM":
						atomic.AddInt64(&metrics.SeverityMedium, 1)
					default:
						atomic.AddInt64(&metrics.SeverityLow, 1)
					}
				}

				if verbose {
					flag := " "
					if tx.risky {
						flag = "R"
					}
					fmt.Printf("%s %s | Amount: $%12.2f | Score: %6.2f | %-8s | Alert: %v\n",
						flag,
						tx.req.TransactionID,
						tx.req.Amount,
						result.Detection.RiskScore,
						result.Detection.Severity,
						result.Detection.ShouldAlert,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func detect(client *http.Client, baseURL, tenantID string, req DetectRequest) (*DetectResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOADGEN RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Total Sent:    %d\n", m.TotalSent)
	fmt.Printf("   Risky:         %d\n", m.TotalRisky)
	fmt.Printf("   Normal:        %d\n", m.TotalNormal)
	fmt.Printf("   Errors:        %d\n", m.TotalErrors)

	fmt.Printf("\n🎯 ALERT RATES\n")
	if m.TotalRisky > 0 {
		rate := float64(m.AlertsOnRisky) / float64(m.TotalRisky) * 100
		fmt.Printf("   Risky alerted:   %d / %d (%.2f%%)\n", m.AlertsOnRisky, m.TotalRisky, rate)
	}
	if m.TotalNormal > 0 {
		rate := float64(m.AlertsOnNormal) / float64(m.TotalNormal) * 100
		fmt.Printf("   Normal alerted:  %d / %d (%.2f%%)\n", m.AlertsOnNormal, m.TotalNormal, rate)
	}

	fmt.Printf("\n🚨 SEVERITY DISTRIBUTION\n")
	fmt.Printf("   CRITICAL:  %d\n", m.SeverityCritical)
	fmt.Printf("   HIGH:      %d\n", m.SeverityHigh)
	fmt.Printf("   MEDIUM:    %d\n", m.SeverityMedium)
	fmt.Printf("   LOW:       %d\n", m.SeverityLow)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalSent > 0 {
		avgMs := float64(m.LatencyMs) / float64(m.TotalSent)
		tps := float64(m.TotalSent) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
