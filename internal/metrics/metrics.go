// Package metrics provides the observability sink the detection engine
// reports into. The engine takes a Recorder at construction; scoring
// logic never depends on what the sink does with the numbers.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Recorder receives per-detection observations from the engine.
type Recorder interface {
	// RecordScore records a composite score for distribution metrics.
	RecordScore(score float64)

	// RecordAlert records an alert creation tagged by severity.
	RecordAlert(severity string)

	// RecordDetectorFailure records a detector that failed or timed out
	// and was substituted with a neutral result.
	RecordDetectorFailure(detector string)
}

// Noop discards all observations.
type Noop struct{}

func (Noop) RecordScore(float64)          {}
func (Noop) RecordAlert(string)           {}
func (Noop) RecordDetectorFailure(string) {}

// scoreWindow bounds the in-memory score history.
const scoreWindow = 1000

// InMemory keeps a rolling window of scores plus alert and failure
// counters. Safe for concurrent use.
type InMemory struct {
	mu               sync.Mutex
	scores           []float64
	totalDetections  int64
	alertsBySeverity map[string]int64
	detectorFailures map[string]int64
	startedAt        time.Time
}

// NewInMemory creates an empty in-memory recorder.
func NewInMemory() *InMemory {
	return &InMemory{
		alertsBySeverity: make(map[string]int64),
		detectorFailures: make(map[string]int64),
		startedAt:        time.Now().UTC(),
	}
}

func (m *InMemory) RecordScore(score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalDetections++
	m.scores = append(m.scores, score)
	if len(m.scores) > scoreWindow {
		m.scores = m.scores[len(m.scores)-scoreWindow:]
	}
}

func (m *InMemory) RecordAlert(severity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertsBySeverity[severity]++
}

func (m *InMemory) RecordDetectorFailure(detector string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectorFailures[detector]++
}

// Stats is a point-in-time summary of recorded observations.
type Stats struct {
	TotalDetections  int64            `json:"totalDetections"`
	TotalAlerts      int64            `json:"totalAlerts"`
	AlertsBySeverity map[string]int64 `json:"alertsBySeverity"`
	DetectorFailures map[string]int64 `json:"detectorFailures"`
	ScoreMin         float64          `json:"scoreMin"`
	ScoreMax         float64          `json:"scoreMax"`
	ScoreAvg         float64          `json:"scoreAvg"`
	ScoreP50         float64          `json:"scoreP50"`
	ScoreP95         float64          `json:"scoreP95"`
	UptimeSeconds    float64          `json:"uptimeSeconds"`
}

// Snapshot computes summary statistics over the current window.
func (m *InMemory) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalDetections:  m.totalDetections,
		AlertsBySeverity: make(map[string]int64, len(m.alertsBySeverity)),
		DetectorFailures: make(map[string]int64, len(m.detectorFailures)),
		UptimeSeconds:    time.Since(m.startedAt).Seconds(),
	}
	for k, v := range m.alertsBySeverity {
		stats.AlertsBySeverity[k] = v
		stats.TotalAlerts += v
	}
	for k, v := range m.detectorFailures {
		stats.DetectorFailures[k] = v
	}

	if len(m.scores) == 0 {
		return stats
	}

	sorted := make([]float64, len(m.scores))
	copy(sorted, m.scores)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted {
		sum += s
	}

	stats.ScoreMin = sorted[0]
	stats.ScoreMax = sorted[len(sorted)-1]
	stats.ScoreAvg = sum / float64(len(sorted))
	stats.ScoreP50 = percentile(sorted, 0.50)
	stats.ScoreP95 = percentile(sorted, 0.95)
	return stats
}

// percentile takes a sorted slice, nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
