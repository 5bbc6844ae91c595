package metrics

import (
	"sync"
	"testing"
)

func TestSnapshotEmpty(t *testing.T) {
	m := NewInMemory()

	stats := m.Snapshot()
	if stats.TotalDetections != 0 {
		t.Errorf("expected 0 detections, got %d", stats.TotalDetections)
	}
	if stats.ScoreAvg != 0 || stats.ScoreP95 != 0 {
		t.Errorf("expected zero score stats, got avg=%.2f p95=%.2f", stats.ScoreAvg, stats.ScoreP95)
	}
}

func TestSnapshotScores(t *testing.T) {
	m := NewInMemory()

	for i := 1; i <= 100; i++ {
		m.RecordScore(float64(i))
	}

	stats := m.Snapshot()
	if stats.TotalDetections != 100 {
		t.Errorf("expected 100 detections, got %d", stats.TotalDetections)
	}
	if stats.ScoreMin != 1 || stats.ScoreMax != 100 {
		t.Errorf("expected min 1 max 100, got %.0f/%.0f", stats.ScoreMin, stats.ScoreMax)
	}
	if stats.ScoreAvg != 50.5 {
		t.Errorf("expected avg 50.5, got %.2f", stats.ScoreAvg)
	}
	if stats.ScoreP50 < 49 || stats.ScoreP50 > 52 {
		t.Errorf("expected p50 near 50, got %.2f", stats.ScoreP50)
	}
	if stats.ScoreP95 < 94 || stats.ScoreP95 > 97 {
		t.Errorf("expected p95 near 95, got %.2f", stats.ScoreP95)
	}
}

func TestScoreWindowBounded(t *testing.T) {
	m := NewInMemory()

	for i := 0; i < scoreWindow+500; i++ {
		m.RecordScore(10)
	}
	m.RecordScore(90)

	stats := m.Snapshot()
	if stats.TotalDetections != int64(scoreWindow+501) {
		t.Errorf("total detections must count beyond the window, got %d", stats.TotalDetections)
	}
	if stats.ScoreMax != 90 {
		t.Errorf("latest score must stay in the window, got max %.0f", stats.ScoreMax)
	}
	if len(m.scores) > scoreWindow {
		t.Errorf("window grew to %d entries", len(m.scores))
	}
}

func TestAlertAndFailureCounters(t *testing.T) {
	m := NewInMemory()

	m.RecordAlert("HIGH")
	m.RecordAlert("HIGH")
	m.RecordAlert("CRITICAL")
	m.RecordDetectorFailure("ml")

	stats := m.Snapshot()
	if stats.TotalAlerts != 3 {
		t.Errorf("expected 3 alerts, got %d", stats.TotalAlerts)
	}
	if stats.AlertsBySeverity["HIGH"] != 2 {
		t.Errorf("expected 2 HIGH alerts, got %d", stats.AlertsBySeverity["HIGH"])
	}
	if stats.DetectorFailures["ml"] != 1 {
		t.Errorf("expected 1 ml failure, got %d", stats.DetectorFailures["ml"])
	}
}

func TestConcurrentRecording(t *testing.T) {
	m := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordScore(50)
				m.RecordAlert("MEDIUM")
			}
		}()
	}
	wg.Wait()

	stats := m.Snapshot()
	if stats.TotalDetections != 1000 {
		t.Errorf("expected 1000 detections, got %d", stats.TotalDetections)
	}
	if stats.TotalAlerts != 1000 {
		t.Errorf("expected 1000 alerts, got %d", stats.TotalAlerts)
	}
}
