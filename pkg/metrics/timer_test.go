package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer.start.IsZero() {
		t.Fatal("NewTimer() start time is zero")
	}
	if time.Since(timer.start) > time.Second {
		t.Error("NewTimer() start time is not recent")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	if first < 20*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 20ms", first)
	}

	time.Sleep(5 * time.Millisecond)
	if second := timer.Duration(); second <= first {
		t.Errorf("Duration() should keep growing: first=%v, second=%v", first, second)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_sync_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(histogram)

	if n := testutil.CollectAndCount(histogram); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "test_route_duration_seconds",
			Help: "Test duration histogram vec",
		},
		[]string{"route"},
	)

	NewTimer().ObserveDurationVec(histogramVec, "/shipments/status")
	NewTimer().ObserveDurationVec(histogramVec, "/health")

	if n := testutil.CollectAndCount(histogramVec); n != 2 {
		t.Errorf("expected 2 histogram series, got %d", n)
	}
}
