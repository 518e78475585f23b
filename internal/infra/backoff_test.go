package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{30, 60 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tc := range cases {
		if got := CalculateBackoff(tc.retry); got != tc.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordTick()
	m.RecordTick()
	m.RecordObservation()
	m.RecordQuoteError()
	m.RecordNotify(true)
	m.RecordNotify(false)
	m.RecordAssistant(true)
	m.RecordAssistant(false)
	m.RecordAlertFired()
	m.SetFeedConnected(true)

	snap := m.Snapshot()
	wants := map[string]uint64{
		"ticks_total":      2,
		"observations":     1,
		"quote_errors":     1,
		"notify_sent":      1,
		"notify_errors":    1,
		"assistant_calls":  2,
		"assistant_errors": 1,
		"alerts_fired":     1,
		"feed_connected":   1,
	}
	for k, want := range wants {
		if snap[k] != want {
			t.Errorf("%s = %d, want %d", k, snap[k], want)
		}
	}
}
