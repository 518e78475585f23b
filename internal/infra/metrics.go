package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksTotal      atomic.Uint64
	observations    atomic.Uint64
	quoteErrors     atomic.Uint64
	notifySent      atomic.Uint64
	notifyErrors    atomic.Uint64
	assistantCalls  atomic.Uint64
	assistantErrors atomic.Uint64
	alertsFired     atomic.Uint64

	// Gauges
	feedConnected atomic.Int32 // 1 = live feed up, 0 = down
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTick records one completed scheduler iteration.
func (m *Metrics) RecordTick() {
	m.ticksTotal.Add(1)
}

// RecordObservation records a successfully sampled price.
func (m *Metrics) RecordObservation() {
	m.observations.Add(1)
}

// RecordQuoteError records a failed quote fetch.
func (m *Metrics) RecordQuoteError() {
	m.quoteErrors.Add(1)
}

// RecordNotify records the outcome of an outbound notification.
func (m *Metrics) RecordNotify(ok bool) {
	if ok {
		m.notifySent.Add(1)
	} else {
		m.notifyErrors.Add(1)
	}
}

// RecordAssistant records the outcome of one assistant round-trip.
func (m *Metrics) RecordAssistant(ok bool) {
	m.assistantCalls.Add(1)
	if !ok {
		m.assistantErrors.Add(1)
	}
}

// RecordAlertFired records a triggered price alert.
func (m *Metrics) RecordAlertFired() {
	m.alertsFired.Add(1)
}

// SetFeedConnected sets the live feed gauge.
func (m *Metrics) SetFeedConnected(up bool) {
	if up {
		m.feedConnected.Store(1)
	} else {
		m.feedConnected.Store(0)
	}
}

// Snapshot returns current counter values for logging.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"ticks_total":      m.ticksTotal.Load(),
		"observations":     m.observations.Load(),
		"quote_errors":     m.quoteErrors.Load(),
		"notify_sent":      m.notifySent.Load(),
		"notify_errors":    m.notifyErrors.Load(),
		"assistant_calls":  m.assistantCalls.Load(),
		"assistant_errors": m.assistantErrors.Load(),
		"alerts_fired":     m.alertsFired.Load(),
		"feed_connected":   uint64(m.feedConnected.Load()),
	}
}
