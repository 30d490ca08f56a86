package monitor

import (
	"sync"
	"time"

	"github.com/platinummonkey/pulse/pkg/bucket"
	"github.com/sirupsen/logrus"
)

const (
	// historyCap bounds the retained latency history; the oldest entry
	// is evicted first.
	historyCap = 1000
	// errorMessageCap truncates stored error messages for display.
	errorMessageCap = 100
	// rollupRetention is how long hourly rollups are kept. Pruned
	// inline on every write.
	rollupRetention = 25 * time.Hour
)

// TrendDirection classifies latency movement between the two most
// recent half-windows of the history.
type TrendDirection string

const (
	TrendImproving        TrendDirection = "improving"
	TrendDegrading        TrendDirection = "degrading"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// Trend is the result of a latency trend analysis.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	// ChangePercent is the relative improvement of the recent mean
	// over the prior mean; positive means faster.
	ChangePercent float64 `json:"change_percent"`
}

// HourlyRollup aggregates request outcomes within one hour bucket.
type HourlyRollup struct {
	Requests     int           `json:"requests"`
	Errors       int           `json:"errors"`
	TotalLatency time.Duration `json:"-"`
}

// AvgLatency returns the mean latency of the rollup.
func (r HourlyRollup) AvgLatency() time.Duration {
	if r.Requests == 0 {
		return 0
	}
	return r.TotalLatency / time.Duration(r.Requests)
}

// ErrorRate returns the rollup's error percentage.
func (r HourlyRollup) ErrorRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Requests) * 100
}

// Counters is a read-only view of the monitor's request accounting.
type Counters struct {
	Requests         int64         `json:"requests"`
	Errors           int64         `json:"errors"`
	APICalls         int64         `json:"api_calls"`
	Uptime           time.Duration `json:"uptime"`
	AvgLatency       time.Duration `json:"avg_latency"`
	LastErrorAt      time.Time     `json:"last_error_at"`
	LastErrorMessage string        `json:"last_error_message"`
}

// ErrorRate returns errors as a percentage of requests, guarding the
// zero-request case.
func (c Counters) ErrorRate() float64 {
	total := c.Requests
	if total < 1 {
		total = 1
	}
	return float64(c.Errors) / float64(total) * 100
}

// Monitor keeps a bounded rolling log of request outcomes and derives
// health and trend information from it. All methods are safe for
// concurrent use; the internal structures are owned exclusively by the
// monitor and mutated only through its methods.
type Monitor struct {
	log   *logrus.Logger
	start time.Time

	mu               sync.Mutex
	requests         int64
	errors           int64
	apiCalls         int64
	latencies        []time.Duration
	lastErrorAt      time.Time
	lastErrorMessage string
	hourly           map[string]*HourlyRollup
}

// New creates a monitor whose uptime starts now.
func New(log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.New()
	}
	return &Monitor{
		log:    log,
		start:  time.Now(),
		hourly: make(map[string]*HourlyRollup),
	}
}

// RecordOutcome appends one request outcome to the history, updates the
// hourly rollup for the current hour, and prunes rollups older than the
// retention window.
func (m *Monitor) RecordOutcome(latency time.Duration, isError bool, errorMessage string) {
	m.recordOutcomeAt(time.Now(), latency, isError, errorMessage)
}

// RecordOutcomeAt is RecordOutcome at an explicit event time, keeping
// the hourly rollup keyed to the event rather than the wall clock.
func (m *Monitor) RecordOutcomeAt(ts time.Time, latency time.Duration, isError bool, errorMessage string) {
	m.recordOutcomeAt(ts, latency, isError, errorMessage)
}

func (m *Monitor) recordOutcomeAt(now time.Time, latency time.Duration, isError bool, errorMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests++
	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > historyCap {
		m.latencies = m.latencies[len(m.latencies)-historyCap:]
	}

	if isError {
		m.errors++
		m.lastErrorAt = now
		if len(errorMessage) > errorMessageCap {
			errorMessage = errorMessage[:errorMessageCap]
		}
		m.lastErrorMessage = errorMessage
	}

	hour := bucket.Hour(now)
	rollup, ok := m.hourly[hour]
	if !ok {
		rollup = &HourlyRollup{}
		m.hourly[hour] = rollup
	}
	rollup.Requests++
	rollup.TotalLatency += latency
	if isError {
		rollup.Errors++
	}

	cutoff := bucket.Hour(now.Add(-rollupRetention))
	for key := range m.hourly {
		if key < cutoff {
			delete(m.hourly, key)
		}
	}
}

// RecordAPICall increments the outbound-call counter, which is tracked
// independently of inbound request accounting.
func (m *Monitor) RecordAPICall() {
	m.mu.Lock()
	m.apiCalls++
	m.mu.Unlock()
}

// Counters returns the current request accounting. AvgLatency covers
// the most recent 100 outcomes.
func (m *Monitor) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.latencies
	if len(recent) > 100 {
		recent = recent[len(recent)-100:]
	}
	var avg time.Duration
	if len(recent) > 0 {
		var sum time.Duration
		for _, l := range recent {
			sum += l
		}
		avg = sum / time.Duration(len(recent))
	}

	return Counters{
		Requests:         m.requests,
		Errors:           m.errors,
		APICalls:         m.apiCalls,
		Uptime:           time.Since(m.start),
		AvgLatency:       avg,
		LastErrorAt:      m.lastErrorAt,
		LastErrorMessage: m.lastErrorMessage,
	}
}

// Trend compares the mean latency of the most recent 50 outcomes with
// the 50 before them. It needs at least 100 samples to say anything.
func (m *Monitor) Trend() Trend {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) < 100 {
		return Trend{Direction: TrendInsufficientData}
	}

	recent := m.latencies[len(m.latencies)-50:]
	older := m.latencies[len(m.latencies)-100 : len(m.latencies)-50]

	recentAvg := mean(recent)
	olderAvg := mean(older)
	if olderAvg == 0 {
		return Trend{Direction: TrendStable}
	}

	improvement := (olderAvg - recentAvg) / olderAvg * 100
	switch {
	case improvement > 10:
		return Trend{Direction: TrendImproving, ChangePercent: improvement}
	case improvement < -10:
		return Trend{Direction: TrendDegrading, ChangePercent: improvement}
	default:
		return Trend{Direction: TrendStable, ChangePercent: improvement}
	}
}

func mean(latencies []time.Duration) float64 {
	var sum float64
	for _, l := range latencies {
		sum += l.Seconds()
	}
	return sum / float64(len(latencies))
}

// HourlyStats returns rollups for the trailing hours, most recent
// first. Hours with no traffic are reported as zero rollups.
func (m *Monitor) HourlyStats(now time.Time, hours int) map[string]HourlyRollup {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]HourlyRollup, hours)
	for i := 0; i < hours; i++ {
		key := bucket.Hour(now.Add(-time.Duration(i) * time.Hour))
		if rollup, ok := m.hourly[key]; ok {
			stats[key] = *rollup
		} else {
			stats[key] = HourlyRollup{}
		}
	}
	return stats
}
