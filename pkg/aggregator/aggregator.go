package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/platinummonkey/pulse/pkg/monitor"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/stats"
	"github.com/sirupsen/logrus"
)

// SystemStatus is the administrative status view. Fields are primitive
// counts, percentages, and preformatted strings; no untyped bags.
type SystemStatus struct {
	Health    monitor.HealthLevel    `json:"health"`
	Resources monitor.ResourceSample `json:"resources"`

	Requests         int64   `json:"requests"`
	Errors           int64   `json:"errors"`
	APICalls         int64   `json:"api_calls"`
	ErrorRate        float64 `json:"error_rate"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	Uptime           string  `json:"uptime"`
	LastErrorAt      string  `json:"last_error_at"`
	LastErrorMessage string  `json:"last_error_message"`

	Trend monitor.Trend `json:"trend"`

	TodayMessages    int64  `json:"today_messages"`
	TodayActiveUsers int64  `json:"today_active_users"`
	OnlineUsers      int64  `json:"online_users"`
	DataSource       string `json:"data_source"`

	Timestamp string `json:"timestamp"`
}

// ActionCount is one entry of the top-N action ranking.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// ChatShare is one chat type's share of all recorded chat-type counts.
type ChatShare struct {
	ChatType string  `json:"chat_type"`
	Count    int64   `json:"count"`
	Percent  float64 `json:"percent"`
}

// UserStatistics is the administrative user-statistics view.
type UserStatistics struct {
	TodayActiveUsers int64 `json:"today_active_users"`
	CurrentHourUsers int64 `json:"current_hour_users"`
	OnlineUsers      int64 `json:"online_users"`

	TopActions []ActionCount `json:"top_actions"`
	// ChatTypes is empty when nothing has been recorded; callers
	// render that as "no data" rather than dividing by zero.
	ChatTypes []ChatShare `json:"chat_types"`

	DataSource string `json:"data_source"`
}

// Aggregator composes the metrics store and the monitor into the
// status views and runs the periodic retention cleanup.
type Aggregator struct {
	log     *logrus.Logger
	store   *stats.Store
	monitor *monitor.Monitor
	sampler *monitor.Sampler
	metrics *observability.Metrics
}

// New creates an aggregator over the given collaborators.
func New(store *stats.Store, mon *monitor.Monitor, sampler *monitor.Sampler, log *logrus.Logger, metrics *observability.Metrics) *Aggregator {
	if log == nil {
		log = logrus.New()
	}
	return &Aggregator{
		log:     log,
		store:   store,
		monitor: mon,
		sampler: sampler,
		metrics: metrics,
	}
}

// SystemStatus merges the latest resource sample, request accounting,
// and activity snapshot into one read-only view.
func (a *Aggregator) SystemStatus(ctx context.Context) SystemStatus {
	now := time.Now()
	sample := a.sampler.Sample(ctx)
	counters := a.monitor.Counters()
	snap := a.store.ReadSnapshot(now)

	lastErrorAt := "none"
	if !counters.LastErrorAt.IsZero() {
		lastErrorAt = counters.LastErrorAt.Format("15:04:05")
	}
	lastErrorMessage := counters.LastErrorMessage
	if lastErrorMessage == "" {
		lastErrorMessage = "none"
	}

	return SystemStatus{
		Health:           monitor.Classify(sample),
		Resources:        sample,
		Requests:         counters.Requests,
		Errors:           counters.Errors,
		APICalls:         counters.APICalls,
		ErrorRate:        counters.ErrorRate(),
		AvgLatencyMS:     float64(counters.AvgLatency) / float64(time.Millisecond),
		Uptime:           counters.Uptime.Truncate(time.Second).String(),
		LastErrorAt:      lastErrorAt,
		LastErrorMessage: lastErrorMessage,
		Trend:            a.monitor.Trend(),
		TodayMessages:    snap.TodayMessages,
		TodayActiveUsers: snap.TodayActiveUsers,
		OnlineUsers:      snap.OnlineUsers,
		DataSource:       snap.DataSource,
		Timestamp:        now.Format("2006-01-02 15:04:05"),
	}
}

// UserStatistics returns distinct-actor counts, the top-N actions, and
// the chat-type distribution.
func (a *Aggregator) UserStatistics(now time.Time, topN int) UserStatistics {
	snap := a.store.ReadSnapshot(now)

	return UserStatistics{
		TodayActiveUsers: snap.TodayActiveUsers,
		CurrentHourUsers: snap.CurrentHourUsers,
		OnlineUsers:      snap.OnlineUsers,
		TopActions:       topActions(snap.ActionTypes, topN),
		ChatTypes:        chatShares(snap.ChatTypes),
		DataSource:       snap.DataSource,
	}
}

// topActions ranks actions by count descending; ties break on action
// name ascending so the order is stable across calls.
func topActions(counts map[string]int64, n int) []ActionCount {
	ranked := make([]ActionCount, 0, len(counts))
	for action, count := range counts {
		ranked = append(ranked, ActionCount{Action: action, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Action < ranked[j].Action
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// chatShares computes each chat type's percentage of the total. An
// empty result means no data.
func chatShares(counts map[string]int64) []ChatShare {
	var total int64
	for _, count := range counts {
		total += count
	}
	if total == 0 {
		return nil
	}

	shares := make([]ChatShare, 0, len(counts))
	for chatType, count := range counts {
		shares = append(shares, ChatShare{
			ChatType: chatType,
			Count:    count,
			Percent:  float64(count) / float64(total) * 100,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].ChatType < shares[j].ChatType
	})
	return shares
}

// RunCleanup performs one retention sweep. Failures are logged and left
// for the next scheduled run; they never crash the process.
func (a *Aggregator) RunCleanup(now time.Time) {
	if err := a.store.CleanupExpired(now); err != nil {
		a.log.WithError(err).Error("retention cleanup failed, will retry next interval")
		a.countCleanup(false)
		return
	}
	a.log.Debug("retention cleanup completed")
	a.countCleanup(true)
}

func (a *Aggregator) countCleanup(ok bool) {
	if a.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	a.metrics.CleanupRunsTotal.WithLabelValues(status).Inc()
}
