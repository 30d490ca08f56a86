package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/platinummonkey/pulse/pkg/monitor"
	"github.com/platinummonkey/pulse/pkg/ratelimit"
	"github.com/platinummonkey/pulse/pkg/stats"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupPipelineTest(t *testing.T, limit int, window time.Duration) (*Pipeline, *stats.Store, *monitor.Monitor) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := stats.New(stats.Config{
		RedisURL:    "redis://" + mr.Addr(),
		DialTimeout: time.Second,
		OpTimeout:   time.Second,
	}, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	limiter, err := ratelimit.New(ratelimit.Config{MaxRequests: limit, Window: window})
	require.NoError(t, err)

	mon := monitor.New(testLogger())
	return New(limiter, store, mon, testLogger(), nil), store, mon
}

func okHandler(ctx context.Context, ev Event) error { return nil }

func TestProcess_AdmittedEventReportsOutcome(t *testing.T) {
	p, store, mon := setupPipelineTest(t, 10, time.Minute)

	result := p.Process(context.Background(), Event{Actor: 42, Action: "message", Scope: "private"}, okHandler)

	assert.True(t, result.Admitted)
	assert.NoError(t, result.Err)
	assert.NotEmpty(t, result.RequestID)

	assert.Equal(t, int64(1), mon.Counters().Requests)

	snap := store.ReadSnapshot(time.Now())
	assert.Equal(t, int64(1), snap.TodayMessages)
	assert.Equal(t, int64(1), snap.ActionTypes["message"])
}

func TestProcess_RejectedEventNeverReachesIncrements(t *testing.T) {
	const limit = 20
	p, store, mon := setupPipelineTest(t, limit, time.Minute)

	now := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)

	handlerRuns := 0
	handler := func(ctx context.Context, ev Event) error {
		handlerRuns++
		return nil
	}

	// Actor 42 sends 21 events inside the window with a 20/60s limit.
	var last Result
	for i := 0; i < limit+1; i++ {
		last = p.Process(context.Background(), Event{
			Actor:     42,
			Action:    "message",
			Scope:     "private",
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}, handler)
	}

	assert.False(t, last.Admitted, "21st event must be rejected")
	assert.Equal(t, time.Minute, last.RetryAfter)
	assert.Equal(t, limit, handlerRuns)

	// The rejected event contributed nothing to any counter.
	snap := store.ReadSnapshot(now)
	assert.Equal(t, int64(limit), snap.TodayMessages)
	assert.Equal(t, int64(limit), mon.Counters().Requests)
}

func TestProcess_CountersKeyedToEventTimestamp(t *testing.T) {
	p, store, _ := setupPipelineTest(t, 10, time.Minute)

	// An event carrying its own timestamp lands in that day's buckets,
	// not the wall-clock day at recording time.
	eventDay := time.Date(2025, time.March, 5, 9, 30, 0, 0, time.UTC)
	result := p.Process(context.Background(), Event{
		Actor:     42,
		Action:    "message",
		Scope:     "private",
		Timestamp: eventDay,
	}, okHandler)
	require.True(t, result.Admitted)

	snap := store.ReadSnapshot(eventDay)
	assert.Equal(t, int64(1), snap.TodayMessages)
	assert.Equal(t, int64(1), snap.TodayActiveUsers)

	// The wall-clock day saw nothing.
	snap = store.ReadSnapshot(time.Now())
	assert.Zero(t, snap.TodayMessages)
}

func TestProcess_HandlerErrorIsReportedAndReturned(t *testing.T) {
	p, store, mon := setupPipelineTest(t, 10, time.Minute)

	boom := errors.New("downstream timed out")
	result := p.Process(context.Background(), Event{Actor: 1, Action: "message", Scope: "private"},
		func(ctx context.Context, ev Event) error { return boom })

	assert.True(t, result.Admitted)
	assert.ErrorIs(t, result.Err, boom)

	c := mon.Counters()
	assert.Equal(t, int64(1), c.Errors)
	assert.Equal(t, "downstream timed out", c.LastErrorMessage)

	// An admitted-but-failed event still counts as activity.
	snap := store.ReadSnapshot(time.Now())
	assert.Equal(t, int64(1), snap.TodayMessages)
}

func TestProcess_FillsZeroTimestamp(t *testing.T) {
	p, _, _ := setupPipelineTest(t, 10, time.Minute)

	result := p.Process(context.Background(), Event{Actor: 1, Action: "message", Scope: "private"}, okHandler)
	assert.True(t, result.Admitted)
}
