package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/platinummonkey/pulse/pkg/bucket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := New(Config{
		RedisURL:    "redis://" + mr.Addr(),
		DialTimeout: time.Second,
		OpTimeout:   time.Second,
	}, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{RedisURL: "not a url"}, testLogger(), nil)
	require.Error(t, err)
}

func TestNew_UnreachableBackendStartsDegraded(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	store, err := New(Config{
		RedisURL:    "redis://" + addr,
		DialTimeout: 200 * time.Millisecond,
		OpTimeout:   200 * time.Millisecond,
	}, testLogger(), nil)
	require.NoError(t, err, "an unreachable backend is not a config error")
	defer store.Close()

	assert.Equal(t, ModeDegraded, store.Mode())
}

func TestRecordActivity_CounterAndDistinctSet(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)
	day := bucket.Day(now)

	// Same actor twice: counter advances by 2, set membership by 1.
	store.recordActivityAt(now, 42, "message", "private")
	store.recordActivityAt(now, 42, "message", "private")

	assert.Equal(t, "2", mr.HGet("daily_messages", day))

	members, err := mr.SMembers("active_users:" + day)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	assert.Equal(t, "2", mr.HGet("user_stats:42", "total_messages"))
}

func TestRecordActivity_SetsExpirations(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)
	store.recordActivityAt(now, 7, "message", "private")

	day := bucket.Day(now)
	hour := bucket.Hour(now)

	assert.Equal(t, 7*24*time.Hour, mr.TTL("active_users:"+day))
	assert.Equal(t, 25*time.Hour, mr.TTL("active_users:"+hour))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("user_stats:7"))
	assert.Equal(t, time.Hour, mr.TTL("minute_messages"))
}

func TestReadSnapshot_Durable(t *testing.T) {
	store, _ := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)
	store.recordActivityAt(now, 1, "message", "private")
	store.recordActivityAt(now, 1, "message", "private")
	store.recordActivityAt(now, 2, "command", "group")

	snap := store.ReadSnapshot(now)

	assert.Equal(t, string(ModeDurable), snap.DataSource)
	assert.Equal(t, int64(3), snap.TodayMessages)
	assert.Equal(t, int64(2), snap.TodayActiveUsers)
	assert.Equal(t, int64(3), snap.CurrentHourMessages)
	assert.Equal(t, int64(2), snap.CurrentHourUsers)
	assert.Equal(t, int64(2), snap.ActionTypes["message"])
	assert.Equal(t, int64(1), snap.ActionTypes["command"])
	assert.Equal(t, int64(2), snap.TodayActionTypes["message"])
	assert.Equal(t, int64(1), snap.ChatTypes["group"])
	assert.Equal(t, int64(2), snap.ChatTypes["private"])
}

func TestReadSnapshot_EmptyBackend(t *testing.T) {
	store, _ := setupStoreTest(t)

	snap := store.ReadSnapshot(time.Now())

	assert.Equal(t, string(ModeDurable), snap.DataSource)
	assert.Zero(t, snap.TodayMessages)
	assert.Zero(t, snap.TodayActiveUsers)
	assert.Empty(t, snap.ActionTypes)
}

func TestOnlineNow_DurableIsMaxOfTrailingMinutes(t *testing.T) {
	store, _ := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)

	// Three events this minute, one event two minutes ago.
	store.recordActivityAt(now, 1, "message", "private")
	store.recordActivityAt(now, 2, "message", "private")
	store.recordActivityAt(now, 3, "message", "private")
	store.recordActivityAt(now.Add(-2*time.Minute), 4, "message", "private")

	assert.Equal(t, int64(3), store.OnlineNow(now))

	// Six minutes later every probed bucket is empty.
	assert.Equal(t, int64(0), store.OnlineNow(now.Add(6*time.Minute)))
}

func TestDegradation_FlipsOnWriteFailureAndKeepsServing(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)
	store.recordActivityAt(now, 42, "message", "private")

	// Durable counts are visible right up to the switch.
	snap := store.ReadSnapshot(now)
	assert.Equal(t, int64(1), snap.TodayMessages)
	assert.Equal(t, string(ModeDurable), snap.DataSource)

	mr.Close()

	// First fallback write must not crash, and flips the mode.
	store.recordActivityAt(now, 42, "message", "private")
	assert.Equal(t, ModeDegraded, store.Mode())

	snap = store.ReadSnapshot(now)
	assert.Equal(t, string(ModeDegraded), snap.DataSource)
	assert.Equal(t, int64(1), snap.TodayMessages, "fallback counts only post-switch events")
	assert.Equal(t, int64(1), snap.TodayActiveUsers)

	// No reconnection is attempted: mode stays degraded afterwards.
	store.recordActivityAt(now, 7, "message", "private")
	assert.Equal(t, ModeDegraded, store.Mode())
}

func TestOnlineNow_FallbackCountsRecentActors(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)

	// Seen while still durable; last-seen state survives the switch.
	store.recordActivityAt(now.Add(-time.Minute), 1, "message", "private")

	mr.Close()
	store.recordActivityAt(now, 2, "message", "private")
	store.recordActivityAt(now.Add(-10*time.Minute), 3, "message", "private")

	require.Equal(t, ModeDegraded, store.Mode())

	// Actors 1 and 2 are within the 5-minute window; actor 3 is not.
	assert.Equal(t, int64(2), store.OnlineNow(now))
}

func TestCleanupExpired_DayBucketBoundaries(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
	offsets := []int{0, 6, 7, 8, 14}
	for _, offset := range offsets {
		store.recordActivityAt(now.AddDate(0, 0, -offset), int64(offset+1), "message", "private")
	}

	require.NoError(t, store.CleanupExpired(now))

	kept := map[int]bool{0: true, 6: true, 7: true, 8: false, 14: false}
	for offset, want := range kept {
		day := bucket.DayOffset(now, -offset)
		assert.Equal(t, want, mr.Exists("active_users:"+day), "active_users day offset %d", offset)

		field := mr.HGet("daily_messages", day)
		if want {
			assert.NotEmpty(t, field, "daily_messages field for offset %d", offset)
		} else {
			assert.Empty(t, field, "daily_messages field for offset %d", offset)
		}
	}
}

func TestCleanupExpired_PrunesRollingHashFields(t *testing.T) {
	store, mr := setupStoreTest(t)

	now := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
	store.recordActivityAt(now.Add(-30*time.Hour), 1, "message", "private")
	store.recordActivityAt(now, 2, "message", "private")

	require.NoError(t, store.CleanupExpired(now))

	assert.Empty(t, mr.HGet("hourly_messages", bucket.Hour(now.Add(-30*time.Hour))))
	assert.NotEmpty(t, mr.HGet("hourly_messages", bucket.Hour(now)))

	assert.Empty(t, mr.HGet("minute_messages", bucket.Minute(now.Add(-30*time.Hour))))
	assert.NotEmpty(t, mr.HGet("minute_messages", bucket.Minute(now)))
}

func TestCleanupExpired_NoopWhenDegraded(t *testing.T) {
	store, mr := setupStoreTest(t)

	mr.Close()
	store.recordActivityAt(time.Now(), 1, "message", "private")
	require.Equal(t, ModeDegraded, store.Mode())

	assert.NoError(t, store.CleanupExpired(time.Now()))
}

func TestRecordActivity_ConcurrentWithReads(t *testing.T) {
	store, _ := setupStoreTest(t)

	const writers = 8
	const perWriter = 25
	now := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				store.recordActivityAt(now, actor, "message", "private")
			}
		}(int64(w + 1))
	}
	// Readers run alongside the writers; snapshots must never block
	// behind or corrupt the recording path.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				store.ReadSnapshot(now)
				store.OnlineNow(now)
			}
		}()
	}
	wg.Wait()

	snap := store.ReadSnapshot(now)
	assert.Equal(t, int64(writers*perWriter), snap.TodayMessages)
	assert.Equal(t, int64(writers), snap.TodayActiveUsers)
	assert.Equal(t, ModeDurable, store.Mode())
}

func TestActorActivity(t *testing.T) {
	store, _ := setupStoreTest(t)

	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)
	store.recordActivityAt(now.AddDate(0, 0, -1), 42, "message", "private")
	store.recordActivityAt(now, 42, "message", "private")
	store.recordActivityAt(now, 42, "command", "private")

	total, today, last := store.ActorActivity(now, 42)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), today)
	assert.True(t, last.Equal(now), "last activity = %v, want %v", last, now)
}

func TestActorActivity_UnknownActor(t *testing.T) {
	store, _ := setupStoreTest(t)

	total, today, last := store.ActorActivity(time.Now(), 999)
	assert.Zero(t, total)
	assert.Zero(t, today)
	assert.True(t, last.IsZero())
}
