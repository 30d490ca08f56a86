package stats

import (
	"sync"
	"time"

	"github.com/platinummonkey/pulse/pkg/bucket"
)

// fallbackState is the process-local approximation used while the
// durable backend is unreachable. It guards its own maps so the store
// never holds a lock across a backend round trip. Contents are
// intentionally lost on process restart.
type fallbackState struct {
	mu           sync.Mutex
	counters     map[string]int64
	activeActors map[int64]struct{}
	lastActivity map[int64]time.Time
}

func newFallbackState() *fallbackState {
	return &fallbackState{
		counters:     make(map[string]int64),
		activeActors: make(map[int64]struct{}),
		lastActivity: make(map[int64]time.Time),
	}
}

func (f *fallbackState) recordActivity(now time.Time, actor int64, action, scope string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters["daily_messages:"+bucket.Day(now)]++
	f.counters["hourly_messages:"+bucket.Hour(now)]++
	f.counters["action:"+action]++
	f.counters["chat:"+scope]++
}

// markSeen is updated on every event regardless of mode, so the
// degraded online-now estimate has history from before the switch.
func (f *fallbackState) markSeen(now time.Time, actor int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeActors[actor] = struct{}{}
	f.lastActivity[actor] = now
}

// lastSeen returns the actor's last-seen time, zero if never seen.
func (f *fallbackState) lastSeen(actor int64) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity[actor]
}

// onlineSince counts actors whose last activity is at or after the
// cutoff.
func (f *fallbackState) onlineSince(cutoff time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onlineSinceLocked(cutoff)
}

func (f *fallbackState) onlineSinceLocked(cutoff time.Time) int64 {
	var n int64
	for _, last := range f.lastActivity {
		if !last.Before(cutoff) {
			n++
		}
	}
	return n
}

func (f *fallbackState) snapshot(now time.Time) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make(map[string]int64)
	chats := make(map[string]int64)
	for key, count := range f.counters {
		if len(key) > 7 && key[:7] == "action:" {
			actions[key[7:]] = count
		}
		if len(key) > 5 && key[:5] == "chat:" {
			chats[key[5:]] = count
		}
	}

	return Snapshot{
		TodayMessages:       f.counters["daily_messages:"+bucket.Day(now)],
		TodayActiveUsers:    int64(len(f.activeActors)),
		CurrentHourMessages: f.counters["hourly_messages:"+bucket.Hour(now)],
		CurrentHourUsers:    int64(len(f.activeActors)),
		OnlineUsers:         f.onlineSinceLocked(now.Add(-onlineWindow)),
		ActionTypes:         actions,
		TodayActionTypes:    map[string]int64{},
		ChatTypes:           chats,
		LastUpdated:         now,
		DataSource:          string(ModeDegraded),
	}
}
