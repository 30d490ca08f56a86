package stats

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/pulse/pkg/bucket"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Mode identifies which path the store routes operations through.
type Mode string

const (
	// ModeDurable targets the shared redis backend.
	ModeDurable Mode = "redis"
	// ModeDegraded targets the process-local fallback structures.
	ModeDegraded Mode = "memory"
)

// Retention applied to durable keys on every write, so cleanup is
// self-limiting even when the sweep never runs.
const (
	dayRetention    = 7 * 24 * time.Hour
	hourRetention   = 25 * time.Hour
	actorRetention  = 30 * 24 * time.Hour
	minuteRetention = time.Hour

	// onlineWindow is the trailing span an actor counts as online in.
	onlineWindow = 5 * time.Minute
	// onlineProbeMinutes bounds the online estimate to fixed point
	// lookups instead of a variable-size set scan.
	onlineProbeMinutes = 5
)

// Config holds the store's backend settings.
type Config struct {
	// RedisURL locates the durable backend, e.g. redis://localhost:6379.
	RedisURL string
	// DialTimeout bounds the construction-time liveness probe.
	DialTimeout time.Duration
	// OpTimeout is the per-operation budget; a slow backend degrades
	// metrics reporting but never blocks the primary request path
	// beyond it.
	OpTimeout time.Duration
}

// DefaultConfig returns the default backend settings.
func DefaultConfig() Config {
	return Config{
		RedisURL:    "redis://localhost:6379",
		DialTimeout: 5 * time.Second,
		OpTimeout:   3 * time.Second,
	}
}

// Snapshot is the read-only view answered by ReadSnapshot.
type Snapshot struct {
	TodayMessages       int64            `json:"today_messages"`
	TodayActiveUsers    int64            `json:"today_active_users"`
	CurrentHourMessages int64            `json:"current_hour_messages"`
	CurrentHourUsers    int64            `json:"current_hour_users"`
	OnlineUsers         int64            `json:"online_users"`
	ActionTypes         map[string]int64 `json:"action_types"`
	TodayActionTypes    map[string]int64 `json:"today_action_types"`
	ChatTypes           map[string]int64 `json:"chat_types"`
	LastUpdated         time.Time        `json:"last_updated"`
	DataSource          string           `json:"data_source"`
}

// Store is a dual-mode counter and set store over time buckets. While
// the durable backend answers, all operations target it; the first
// operation failure flips the store to the fallback path for the
// remainder of the process lifetime. There is no automatic reconnect.
//
// Write failures never propagate to callers: metrics must not block or
// fail the primary request path.
//
// The mode flag has its own read-write lock and the fallback state
// guards itself, so no lock is ever held across a backend round trip
// and concurrent recorders only serialize on the map updates.
type Store struct {
	log       *logrus.Logger
	metrics   *observability.Metrics
	client    *redis.Client
	opTimeout time.Duration

	modeMu   sync.RWMutex
	mode     Mode
	fallback *fallbackState
}

// New creates a store and probes the durable backend. A malformed URL
// is a configuration error and fails construction; an unreachable
// backend is not, and the store starts degraded.
func New(config Config, log *logrus.Logger, metrics *observability.Metrics) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 3 * time.Second
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = config.DialTimeout
	opts.ReadTimeout = config.OpTimeout
	opts.WriteTimeout = config.OpTimeout

	s := &Store{
		log:       log,
		metrics:   metrics,
		client:    redis.NewClient(opts),
		opTimeout: config.OpTimeout,
		mode:      ModeDurable,
		fallback:  newFallbackState(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("durable backend unreachable, starting in degraded mode")
		s.mode = ModeDegraded
	} else {
		log.Info("durable backend connected, real-time stats enabled")
	}
	s.setModeGauge()

	return s, nil
}

// Mode returns the store's current routing mode.
func (s *Store) Mode() Mode {
	s.modeMu.RLock()
	defer s.modeMu.RUnlock()
	return s.mode
}

// Client exposes the underlying redis client for health probes.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close releases the backend connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// degrade flips the store to the fallback path. Logged once per
// transition; subsequent calls are no-ops.
func (s *Store) degrade(err error) {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if s.mode == ModeDegraded {
		return
	}
	s.mode = ModeDegraded
	s.log.WithError(err).Warn("durable backend failed, switching to in-process fallback stats")
	s.setModeGauge()
}

func (s *Store) setModeGauge() {
	if s.metrics == nil {
		return
	}
	if s.mode == ModeDurable {
		s.metrics.StoreMode.Set(1)
	} else {
		s.metrics.StoreMode.Set(0)
	}
}

func (s *Store) countWrite(mode Mode, ok bool) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	s.metrics.StoreWritesTotal.WithLabelValues(string(mode), status).Inc()
}

// RecordActivity increments the day, hour, and minute counters for one
// activity event, adds the actor to the day and hour distinct sets,
// bumps the actor's lifetime and per-day counts, and tallies the action
// and chat-type distributions. Failures are contained.
func (s *Store) RecordActivity(actor int64, action, scope string) {
	s.recordActivityAt(time.Now(), actor, action, scope)
}

// RecordActivityAt is RecordActivity at an explicit event time, so
// counters land in the buckets of the event's own timestamp rather
// than the wall clock at recording time.
func (s *Store) RecordActivityAt(ts time.Time, actor int64, action, scope string) {
	s.recordActivityAt(ts, actor, action, scope)
}

func (s *Store) recordActivityAt(now time.Time, actor int64, action, scope string) {
	// Last-seen state is kept regardless of mode so a later switch to
	// the fallback path has online-now history from before the switch.
	s.fallback.markSeen(now, actor)

	if s.Mode() == ModeDurable {
		if err := s.recordDurable(now, actor, action, scope); err != nil {
			s.countWrite(ModeDurable, false)
			s.degrade(err)
		} else {
			s.countWrite(ModeDurable, true)
			return
		}
	}

	s.fallback.recordActivity(now, actor, action, scope)
	s.countWrite(ModeDegraded, true)
}

func (s *Store) recordDurable(now time.Time, actor int64, action, scope string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	day := bucket.Day(now)
	hour := bucket.Hour(now)
	minute := bucket.Minute(now)
	actorKey := fmt.Sprintf("user_stats:%d", actor)

	pipe := s.client.Pipeline()

	pipe.HIncrBy(ctx, "daily_users", day, 1)
	pipe.HIncrBy(ctx, "daily_messages", day, 1)
	pipe.SAdd(ctx, "active_users:"+day, actor)

	pipe.HIncrBy(ctx, "hourly_messages", hour, 1)
	pipe.SAdd(ctx, "active_users:"+hour, actor)

	pipe.HIncrBy(ctx, "minute_messages", minute, 1)

	pipe.HIncrBy(ctx, actorKey, "total_messages", 1)
	pipe.HIncrBy(ctx, actorKey, "messages_"+day, 1)
	pipe.HSet(ctx, actorKey, "last_activity", now.Format(time.RFC3339))

	pipe.HIncrBy(ctx, "action_types", action, 1)
	pipe.HIncrBy(ctx, "action_types:"+day, action, 1)
	pipe.HIncrBy(ctx, "chat_types", scope, 1)

	pipe.Expire(ctx, "active_users:"+day, dayRetention)
	pipe.Expire(ctx, "active_users:"+hour, hourRetention)
	pipe.Expire(ctx, actorKey, actorRetention)
	pipe.Expire(ctx, "minute_messages", minuteRetention)
	pipe.Expire(ctx, "action_types:"+day, dayRetention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record activity pipeline: %w", err)
	}
	return nil
}

// ReadSnapshot returns the current aggregate view. It never mutates
// counters; a durable read failure degrades the store and the snapshot
// is answered from the fallback structures instead.
func (s *Store) ReadSnapshot(now time.Time) Snapshot {
	if s.Mode() == ModeDurable {
		snap, err := s.readDurable(now)
		if err == nil {
			return snap
		}
		s.degrade(err)
	}

	return s.fallback.snapshot(now)
}

func (s *Store) readDurable(now time.Time) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	day := bucket.Day(now)
	hour := bucket.Hour(now)

	pipe := s.client.Pipeline()
	todayMessages := pipe.HGet(ctx, "daily_messages", day)
	todayUsers := pipe.SCard(ctx, "active_users:"+day)
	hourMessages := pipe.HGet(ctx, "hourly_messages", hour)
	hourUsers := pipe.SCard(ctx, "active_users:"+hour)
	actions := pipe.HGetAll(ctx, "action_types")
	todayActions := pipe.HGetAll(ctx, "action_types:"+day)
	chats := pipe.HGetAll(ctx, "chat_types")

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Snapshot{}, fmt.Errorf("read snapshot pipeline: %w", err)
	}

	online, err := s.onlineDurable(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		TodayMessages:       cmdInt64(todayMessages),
		TodayActiveUsers:    todayUsers.Val(),
		CurrentHourMessages: cmdInt64(hourMessages),
		CurrentHourUsers:    hourUsers.Val(),
		OnlineUsers:         online,
		ActionTypes:         toCounts(actions.Val()),
		TodayActionTypes:    toCounts(todayActions.Val()),
		ChatTypes:           toCounts(chats.Val()),
		LastUpdated:         now,
		DataSource:          string(ModeDurable),
	}, nil
}

// OnlineNow estimates the concurrently engaged actor population. In
// durable mode it is the maximum per-minute message count over the
// trailing five minute buckets; in degraded mode it is the exact count
// of actors seen within the trailing five minutes.
func (s *Store) OnlineNow(now time.Time) int64 {
	if s.Mode() == ModeDurable {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()

		online, err := s.onlineDurable(ctx, now)
		if err == nil {
			return online
		}
		s.degrade(err)
	}

	return s.fallback.onlineSince(now.Add(-onlineWindow))
}

func (s *Store) onlineDurable(ctx context.Context, now time.Time) (int64, error) {
	var online int64
	for _, minute := range bucket.TrailingMinutes(now, onlineProbeMinutes) {
		val, err := s.client.HGet(ctx, "minute_messages", minute).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("online estimate: %w", err)
		}
		if count, err := strconv.ParseInt(val, 10, 64); err == nil && count > online {
			online = count
		}
	}
	return online, nil
}

// CleanupExpired sweeps bucket keys past their retention window. This
// is redundant with the key-level expirations set on writes; it exists
// to bound hash-field growth, since redis expiry covers keys but not
// the fields of the rolling hashes. No-op in degraded mode.
func (s *Store) CleanupExpired(now time.Time) error {
	if s.Mode() == ModeDegraded {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	// Day buckets older than the 7-day retention: offsets 8 through 14.
	for offset := 8; offset <= 14; offset++ {
		day := bucket.DayOffset(now, -offset)
		pipe := s.client.Pipeline()
		pipe.Del(ctx, "active_users:"+day)
		pipe.Del(ctx, "action_types:"+day)
		pipe.HDel(ctx, "daily_users", day)
		pipe.HDel(ctx, "daily_messages", day)
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return fmt.Errorf("cleanup day bucket %s: %w", day, err)
		}
	}

	// Rolling hashes carry one field per bucket; expiry on the key
	// resets with every write, so fields are pruned here.
	if err := s.pruneHashFields(ctx, "hourly_messages", bucket.Hour(now.Add(-hourRetention))); err != nil {
		return err
	}
	if err := s.pruneHashFields(ctx, "minute_messages", bucket.Minute(now.Add(-minuteRetention))); err != nil {
		return err
	}

	return nil
}

// pruneHashFields deletes hash fields lexicographically older than
// cutoff. Bucket keys sort in time order, so string comparison is a
// time comparison.
func (s *Store) pruneHashFields(ctx context.Context, key, cutoff string) error {
	fields, err := s.client.HKeys(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("cleanup %s: %w", key, err)
	}

	var stale []string
	for _, field := range fields {
		if field < cutoff {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, key, stale...).Err(); err != nil {
		return fmt.Errorf("cleanup %s: %w", key, err)
	}
	return nil
}

// ActorActivity reads an actor's durable per-actor counters: lifetime
// messages, today's messages, and last-activity time. Zero values in
// degraded mode or when the actor has no record.
func (s *Store) ActorActivity(now time.Time, actor int64) (total, today int64, lastActivity time.Time) {
	if s.Mode() != ModeDurable {
		return 0, 0, s.fallback.lastSeen(actor)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, fmt.Sprintf("user_stats:%d", actor)).Result()
	if err != nil {
		s.degrade(fmt.Errorf("actor activity: %w", err))
		return 0, 0, s.fallback.lastSeen(actor)
	}

	total, _ = strconv.ParseInt(fields["total_messages"], 10, 64)
	today, _ = strconv.ParseInt(fields["messages_"+bucket.Day(now)], 10, 64)
	if raw, ok := fields["last_activity"]; ok {
		lastActivity, _ = time.Parse(time.RFC3339, raw)
	}
	return total, today, lastActivity
}

func cmdInt64(cmd *redis.StringCmd) int64 {
	val, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return val
}

func toCounts(raw map[string]string) map[string]int64 {
	counts := make(map[string]int64, len(raw))
	for key, val := range raw {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			counts[key] = n
		}
	}
	return counts
}
