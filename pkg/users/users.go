package users

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/platinummonkey/pulse/pkg/bucket"
	"github.com/sirupsen/logrus"
)

// Profile is one actor's registry record. Profiles are created on
// first registration and never destroyed; inactivity is the only form
// of retirement.
type Profile struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
	TotalMessages int64     `json:"total_messages"`
	TodayMessages int64     `json:"today_messages"`
	WeekMessages  int64     `json:"week_messages"`
	LastActivity  time.Time `json:"last_activity"`
}

// Stats is the derived per-actor view with level and badge tags.
type Stats struct {
	TotalMessages int64     `json:"total_messages"`
	TodayMessages int64     `json:"today_messages"`
	WeekMessages  int64     `json:"week_messages"`
	JoinedAt      time.Time `json:"joined_at"`
	LastActivity  time.Time `json:"last_activity"`
	Level         string    `json:"level"`
	Badges        []string  `json:"badges"`
}

// Registry persists actor profiles to a JSON flat file. All mutation
// goes through its methods under one lock; the file is rewritten
// whole on every change, which is fine at this registry's scale.
type Registry struct {
	log  *logrus.Logger
	path string

	mu       sync.Mutex
	profiles map[int64]*Profile
}

// NewRegistry loads the registry from path, creating parent
// directories as needed. A missing file is an empty registry; a
// corrupt file is an error.
func NewRegistry(path string, log *logrus.Logger) (*Registry, error) {
	if log == nil {
		log = logrus.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	r := &Registry{
		log:      log,
		path:     path,
		profiles: make(map[int64]*Profile),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	if err := json.Unmarshal(data, &r.profiles); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	return r, nil
}

// Register creates the actor's profile, or refreshes the identity
// fields if it already exists. LastActivity is owned by
// RecordActivity: touching it here would make the day and week
// rollover comparisons see every boundary as already crossed.
func (r *Registry) Register(id int64, username, firstName, lastName string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		r.profiles[id] = &Profile{
			ID:           id,
			Username:     username,
			FirstName:    firstName,
			LastName:     lastName,
			JoinedAt:     now,
			LastActivity: now,
		}
		r.log.WithFields(logrus.Fields{"actor": id, "username": username}).Info("new actor registered")
		return r.save()
	}

	p.Username = username
	p.FirstName = firstName
	p.LastName = lastName
	return r.save()
}

// RecordActivity bumps the actor's lifetime count and the rolling
// today/this-week counts, resetting them across day and week
// boundaries. Unknown actors are ignored.
func (r *Registry) RecordActivity(id int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil
	}

	p.TotalMessages++

	if bucket.Day(p.LastActivity) != bucket.Day(now) {
		p.TodayMessages = 1
	} else {
		p.TodayMessages++
	}

	if bucket.WeekStart(p.LastActivity) != bucket.WeekStart(now) {
		p.WeekMessages = 1
	} else {
		p.WeekMessages++
	}

	p.LastActivity = now
	return r.save()
}

// Stats returns the derived view for one actor.
func (r *Registry) Stats(id int64, now time.Time) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return Stats{}, false
	}

	return Stats{
		TotalMessages: p.TotalMessages,
		TodayMessages: p.TodayMessages,
		WeekMessages:  p.WeekMessages,
		JoinedAt:      p.JoinedAt,
		LastActivity:  p.LastActivity,
		Level:         levelFor(p.TotalMessages),
		Badges:        badgesFor(p, now),
	}, true
}

// Count returns the number of registered actors.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.profiles)
}

// ActiveToday returns how many actors were active on now's day.
func (r *Registry) ActiveToday(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := bucket.Day(now)
	count := 0
	for _, p := range r.profiles {
		if bucket.Day(p.LastActivity) == today {
			count++
		}
	}
	return count
}

// save rewrites the flat file. Caller must hold r.mu.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}

func levelFor(total int64) string {
	switch {
	case total >= 5000:
		return "legend"
	case total >= 2000:
		return "diamond"
	case total >= 1000:
		return "gold"
	case total >= 500:
		return "silver"
	case total >= 100:
		return "bronze"
	default:
		return "newcomer"
	}
}

func badgesFor(p *Profile, now time.Time) []string {
	var badges []string

	switch {
	case p.TotalMessages >= 1000:
		badges = append(badges, "power user")
	case p.TotalMessages >= 500:
		badges = append(badges, "very active")
	case p.TotalMessages >= 100:
		badges = append(badges, "active")
	}

	tenure := now.Sub(p.JoinedAt)
	switch {
	case tenure >= 365*24*time.Hour:
		badges = append(badges, "one year")
	case tenure >= 180*24*time.Hour:
		badges = append(badges, "six months")
	case tenure >= 30*24*time.Hour:
		badges = append(badges, "monthly regular")
	}

	switch {
	case p.TodayMessages >= 50:
		badges = append(badges, "daily champion")
	case p.TodayMessages >= 20:
		badges = append(badges, "daily active")
	}

	return badges
}
