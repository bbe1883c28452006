package domain

import (
	"fmt"
	"time"
)

// Priority is the sync tier of a feed. It controls how often the feed is fetched.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists every valid tier, highest first.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority validates s as a priority tier.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// IntervalHours returns the number of hours between syncs for the tier.
// Unknown tiers fall back to the medium interval.
func (p Priority) IntervalHours() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 168
	default:
		return 24
	}
}

func (p Priority) Interval() time.Duration {
	return time.Duration(p.IntervalHours()) * time.Hour
}

// NextSyncAt computes base + interval(p).
func NextSyncAt(p Priority, base time.Time) time.Time {
	return base.Add(p.Interval())
}

type FeedStatus string

const (
	FeedStatusActive FeedStatus = "active"
	FeedStatusPaused FeedStatus = "paused"
	FeedStatusError  FeedStatus = "error"
)

type Feed struct {
	ID                int64      `db:"id"`
	URL               string     `db:"url"`
	Title             *string    `db:"title"`
	Priority          Priority   `db:"priority"`
	SyncIntervalHours int        `db:"sync_interval_hours"`
	LastSyncedAt      *time.Time `db:"last_synced_at"`
	NextSyncAt        time.Time  `db:"next_sync_at"`
	ETag              *string    `db:"etag"`
	LastModified      *string    `db:"last_modified"`
	Status            FeedStatus `db:"status"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// NeverSynced reports whether the feed has no successful sync on record.
func (f Feed) NeverSynced() bool {
	return f.LastSyncedAt == nil
}

// ScheduleBase is the instant the next sync is measured from: the last
// successful sync, or now for a feed that has never synced.
func (f Feed) ScheduleBase(now time.Time) time.Time {
	if f.LastSyncedAt != nil {
		return *f.LastSyncedAt
	}
	return now
}

// ScheduleUpdate carries the optional schedule fields of a feed. Nil fields
// are left untouched by the store.
type ScheduleUpdate struct {
	Priority      *Priority
	NextSyncAt    *time.Time
	IntervalHours *int
	LastSyncedAt  *time.Time
}

func (u ScheduleUpdate) Empty() bool {
	return u.Priority == nil && u.NextSyncAt == nil && u.IntervalHours == nil && u.LastSyncedAt == nil
}

// Validators are the HTTP cache validators remembered between fetches.
type Validators struct {
	ETag         *string
	LastModified *string
}

// CatalogEntry is a curated feed recommendation. DefaultPriority is nil when
// the catalog does not pin a tier.
type CatalogEntry struct {
	ID              int64     `db:"id"`
	URL             string    `db:"url"`
	Title           *string   `db:"title"`
	DefaultPriority *Priority `db:"default_priority"`
}
