package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncResult is the outcome of one feed's sync attempt.
type SyncResult struct {
	FeedID          int64   `json:"feed_id"`
	Success         bool    `json:"success"`
	NotModified     bool    `json:"not_modified,omitempty"`
	ArticlesFound   int     `json:"articles_found"`
	ArticlesNew     int     `json:"articles_new"`
	ArticlesUpdated int     `json:"articles_updated"`
	Error           string  `json:"error,omitempty"`
	HTTPStatus      int     `json:"http_status,omitempty"`
	ETag            *string `json:"etag,omitempty"`
	LastModified    *string `json:"last_modified,omitempty"`
	Bytes           int     `json:"bytes"`

	// IDs of the articles created during this attempt.
	NewArticleIDs []int64       `json:"-"`
	Duration      time.Duration `json:"duration"`
}

// Failed builds an unsuccessful result.
func Failed(feedID int64, err error, status int) SyncResult {
	return SyncResult{
		FeedID:     feedID,
		Error:      err.Error(),
		HTTPStatus: status,
	}
}

// Tally counts successes and failures over a batch of results.
func Tally(results []SyncResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

type SyncLogStatus string

const (
	SyncLogRunning SyncLogStatus = "running"
	SyncLogSuccess SyncLogStatus = "success"
	SyncLogFailure SyncLogStatus = "failure"
)

// SyncLog is the persisted audit entry of one sync attempt.
type SyncLog struct {
	ID              uuid.UUID     `db:"id"`
	FeedID          int64         `db:"feed_id"`
	Status          SyncLogStatus `db:"status"`
	StartedAt       time.Time     `db:"started_at"`
	FinishedAt      *time.Time    `db:"finished_at"`
	HTTPStatus      *int          `db:"http_status"`
	ArticlesFound   int           `db:"articles_found"`
	ArticlesNew     int           `db:"articles_new"`
	ArticlesUpdated int           `db:"articles_updated"`
	Bytes           int           `db:"bytes"`
	ETag            *string       `db:"etag"`
	LastModified    *string       `db:"last_modified"`
	Error           *string       `db:"error"`
}
