package domain

import "time"

type Article struct {
	ID          int64      `db:"id"`
	FeedID      int64      `db:"feed_id"`
	GUID        string     `db:"guid"`
	Title       string     `db:"title"`
	URL         string     `db:"url"`
	Author      *string    `db:"author"`
	PublishedAt *time.Time `db:"published_at"`
	Content     *string    `db:"content"`
	Excerpt     *string    `db:"excerpt"`
	ImageURL    *string    `db:"image_url"`
	FetchedAt   time.Time  `db:"fetched_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// ArticleChanges holds the content fields that may be rewritten in place
// when an already known entry changes upstream.
type ArticleChanges struct {
	Title     string
	Content   *string
	Excerpt   *string
	ImageURL  *string
	FetchedAt time.Time
}

// Neutral rank used for embedding requests coming from a regular sync.
const DefaultEmbeddingPriority = 0

type EmbeddingQueueEntry struct {
	ID          int64      `db:"id"`
	ArticleID   int64      `db:"article_id"`
	Priority    int        `db:"priority"`
	EnqueuedAt  time.Time  `db:"enqueued_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}
