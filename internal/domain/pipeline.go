package domain

import "time"

// ClusterSignal asks the clustering stage to run over freshly embedded
// articles.
type ClusterSignal struct {
	Cycle        int64     `json:"cycle"`
	Reason       string    `json:"reason"`
	ArticleCount int       `json:"article_count"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// EmbeddingBatchCompleted is reported by the embedding worker after it has
// drained a batch from the embedding queue.
type EmbeddingBatchCompleted struct {
	Processed   int       `json:"processed"`
	CompletedAt time.Time `json:"completed_at"`
}
