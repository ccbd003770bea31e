package domain

import "time"

// SourceStats aggregates non-deleted documents for one source. AvgChunks is
// rounded to two decimal places at the query.
type SourceStats struct {
	Source    string  `json:"source"`
	Documents int     `json:"documents"`
	Chunks    int     `json:"chunks"`
	AvgChunks float64 `json:"avg_chunks"`
}

type CorpusStats struct {
	Sources         []SourceStats `json:"sources"`
	TotalDocuments  int           `json:"total_documents"`
	TotalChunks     int           `json:"total_chunks"`
	LastProcessedAt *time.Time    `json:"last_processed_at,omitempty"`
}
