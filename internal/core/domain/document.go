package domain

import "time"

type EventType string

const (
	EventReceived         EventType = "received"
	EventAdmitted         EventType = "admitted"
	EventChunked          EventType = "chunked"
	EventEmbedded         EventType = "embedded"
	EventUpserted         EventType = "upserted"
	EventSkippedDuplicate EventType = "skipped_duplicate"
	EventFailed           EventType = "failed"
	EventDeleted          EventType = "deleted"
)

// Document is the ledger row for one logical source document. DocID is the
// identity key; ContentHash is the deduplication key and may be empty when
// the normalized body is empty or unknown (treated as "always changed").
type Document struct {
	DocID       string         `json:"doc_id"`
	Source      string         `json:"source"`
	Title       string         `json:"title,omitempty"`
	URI         string         `json:"uri,omitempty"`
	Author      string         `json:"author,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
	ContentHash string         `json:"content_hash,omitempty"`
	IsDeleted   bool           `json:"is_deleted"`
	ChunkCount  int            `json:"chunk_count"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Event is one append-only audit row. Rows are never mutated; ordering per
// doc_id is (OccurredAt, ID).
type Event struct {
	ID         int64          `json:"id"`
	DocID      string         `json:"doc_id"`
	Type       EventType      `json:"event_type"`
	Message    string         `json:"message,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewEvent(docID string, eventType EventType, message string, metadata map[string]any) Event {
	return Event{
		DocID:    docID,
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	}
}

// DocumentPayload is the normalized record sources deliver for ingestion.
type DocumentPayload struct {
	DocID     string     `json:"doc_id"`
	Source    string     `json:"source"`
	Title     string     `json:"title"`
	URI       string     `json:"uri"`
	Text      string     `json:"text"`
	Author    string     `json:"author"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
