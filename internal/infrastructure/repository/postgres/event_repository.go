package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blacksynapse/ingest-worker/internal/core/domain"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, ev domain.Event) error {
	metaJSON, err := metadataJSON(ev.Metadata)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "append event", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO ingestion_events (doc_id, event_type, message, metadata)
VALUES ($1,$2,$3,$4)
`, ev.DocID, string(ev.Type), nullIfEmpty(ev.Message), metaJSON)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "append event", err)
	}
	return nil
}

func (r *EventRepository) ListByDocID(ctx context.Context, docID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, doc_id, event_type, message, occurred_at, metadata
FROM ingestion_events
WHERE doc_id = $1
ORDER BY occurred_at, id
LIMIT $2
`, docID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list events", err)
	}
	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan event", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate events", err)
	}
	return out, nil
}

func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM ingestion_events WHERE occurred_at < $1
`, cutoff)
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "delete old events", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, domain.WrapError(domain.ErrPersistence, "delete old events rows affected", err)
	}
	return deleted, nil
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var ev domain.Event
	var eventType string
	var message sql.NullString
	var metaRaw []byte

	if err := rows.Scan(&ev.ID, &ev.DocID, &eventType, &message, &ev.OccurredAt, &metaRaw); err != nil {
		return domain.Event{}, err
	}
	ev.Type = domain.EventType(eventType)
	ev.Message = message.String
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &ev.Metadata); err != nil {
			return domain.Event{}, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return ev, nil
}
