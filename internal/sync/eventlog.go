package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventRepo appends domain events (attempt started/finished, profile
// synced) to the event_log table for downstream consumers.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Record satisfies the exam service's Recorder. Best-effort: failures are
// logged, never propagated into the request path.
func (r *EventRepo) Record(ctx context.Context, typ, key string, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		log.Printf("event %s %s: marshal: %v", typ, key, err)
		return
	}
	if err := r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		log.Printf("event %s %s: append: %v", typ, key, err)
	}
}

// List returns events of one type, oldest first. Used by tests and ops
// tooling.
func (r *EventRepo) List(ctx context.Context, typ string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log
		 WHERE typ=$1 ORDER BY "offset" LIMIT $2`, typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
