package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"hr-testing-service/internal/domain"
)

type eventRow struct {
	bun.BaseModel `bun:"table:event_log,alias:ev"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Event     string    `bun:"event,notnull"`
	Key       string    `bun:"key,notnull"`
	Data      string    `bun:"data,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// EventLog is an app.Notifier appending every notification to event_log so
// other services can replay review outcomes.
type EventLog struct {
	db *bun.DB
}

func NewEventLog(db *bun.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Notify(ctx context.Context, n domain.Notification) error {
	raw, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	row := eventRow{
		Event: n.Event,
		Key:   strconv.FormatInt(n.Payload.ResultID, 10),
		Data:  string(raw),
	}
	if _, err := l.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Since returns events with id greater than afterID in insertion order.
func (l *EventLog) Since(ctx context.Context, afterID int64, limit int) ([]domain.LoggedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := l.db.NewSelect().Model(&rows).
		Where("ev.id > ?", afterID).
		OrderExpr("ev.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}

	out := make([]domain.LoggedEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LoggedEvent{
			ID:        row.ID,
			Event:     row.Event,
			Key:       row.Key,
			Data:      json.RawMessage(row.Data),
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
