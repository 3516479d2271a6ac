package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/models"
)

// DefaultHistoryLimit caps Recent when the caller passes no limit.
const DefaultHistoryLimit = 50

// HistoryStore appends session events to the history database.
type HistoryStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHistoryStore(db *sql.DB, logger zerolog.Logger) *HistoryStore {
	return &HistoryStore{db: db, logger: logger.With().Str("component", "history").Logger()}
}

// Publish records event. Storage failures are logged, never returned.
func (h *HistoryStore) Publish(event models.Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	_, err := h.db.Exec(
		`INSERT INTO events (at, kind, alias, address, detail) VALUES (?, ?, ?, ?, ?)`,
		event.At.UnixMilli(), string(event.Kind), event.Alias, event.Address, event.Detail,
	)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("Failed to record event")
	}
}

// Recent returns up to limit events, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, at, kind, alias, address, detail FROM events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0, limit)
	for rows.Next() {
		var (
			e    models.Event
			at   int64
			kind string
		)
		if err := rows.Scan(&e.ID, &at, &kind, &e.Alias, &e.Address, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.At = time.UnixMilli(at)
		e.Kind = models.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}
