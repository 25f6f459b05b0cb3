// api/internal/store/event_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"questmetrics/api/database"
	"questmetrics/api/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventStore owns the raw game telemetry in ClickHouse: batch ingestion
// from the trackers and the session query the analytics engine consumes.
type EventStore struct {
	DB *database.ClickHouseClient
}

func NewEventStore(chClient *database.ClickHouseClient) *EventStore {
	return &EventStore{DB: chClient}
}

// InsertEvents appends one tracker batch. Every row gets a server-side
// event uuid; dynamic fields travel as a JSON payload column.
func (s *EventStore) InsertEvents(ctx context.Context, sessionID string, events []models.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO game_events (
			event_id, event_type, client_id, session_id, timestamp, payload
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev.Fields)
		if err != nil {
			log.Error().Err(err).Str("eventType", ev.ID).Msg("error encoding event payload, skipping")
			continue
		}
		if err := batch.Append(
			uuid.New().String(),
			ev.ID,
			ev.ClientID,
			sessionID,
			ev.Timestamp,
			string(payload),
		); err != nil {
			log.Error().Err(err).Str("eventType", ev.ID).Msg("error appending event to batch")
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Info().Int("count", len(events)).Str("sessionId", sessionID).Msg("inserted game events")
	return nil
}

type eventRow struct {
	SessionID string
	EventType string
	ClientID  string
	Timestamp time.Time
	Payload   string
}

// LoadSessions materializes the session batch for one date range, ordered
// by (session, timestamp) so every session's events come back timestamp
// ascending. Events whose type is hidden by the dashboard settings are
// dropped before grouping.
func (s *EventStore) LoadSessions(ctx context.Context, start, end time.Time, hiddenEventIDs []string) ([]models.Session, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT session_id, event_type, client_id, timestamp, payload
		FROM game_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY session_id ASC, timestamp ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var all []eventRow
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.SessionID, &r.EventType, &r.ClientID, &r.Timestamp, &r.Payload); err != nil {
			log.Error().Err(err).Msg("error scanning event row, skipping")
			continue
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during session query: %w", err)
	}

	hidden := make(map[string]struct{}, len(hiddenEventIDs))
	for _, id := range hiddenEventIDs {
		hidden[id] = struct{}{}
	}
	return groupSessions(all, hidden), nil
}

// groupSessions folds ordered rows into Session values. A payload that
// fails to decode degrades to an event without dynamic fields; sessions
// left empty after hidden-event filtering are dropped.
func groupSessions(rows []eventRow, hidden map[string]struct{}) []models.Session {
	var out []models.Session
	var cur *models.Session
	for _, r := range rows {
		if _, skip := hidden[r.EventType]; skip {
			continue
		}
		if cur == nil || cur.ID != r.SessionID {
			out = append(out, models.Session{ID: r.SessionID})
			cur = &out[len(out)-1]
		}
		fields := make(models.Attributes)
		if r.Payload != "" {
			if err := json.Unmarshal([]byte(r.Payload), &fields); err != nil {
				fields = make(models.Attributes)
			}
		}
		cur.Events = append(cur.Events, models.EventRecord{
			ID:        r.EventType,
			Timestamp: r.Timestamp,
			ClientID:  r.ClientID,
			Fields:    fields,
		})
	}
	filtered := out[:0]
	for _, s := range out {
		if len(s.Events) > 0 {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
