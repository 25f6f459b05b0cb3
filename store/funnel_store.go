// api/internal/store/funnel_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"questmetrics/api/models"

	"github.com/google/uuid"
)

var ErrFunnelNotFound = errors.New("funnel not found")

// FunnelStore persists saved funnel definitions in Postgres. Steps are
// stored as a JSONB document; the engine never reads this table, it only
// receives decoded definitions.
type FunnelStore struct {
	db *sql.DB
}

func NewFunnelStore(db *sql.DB) *FunnelStore {
	return &FunnelStore{db: db}
}

func (s *FunnelStore) CreateFunnel(ctx context.Context, name string, steps []models.FunnelStep) (*models.Funnel, error) {
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode funnel steps: %w", err)
	}

	f := &models.Funnel{ID: uuid.New().String(), Name: name, Steps: steps}
	query := `
		INSERT INTO funnels (id, name, steps)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at;
	`
	if err := s.db.QueryRowContext(ctx, query, f.ID, name, stepsJSON).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create funnel: %w", err)
	}
	return f, nil
}

func (s *FunnelStore) GetFunnel(ctx context.Context, id string) (*models.Funnel, error) {
	f := &models.Funnel{}
	var stepsJSON []byte
	query := `
		SELECT id, name, steps, created_at, updated_at
		FROM funnels
		WHERE id = $1;
	`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Name, &stepsJSON, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &f.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode funnel steps: %w", err)
	}
	return f, nil
}

func (s *FunnelStore) ListFunnels(ctx context.Context) ([]models.Funnel, error) {
	query := `
		SELECT id, name, steps, created_at, updated_at
		FROM funnels
		ORDER BY created_at DESC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}
	defer rows.Close()

	var out []models.Funnel
	for rows.Next() {
		var f models.Funnel
		var stepsJSON []byte
		if err := rows.Scan(&f.ID, &f.Name, &stepsJSON, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan funnel row: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &f.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode funnel steps: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error listing funnels: %w", err)
	}
	return out, nil
}

func (s *FunnelStore) DeleteFunnel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM funnels WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete funnel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrFunnelNotFound
	}
	return nil
}
