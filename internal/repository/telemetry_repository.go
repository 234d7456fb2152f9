package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

type TelemetryRepositoryInterface interface {
	Append(ctx context.Context, ev *model.TelemetryEvent) error
}

type TelemetryRepository struct {
	DB *sqlx.DB
}

func (r *TelemetryRepository) Append(ctx context.Context, ev *model.TelemetryEvent) error {
	data := ev.EventData
	if len(data) == 0 {
		data = []byte(`{}`)
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO telemetry_events (business_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		ev.BusinessID, ev.EventType, []byte(data), ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("append telemetry: %w", err)
	}
	return nil
}

var _ TelemetryRepositoryInterface = (*TelemetryRepository)(nil)
