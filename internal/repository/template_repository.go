package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	ListByBusiness(ctx context.Context, businessID int64) ([]*model.AutomationTemplate, error)
	Create(ctx context.Context, t *model.AutomationTemplate) error
}

type TemplateRepository struct {
	DB *sqlx.DB
}

const templateColumns = `id, business_id, key, name, status, channels, trigger_type, config,
	service_types, is_fallback, created_at, updated_at`

// ListByBusiness returns every template the business owns, paused ones included.
// Eligibility is decided by the matcher.
func (r *TemplateRepository) ListByBusiness(ctx context.Context, businessID int64) ([]*model.AutomationTemplate, error) {
	templates := []*model.AutomationTemplate{}
	err := r.DB.SelectContext(ctx, &templates,
		`SELECT `+templateColumns+` FROM automation_templates WHERE business_id = $1 ORDER BY id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// Create inserts a template, assigning an ID when none is set.
func (r *TemplateRepository) Create(ctx context.Context, t *model.AutomationTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = model.TemplateReady
	}
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO automation_templates
			(id, business_id, key, name, status, channels, trigger_type, config, service_types, is_fallback, created_at, updated_at)
		VALUES
			(:id, :business_id, :key, :name, :status, :channels, :trigger_type, :config, :service_types, :is_fallback, :created_at, :updated_at)`, t)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
