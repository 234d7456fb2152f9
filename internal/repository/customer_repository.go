package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// CustomerRepositoryInterface defines methods used by services
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
	SetSMSOptOut(ctx context.Context, phone string, optedOut bool) ([]int64, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sqlx.DB
}

const customerColumns = `id, business_id, first_name, last_name, email, phone, sms_opted_out`

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var c model.Customer
	err := r.DB.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("customer", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// SetSMSOptOut flags every customer whose stored phone resolves to the given E.164
// number and returns the businesses they belong to. Ten-digit stored numbers are
// compared as North American.
func (r *CustomerRepository) SetSMSOptOut(ctx context.Context, phone string, optedOut bool) ([]int64, error) {
	businessIDs := []int64{}
	err := r.DB.SelectContext(ctx, &businessIDs, `
		UPDATE customers
		SET sms_opted_out = $1
		WHERE phone = $2
		   OR '+' || regexp_replace(phone, '[^0-9]', '', 'g') = $2
		   OR '+1' || regexp_replace(phone, '[^0-9]', '', 'g') = $2
		RETURNING business_id`, optedOut, phone)
	if err != nil {
		return nil, fmt.Errorf("set sms opt-out: %w", err)
	}
	return businessIDs, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
